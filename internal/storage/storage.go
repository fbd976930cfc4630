// Package storage ships recorded answer videos: to the backend, which
// returns the video id sent with the answer, and optionally to an archive
// bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/backend"
	"github.com/Soln1shko/AI-HR/internal/capture"
	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// Uploader stores raw objects.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

// VideoUploader stores one recorded answer and returns the id the backend
// associates with it.
type VideoUploader interface {
	UploadVideo(ctx context.Context, name string, blob capture.Blob) (videoID string, err error)
}

// ObjectName is the upload file name of an answer recorded at t.
func ObjectName(interviewID string, t time.Time) string {
	return fmt.Sprintf("interview_%s_%d.webm", interviewID, t.UnixMilli())
}

// ContentType strips codec parameters: "video/webm;codecs=vp9" -> "video/webm".
func ContentType(format string) string {
	mime, _, _ := strings.Cut(format, ";")
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return "video/webm"
	}
	return mime
}

// BackendUploader posts videos to the backend upload endpoint.
type BackendUploader struct {
	api backend.API
}

func NewBackendUploader(api backend.API) *BackendUploader {
	return &BackendUploader{api: api}
}

func (u *BackendUploader) UploadVideo(ctx context.Context, name string, blob capture.Blob) (string, error) {
	const op = "BackendUploader.UploadVideo"
	if blob.Size() == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "empty recording", nil)
	}
	return u.api.UploadVideo(ctx, name, blob.Data, ContentType(blob.Format))
}

// ArchivingUploader uploads through primary and keeps a copy in archive.
// Archive failures are logged and never fail the upload.
type ArchivingUploader struct {
	primary VideoUploader
	archive Uploader
	prefix  string
	log     *logrus.Entry
}

func NewArchivingUploader(primary VideoUploader, archive Uploader, prefix string, log logrus.FieldLogger) *ArchivingUploader {
	return &ArchivingUploader{
		primary: primary,
		archive: archive,
		prefix:  strings.Trim(prefix, "/"),
		log:     logger.Component(log, "video_archive"),
	}
}

func (u *ArchivingUploader) UploadVideo(ctx context.Context, name string, blob capture.Blob) (string, error) {
	id, err := u.primary.UploadVideo(ctx, name, blob)
	if err != nil {
		return "", err
	}

	object := name
	if u.prefix != "" {
		object = u.prefix + "/" + name
	}
	path, aerr := u.archive.Upload(ctx, object, ContentType(blob.Format), bytes.NewReader(blob.Data))
	entry := u.log.WithFields(logrus.Fields{"video_id": id, "object": object})
	if aerr != nil {
		entry.WithError(aerr).Warn("archive upload failed")
	} else {
		entry.WithField("path", path).Info("video archived")
	}
	return id, nil
}
