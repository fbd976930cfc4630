// Package backend is the REST client of the AI-HR backend used during an
// interview.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// TokenHeader carries the candidate's access token.
const TokenHeader = "x-access-token"

type API interface {
	StartInterview(ctx context.Context, vacancyID string) (*StartResponse, error)
	SaveAnswer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error)
	DeleteInterview(ctx context.Context, interviewID string) error
	UploadVideo(ctx context.Context, filename string, data []byte, contentType string) (string, error)
	InterviewQnA(ctx context.Context, interviewID string) (*QnAResponse, error)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = logger.Component(l, "backend") }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logger.Component(nil, "backend")
	}
	return c
}

func (c *Client) StartInterview(ctx context.Context, vacancyID string) (*StartResponse, error) {
	const op = "Client.StartInterview"
	if vacancyID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "vacancy_id is required", nil)
	}

	var out StartResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/convert-resume", map[string]string{"vacancy_id": vacancyID}, &out); err != nil {
		return nil, err
	}
	if out.InterviewID == "" {
		return nil, utils.E(utils.CodeInternal, op, "response has no interview_id", nil)
	}
	return &out, nil
}

func (c *Client) SaveAnswer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	const op = "Client.SaveAnswer"
	if req.InterviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}

	var out AnswerResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/interviews/answer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteInterview(ctx context.Context, interviewID string) error {
	const op = "Client.DeleteInterview"
	if interviewID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	return c.doJSON(ctx, op, http.MethodDelete, "/interviews/"+url.PathEscape(interviewID), nil, nil)
}

func (c *Client) InterviewQnA(ctx context.Context, interviewID string) (*QnAResponse, error) {
	const op = "Client.InterviewQnA"
	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}

	var out QnAResponse
	if err := c.doJSON(ctx, op, http.MethodGet, "/interviews/"+url.PathEscape(interviewID)+"/qna", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadVideo posts data as the multipart field "file" and returns the
// stored video id.
func (c *Client) UploadVideo(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	const op = "Client.UploadVideo"
	if len(data) == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "empty video", nil)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(fileHeader(filename, contentType))
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "build form", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", utils.E(utils.CodeInternal, op, "build form", err)
	}
	if err := writer.Close(); err != nil {
		return "", utils.E(utils.CodeInternal, op, "build form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/video/upload-video/", body)
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out UploadResponse
	if err := c.do(req, op, &out); err != nil {
		return "", err
	}
	if out.VideoID == "" {
		return "", utils.E(utils.CodeInternal, op, "response has no yc_video_id", nil)
	}
	c.log.WithFields(logrus.Fields{"video_id": out.VideoID, "bytes": len(data)}).Info("video uploaded")
	return out.VideoID, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "encode request", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return utils.E(utils.CodeTimeout, op, "request cancelled", err)
		}
		return utils.E(utils.CodeUnavailable, op, "backend unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "read response", err)
	}

	c.log.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.URL.Path,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return utils.E(codeForStatus(resp.StatusCode), op, errorMessage(raw, resp.StatusCode), nil)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return utils.E(utils.CodeInternal, op, "decode response", err)
	}
	return nil
}

// errorMessage reads {message} or {detail} from an error body.
func errorMessage(raw []byte, status int) string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Detail != "" {
			return eb.Detail
		}
	}
	return fmt.Sprintf("backend returned status %d", status)
}

func codeForStatus(status int) utils.Code {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return utils.CodeInvalidArgument
	case status == http.StatusUnauthorized:
		return utils.CodeUnauthorized
	case status == http.StatusForbidden:
		return utils.CodeForbidden
	case status == http.StatusNotFound:
		return utils.CodeNotFound
	case status == http.StatusConflict:
		return utils.CodeConflict
	case status == http.StatusGatewayTimeout, status == http.StatusRequestTimeout:
		return utils.CodeTimeout
	case status >= 500:
		return utils.CodeUnavailable
	default:
		return utils.CodeInternal
	}
}

func fileHeader(filename, contentType string) textproto.MIMEHeader {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename))},
		"Content-Type":        {contentType},
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
