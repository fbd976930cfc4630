package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
)

// FFmpegDevice captures from a local device through an ffmpeg subprocess.
// InputFormat/Input follow ffmpeg's -f/-i, e.g. v4l2 + /dev/video0 or
// pulse + default.
type FFmpegDevice struct {
	Bin         string
	InputFormat string
	Input       string
	Log         logrus.FieldLogger

	encodersOnce sync.Once
	encoders     string
}

func NewFFmpegDevice(bin, inputFormat, input string, log logrus.FieldLogger) *FFmpegDevice {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegDevice{Bin: bin, InputFormat: inputFormat, Input: input, Log: log}
}

// CheckInstallation verifies that the ffmpeg binary can be executed.
func CheckInstallation(ctx context.Context, bin string) error {
	if err := exec.CommandContext(ctx, bin, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg is not installed or not in PATH: %w", err)
	}
	return nil
}

func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if d.Input == "" {
		return nil, errors.New("capture input is not configured")
	}
	if strings.HasPrefix(d.Input, "/dev/") {
		if _, err := os.Stat(d.Input); err != nil {
			return nil, fmt.Errorf("capture device %s: %w", d.Input, err)
		}
	}
	if err := CheckInstallation(ctx, d.Bin); err != nil {
		return nil, err
	}
	return &ffmpegStream{dev: d, c: c, log: logger.Component(d.Log, "ffmpeg")}, nil
}

// Supported runs `ffmpeg -encoders` once and checks the encoder format needs.
func (d *FFmpegDevice) Supported(format string) bool {
	d.encodersOnce.Do(func() {
		out, err := exec.Command(d.Bin, "-hide_banner", "-encoders").Output()
		if err == nil {
			d.encoders = string(out)
		}
	})
	enc, _ := encoderFor(format)
	if enc == "" || d.encoders == "" {
		return false
	}
	for _, line := range strings.Split(d.encoders, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == enc {
			return true
		}
	}
	return false
}

// encoderFor maps a MIME format to the ffmpeg encoder and muxer producing it.
func encoderFor(format string) (encoder, muxer string) {
	mime, params, _ := strings.Cut(strings.ToLower(format), ";")
	codec := ""
	if params != "" {
		codec = strings.Trim(strings.TrimPrefix(strings.TrimSpace(params), "codecs="), `"`)
	}
	switch mime {
	case "video/webm":
		switch codec {
		case "vp9":
			return "libvpx-vp9", "webm"
		default:
			return "libvpx", "webm"
		}
	case "audio/webm":
		return "libopus", "webm"
	case "audio/ogg":
		return "libopus", "ogg"
	}
	return "", ""
}

type ffmpegStream struct {
	dev *FFmpegDevice
	c   Constraints
	log *logrus.Entry

	mu      sync.Mutex
	stopped bool
	recs    []*ffmpegRecorder
}

// Args builds the ffmpeg command line producing format on stdout.
func (s *ffmpegStream) Args(format string) ([]string, error) {
	enc, mux := encoderFor(format)
	if enc == "" {
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if s.dev.InputFormat != "" {
		args = append(args, "-f", s.dev.InputFormat)
	}
	switch s.c.Kind {
	case KindAudio:
		args = append(args, "-i", s.dev.Input, "-vn")
		if s.c.Channels > 0 {
			args = append(args, "-ac", strconv.Itoa(s.c.Channels))
		}
		if s.c.SampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(s.c.SampleRate))
		}
		args = append(args, "-c:a", enc)
	default:
		if s.c.FrameRate > 0 {
			args = append(args, "-framerate", strconv.Itoa(s.c.FrameRate))
		}
		if s.c.Width > 0 && s.c.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", s.c.Width, s.c.Height))
		}
		args = append(args, "-i", s.dev.Input, "-an", "-c:v", enc, "-deadline", "realtime", "-cpu-used", "8")
	}
	return append(args, "-f", mux, "pipe:1"), nil
}

func (s *ffmpegStream) Record(ctx context.Context, format string, timeslice time.Duration) (Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.New("stream is stopped")
	}

	args, err := s.Args(format)
	if err != nil {
		return nil, err
	}

	// not bound to ctx: the recording outlives the request that started it
	cmd := exec.Command(s.dev.Bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	r := &ffmpegRecorder{
		cmd:    cmd,
		stdin:  stdin,
		stderr: &stderr,
		log:    s.log,
		out:    make(chan []byte, 16),
		exited: make(chan struct{}),
	}
	go r.read(stdout, timeslice)
	go func() {
		err := cmd.Wait()
		if err != nil && stderr.Len() > 0 {
			s.log.WithError(err).WithField("stderr", strings.TrimSpace(stderr.String())).Warn("ffmpeg exited")
		}
		close(r.exited)
	}()

	s.recs = append(s.recs, r)
	s.log.WithField("args", strings.Join(args, " ")).Debug("ffmpeg started")
	return r, nil
}

func (s *ffmpegStream) Stop() error {
	s.mu.Lock()
	recs := s.recs
	s.recs = nil
	s.stopped = true
	s.mu.Unlock()

	var firstErr error
	for _, r := range recs {
		if err := r.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// stopGrace bounds how long ffmpeg may take to finalize the container.
const stopGrace = 5 * time.Second

type ffmpegRecorder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	log    *logrus.Entry

	out    chan []byte
	exited chan struct{}

	stopOnce sync.Once
}

func (r *ffmpegRecorder) Chunks() <-chan []byte { return r.out }

// Stop asks ffmpeg to quit ("q" on stdin) so it writes the container
// trailer, and kills it if it does not exit within stopGrace.
func (r *ffmpegRecorder) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		_, werr := io.WriteString(r.stdin, "q")
		_ = r.stdin.Close()

		select {
		case <-r.exited:
		case <-time.After(stopGrace):
			if r.cmd.Process != nil {
				err = r.cmd.Process.Kill()
			}
		}
		if err == nil && werr != nil && !errors.Is(werr, os.ErrClosed) {
			select {
			case <-r.exited:
			default:
				err = werr
			}
		}
	})
	return err
}

// read accumulates stdout and flushes it every timeslice, preserving order.
func (r *ffmpegRecorder) read(stdout io.Reader, timeslice time.Duration) {
	defer close(r.out)

	var (
		mu      sync.Mutex
		pending []byte
	)
	flush := func() {
		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		chunk := pending
		pending = nil
		mu.Unlock()
		r.out <- chunk
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 32*1024)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				mu.Lock()
				pending = append(pending, buf[:n]...)
				mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()

	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			flush()
		case <-readDone:
			flush()
			return
		}
	}
}
