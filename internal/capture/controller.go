// Package capture owns camera and microphone access and turns a recording
// into one finished blob.
package capture

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
)

type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StatePreviewOnly  State = "preview_only"
	StateRecording    State = "recording"
)

// DefaultTimeslice is the chunk flush interval while recording.
const DefaultTimeslice = time.Second

// Callbacks are invoked outside the controller lock. Any of them may be nil.
type Callbacks struct {
	OnAvailable func(available bool)
	OnError     func(msg string)
	OnStart     func()
	OnStop      func()
	OnBlob      func(b Blob)
	// OnChunk receives every non-empty fragment in capture order.
	OnChunk func(chunk []byte)
}

type Controller struct {
	device      Device
	constraints Constraints
	formats     []string
	timeslice   time.Duration
	log         *logrus.Entry

	mu        sync.Mutex
	cb        Callbacks
	state     State
	available bool
	stream    Stream
	rec       Recorder
	format    string
	chunks    [][]byte
	stopping  bool
	done      chan struct{}
	last      Blob
}

type Option func(*Controller)

func WithTimeslice(d time.Duration) Option {
	return func(c *Controller) { c.timeslice = d }
}

func WithFormats(formats ...string) Option {
	return func(c *Controller) { c.formats = formats }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = logger.Component(l, "capture") }
}

func WithCallbacks(cb Callbacks) Option {
	return func(c *Controller) { c.cb = cb }
}

// NewController builds a controller for device. The encoding preference list
// defaults to VideoFormats or AudioFormats depending on constraints.Kind.
func NewController(device Device, constraints Constraints, opts ...Option) *Controller {
	c := &Controller{
		device:      device,
		constraints: constraints,
		timeslice:   DefaultTimeslice,
		state:       StateIdle,
	}
	if constraints.Kind == KindAudio {
		c.formats = AudioFormats
	} else {
		c.formats = VideoFormats
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logger.Component(nil, "capture")
	}
	c.log = c.log.WithField("kind", constraints.Kind)
	return c
}

// SetCallbacks replaces the callback set.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Format is the encoding negotiated for the current or last recording.
func (c *Controller) Format() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// InitializeCamera acquires the device for preview. Failures are reported
// through OnError and OnAvailable(false), never returned.
func (c *Controller) InitializeCamera(ctx context.Context) bool {
	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return true
	}
	if c.state == StateIdle {
		c.state = StateInitializing
	}
	c.mu.Unlock()

	stream, err := c.device.Open(ctx, c.constraints)

	c.mu.Lock()
	cb := c.cb
	if err != nil {
		if c.state == StateInitializing {
			c.state = StateIdle
		}
		c.available = false
		c.mu.Unlock()

		c.log.WithError(err).Warn("device acquisition failed")
		if cb.OnError != nil {
			cb.OnError(deviceErrorMessage(c.constraints.Kind))
		}
		if cb.OnAvailable != nil {
			cb.OnAvailable(false)
		}
		return false
	}
	if c.stream != nil {
		// lost a race with a concurrent initialization
		c.mu.Unlock()
		_ = stream.Stop()
		return true
	}
	c.stream = stream
	c.available = true
	if c.state == StateInitializing {
		c.state = StatePreviewOnly
	}
	c.mu.Unlock()

	c.log.Info("device initialized")
	if cb.OnAvailable != nil {
		cb.OnAvailable(true)
	}
	return true
}

// StartRecording lazily initializes the device, negotiates the encoding and
// starts buffering chunks. It returns false when recording could not start.
func (c *Controller) StartRecording(ctx context.Context) bool {
	recording, ok := c.settle(ctx)
	if !ok {
		return false
	}
	if recording {
		return true
	}

	c.mu.Lock()
	needInit := c.stream == nil
	c.mu.Unlock()

	if needInit && !c.InitializeCamera(ctx) {
		return false
	}

	format := c.negotiate()

	c.mu.Lock()
	if c.state == StateRecording {
		stopping := c.stopping
		c.mu.Unlock()
		if stopping {
			return c.StartRecording(ctx)
		}
		return true
	}
	stream := c.stream
	cb := c.cb
	if stream == nil {
		c.mu.Unlock()
		if cb.OnError != nil {
			cb.OnError(deviceErrorMessage(c.constraints.Kind))
		}
		return false
	}
	rec, err := stream.Record(ctx, format, c.timeslice)
	if err != nil {
		c.mu.Unlock()
		c.log.WithError(err).Error("recorder start failed")
		if cb.OnError != nil {
			cb.OnError("failed to start recording")
		}
		return false
	}
	done := make(chan struct{})
	c.rec = rec
	c.format = format
	c.chunks = nil
	c.stopping = false
	c.done = done
	c.state = StateRecording
	c.mu.Unlock()

	go c.pump(rec, format, done)

	c.log.WithField("format", format).Info("recording started")
	if cb.OnStart != nil {
		cb.OnStart()
	}
	return true
}

// settle waits for a recorder that is being stopped to flush. It reports
// whether a live recording is running; ok is false when ctx ended first.
func (c *Controller) settle(ctx context.Context) (recording, ok bool) {
	for {
		c.mu.Lock()
		if c.state != StateRecording {
			c.mu.Unlock()
			return false, true
		}
		if !c.stopping {
			c.mu.Unlock()
			return true, true
		}
		done := c.done
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return false, false
		}
	}
}

// StopRecording finalizes the recorder and waits for the flush. It returns
// the finished blob and true, or false when nothing was recording.
func (c *Controller) StopRecording(ctx context.Context) (Blob, bool) {
	c.mu.Lock()
	if c.state != StateRecording || c.stopping {
		done := c.done
		stopping := c.stopping
		c.mu.Unlock()
		if stopping && done != nil {
			select {
			case <-done:
			case <-ctx.Done():
			}
		}
		return Blob{}, false
	}
	c.stopping = true
	rec := c.rec
	done := c.done
	c.mu.Unlock()

	if err := rec.Stop(); err != nil {
		c.log.WithError(err).Warn("recorder stop reported an error")
	}

	select {
	case <-done:
	case <-ctx.Done():
		return Blob{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, true
}

// StopCamera releases all tracks. Safe to call repeatedly.
func (c *Controller) StopCamera() {
	c.mu.Lock()
	stream := c.stream
	rec := c.rec
	recording := c.state == StateRecording && !c.stopping
	if recording {
		c.stopping = true
	}
	c.stream = nil
	c.available = false
	if c.state != StateRecording {
		c.state = StateIdle
	}
	c.mu.Unlock()

	if recording && rec != nil {
		_ = rec.Stop()
	}
	if stream != nil {
		if err := stream.Stop(); err != nil {
			c.log.WithError(err).Warn("stream stop reported an error")
		}
		c.log.Info("device released")
	}
}

// negotiate picks the first supported format. The generic container is the
// fallback even when Supported rejects it.
func (c *Controller) negotiate() string {
	for _, f := range c.formats {
		if c.device.Supported(f) {
			return f
		}
	}
	if len(c.formats) == 0 {
		return ""
	}
	return c.formats[len(c.formats)-1]
}

func (c *Controller) pump(rec Recorder, format string, done chan struct{}) {
	for chunk := range rec.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		c.mu.Lock()
		c.chunks = append(c.chunks, chunk)
		onChunk := c.cb.OnChunk
		c.mu.Unlock()

		if onChunk != nil {
			onChunk(chunk)
		}
	}

	c.mu.Lock()
	blob := Blob{Data: bytes.Join(c.chunks, nil), Format: format}
	c.last = blob
	c.chunks = nil
	c.rec = nil
	c.stopping = false
	if c.stream != nil {
		c.state = StatePreviewOnly
	} else {
		c.state = StateIdle
	}
	cb := c.cb
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"format": format,
		"bytes":  blob.Size(),
	}).Info("recording stopped")

	if cb.OnBlob != nil {
		cb.OnBlob(blob)
	}
	if cb.OnStop != nil {
		cb.OnStop()
	}
	close(done)
}

func deviceErrorMessage(k Kind) string {
	if k == KindAudio {
		return "unable to access the microphone"
	}
	return "unable to access the camera"
}
