// Package capturetest provides in-memory capture devices for tests.
package capturetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Soln1shko/AI-HR/internal/capture"
)

var ErrDenied = errors.New("permission denied")

// Device is a scriptable capture.Device. Each Recorder emits the chunks
// pushed through Emit and closes after Stop.
type Device struct {
	mu        sync.Mutex
	Fail      error
	Formats   map[string]bool
	stopDelay time.Duration
	opens     int
	streams   []*Stream
	recorders []*Recorder
}

func NewDevice(formats ...string) *Device {
	d := &Device{Formats: map[string]bool{}}
	for _, f := range formats {
		d.Formats[f] = true
	}
	return d
}

func (d *Device) Open(_ context.Context, _ capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.Fail != nil {
		return nil, d.Fail
	}
	s := &Stream{dev: d}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *Device) Supported(format string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Formats[format]
}

func (d *Device) SetFail(err error) {
	d.mu.Lock()
	d.Fail = err
	d.mu.Unlock()
}

// SetStopDelay makes recorders started afterwards flush that long after Stop.
func (d *Device) SetStopDelay(delay time.Duration) {
	d.mu.Lock()
	d.stopDelay = delay
	d.mu.Unlock()
}

func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Recorder returns the most recently started recorder, or nil.
func (d *Device) Recorder() *Recorder {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.recorders) == 0 {
		return nil
	}
	return d.recorders[len(d.recorders)-1]
}

func (d *Device) Recorders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.recorders)
}

// OpenStreams counts streams that were opened and not stopped.
func (d *Device) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.streams {
		if !s.Stopped() {
			n++
		}
	}
	return n
}

type Stream struct {
	dev     *Device
	mu      sync.Mutex
	stopped bool
}

func (s *Stream) Record(_ context.Context, format string, _ time.Duration) (capture.Recorder, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, errors.New("stream is stopped")
	}
	s.dev.mu.Lock()
	r := &Recorder{Format: format, ch: make(chan []byte, 64), delay: s.dev.stopDelay}
	s.dev.recorders = append(s.dev.recorders, r)
	s.dev.mu.Unlock()
	return r, nil
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type Recorder struct {
	Format string

	mu      sync.Mutex
	ch      chan []byte
	stopped bool
	delay   time.Duration
}

func (r *Recorder) Chunks() <-chan []byte { return r.ch }

// Emit pushes a fragment; it is a no-op after Stop.
func (r *Recorder) Emit(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.ch <- chunk
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	close(r.ch)
	return nil
}

func (r *Recorder) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
