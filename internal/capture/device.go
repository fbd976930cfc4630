package capture

import (
	"context"
	"time"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Constraints describe the preferred capture parameters. Devices treat them
// as ideals, not requirements.
type Constraints struct {
	Kind       Kind
	Width      int
	Height     int
	FrameRate  int
	SampleRate int
	Channels   int
}

var (
	PreferredVideo = Constraints{Kind: KindVideo, Width: 1280, Height: 720, FrameRate: 30}
	PreferredAudio = Constraints{Kind: KindAudio, SampleRate: 48000, Channels: 1}
)

// Encoding preference lists, best first. The last entry is the generic
// container and is used when nothing else is reported as supported.
var (
	VideoFormats = []string{"video/webm;codecs=vp9", "video/webm;codecs=vp8", "video/webm"}
	AudioFormats = []string{"audio/webm;codecs=opus", "audio/ogg;codecs=opus", "audio/webm"}
)

// Device acquires exclusive capture streams from hardware.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
	// Supported reports whether format can be produced right now.
	Supported(format string) bool
}

// Stream is a live device stream. Stop releases every track.
type Stream interface {
	Record(ctx context.Context, format string, timeslice time.Duration) (Recorder, error)
	Stop() error
}

// Recorder emits encoded fragments in capture order. Chunks is closed after
// the final flush that follows Stop (or after the source ends).
type Recorder interface {
	Chunks() <-chan []byte
	Stop() error
}

// Blob is one finished recording.
type Blob struct {
	Data   []byte
	Format string
}

func (b Blob) Size() int { return len(b.Data) }
