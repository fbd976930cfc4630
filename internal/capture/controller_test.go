package capture_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soln1shko/AI-HR/internal/capture"
	"github.com/Soln1shko/AI-HR/internal/capture/capturetest"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 10 * time.Millisecond
)

func TestController_RecordProducesSingleBlob(t *testing.T) {
	dev := capturetest.NewDevice("video/webm;codecs=vp9", "video/webm;codecs=vp8")
	var (
		mu     sync.Mutex
		blobs  []capture.Blob
		chunks [][]byte
		events []string
	)
	c := capture.NewController(dev, capture.PreferredVideo, capture.WithCallbacks(capture.Callbacks{
		OnStart: func() { mu.Lock(); events = append(events, "start"); mu.Unlock() },
		OnStop:  func() { mu.Lock(); events = append(events, "stop"); mu.Unlock() },
		OnBlob:  func(b capture.Blob) { mu.Lock(); blobs = append(blobs, b); mu.Unlock() },
		OnChunk: func(b []byte) { mu.Lock(); chunks = append(chunks, b); mu.Unlock() },
	}))
	ctx := context.Background()

	require.True(t, c.StartRecording(ctx))
	assert.Equal(t, capture.StateRecording, c.State())
	assert.Equal(t, "video/webm;codecs=vp9", c.Format())

	rec := dev.Recorder()
	require.NotNil(t, rec)
	rec.Emit([]byte("ab"))
	rec.Emit(nil)
	rec.Emit([]byte("cd"))

	blob, ok := c.StopRecording(ctx)
	require.True(t, ok)
	assert.Equal(t, "abcd", string(blob.Data))
	assert.Equal(t, "video/webm;codecs=vp9", blob.Format)
	assert.Equal(t, capture.StatePreviewOnly, c.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, blobs, 1)
	assert.Equal(t, blob, blobs[0])
	assert.Equal(t, [][]byte{[]byte("ab"), []byte("cd")}, chunks)
	assert.Equal(t, []string{"start", "stop"}, events)
}

func TestController_StopWithoutRecordingIsNoop(t *testing.T) {
	dev := capturetest.NewDevice()
	stops := 0
	c := capture.NewController(dev, capture.PreferredVideo, capture.WithCallbacks(capture.Callbacks{
		OnStop: func() { stops++ },
	}))

	_, ok := c.StopRecording(context.Background())
	assert.False(t, ok)
	assert.Zero(t, stops)
	assert.Equal(t, capture.StateIdle, c.State())
}

func TestController_InitializeFailureReportsUnavailable(t *testing.T) {
	dev := capturetest.NewDevice()
	dev.SetFail(capturetest.ErrDenied)

	var avail []bool
	var errs []string
	c := capture.NewController(dev, capture.PreferredVideo, capture.WithCallbacks(capture.Callbacks{
		OnAvailable: func(a bool) { avail = append(avail, a) },
		OnError:     func(msg string) { errs = append(errs, msg) },
	}))

	assert.False(t, c.InitializeCamera(context.Background()))
	assert.False(t, c.Available())
	assert.Equal(t, capture.StateIdle, c.State())
	assert.Equal(t, []bool{false}, avail)
	assert.Equal(t, []string{"unable to access the camera"}, errs)

	assert.False(t, c.StartRecording(context.Background()))
	assert.Zero(t, dev.Recorders())
}

func TestController_NegotiationFallsBackToGenericContainer(t *testing.T) {
	dev := capturetest.NewDevice()
	c := capture.NewController(dev, capture.PreferredVideo)

	require.True(t, c.StartRecording(context.Background()))
	assert.Equal(t, "video/webm", dev.Recorder().Format)

	blob, ok := c.StopRecording(context.Background())
	require.True(t, ok)
	assert.Equal(t, "video/webm", blob.Format)
	assert.Zero(t, blob.Size())
}

func TestController_NegotiationSkipsUnsupported(t *testing.T) {
	dev := capturetest.NewDevice("audio/ogg;codecs=opus")
	c := capture.NewController(dev, capture.PreferredAudio)

	require.True(t, c.StartRecording(context.Background()))
	assert.Equal(t, "audio/ogg;codecs=opus", c.Format())
	c.StopCamera()
}

func TestController_StopCameraIsIdempotent(t *testing.T) {
	dev := capturetest.NewDevice()
	c := capture.NewController(dev, capture.PreferredVideo)

	require.True(t, c.InitializeCamera(context.Background()))
	assert.True(t, c.Available())
	assert.Equal(t, 1, dev.OpenStreams())

	c.StopCamera()
	c.StopCamera()
	assert.False(t, c.Available())
	assert.Equal(t, capture.StateIdle, c.State())
	assert.Zero(t, dev.OpenStreams())
}

func TestController_StopCameraWhileRecordingFlushesBlob(t *testing.T) {
	dev := capturetest.NewDevice()
	blobs := make(chan capture.Blob, 1)
	c := capture.NewController(dev, capture.PreferredVideo, capture.WithCallbacks(capture.Callbacks{
		OnBlob: func(b capture.Blob) { blobs <- b },
	}))

	require.True(t, c.StartRecording(context.Background()))
	dev.Recorder().Emit([]byte("x"))
	c.StopCamera()

	b := <-blobs
	assert.Equal(t, "x", string(b.Data))
	assert.Eventually(t, func() bool { return c.State() == capture.StateIdle }, testTimeout, testTick)
}

func TestController_StartRecordingTwiceKeepsOneRecorder(t *testing.T) {
	dev := capturetest.NewDevice()
	c := capture.NewController(dev, capture.PreferredVideo)
	ctx := context.Background()

	require.True(t, c.StartRecording(ctx))
	require.True(t, c.StartRecording(ctx))
	assert.Equal(t, 1, dev.Recorders())
	assert.Equal(t, 1, dev.Opens())
}

func TestController_StartRecordingWaitsForPendingStop(t *testing.T) {
	dev := capturetest.NewDevice()
	dev.SetStopDelay(300 * time.Millisecond)
	c := capture.NewController(dev, capture.PreferredVideo)
	ctx := context.Background()

	require.True(t, c.StartRecording(ctx))
	first := dev.Recorder()
	first.Emit([]byte("old"))

	stopped := make(chan capture.Blob, 1)
	go func() {
		b, _ := c.StopRecording(ctx)
		stopped <- b
	}()
	require.Eventually(t, first.Stopped, testTimeout, testTick)

	require.True(t, c.StartRecording(ctx))
	assert.Equal(t, 2, dev.Recorders())
	assert.NotSame(t, first, dev.Recorder())
	assert.False(t, dev.Recorder().Stopped())
	assert.Equal(t, capture.StateRecording, c.State())

	b := <-stopped
	assert.Equal(t, "old", string(b.Data))

	dev.Recorder().Emit([]byte("new"))
	b, ok := c.StopRecording(ctx)
	require.True(t, ok)
	assert.Equal(t, "new", string(b.Data))
}

func TestController_StartRecordingGivesUpWhenStopOutlastsContext(t *testing.T) {
	dev := capturetest.NewDevice()
	dev.SetStopDelay(300 * time.Millisecond)
	c := capture.NewController(dev, capture.PreferredVideo)

	require.True(t, c.StartRecording(context.Background()))
	go c.StopRecording(context.Background())
	require.Eventually(t, dev.Recorder().Stopped, testTimeout, testTick)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, c.StartRecording(ctx))
	assert.Equal(t, 1, dev.Recorders())
}
