package transcription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/providers/reconnect"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func newServer(t *testing.T, serve func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type recorder struct {
	mu             sync.Mutex
	transcriptions []string
	analyses       []*models.VoiceAnalysis
	errors         []string
	connected      int
	disconnected   int
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnTranscription: func(text string) { r.mu.Lock(); r.transcriptions = append(r.transcriptions, text); r.mu.Unlock() },
		OnAnalysis:      func(a *models.VoiceAnalysis) { r.mu.Lock(); r.analyses = append(r.analyses, a); r.mu.Unlock() },
		OnError:         func(msg string) { r.mu.Lock(); r.errors = append(r.errors, msg); r.mu.Unlock() },
		OnConnected:     func() { r.mu.Lock(); r.connected++; r.mu.Unlock() },
		OnDisconnected:  func() { r.mu.Lock(); r.disconnected++; r.mu.Unlock() },
	}
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		transcriptions: append([]string(nil), r.transcriptions...),
		analyses:       append([]*models.VoiceAnalysis(nil), r.analyses...),
		errors:         append([]string(nil), r.errors...),
		connected:      r.connected,
		disconnected:   r.disconnected,
	}
}

func TestChannel_ChunksArriveInOrderThenEnd(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []clientMessage
	)
	_, url := newServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m clientMessage
			if json.Unmarshal(data, &m) != nil {
				return
			}
			mu.Lock()
			seen = append(seen, m)
			mu.Unlock()
			if m.Type == TypeEnd {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(
					`{"type":"final_result","transcription":"hello there","analysis":{"tags":["Energetic"],"scores":{"confidence":80,"energy":140},"overall_score":72.5}}`))
			}
		}
	})

	ch := New(url)
	rec := &recorder{}
	defer ch.Subscribe(rec.handlers())()

	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	chunks := []string{"first", "second", "third"}
	for _, c := range chunks {
		require.NoError(t, ch.SendAudioChunk([]byte(c)))
	}
	require.NoError(t, ch.SendAudioChunk(nil))
	require.NoError(t, ch.EndTranscription())

	require.Eventually(t, func() bool { return len(rec.snapshot().transcriptions) == 1 }, waitFor, tick)

	mu.Lock()
	require.Len(t, seen, 4)
	for i, c := range chunks {
		assert.Equal(t, TypeAudioChunk, seen[i].Type)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(c)), seen[i].Data)
	}
	assert.Equal(t, TypeEnd, seen[3].Type)
	mu.Unlock()

	got := rec.snapshot()
	assert.Equal(t, []string{"hello there"}, got.transcriptions)
	require.Len(t, got.analyses, 1)
	assert.Equal(t, []string{"Energetic"}, got.analyses[0].Tags)
	assert.Equal(t, 100.0, got.analyses[0].Scores[models.ScoreEnergy])
	require.NotNil(t, got.analyses[0].OverallScore)
	assert.Equal(t, 72.5, *got.analyses[0].OverallScore)
	assert.False(t, ch.awaiting())
	assert.True(t, ch.IsConnected())
}

func TestChannel_MalformedMessageKeepsConnection(t *testing.T) {
	_, url := newServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcription","text":"ok"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch := New(url)
	rec := &recorder{}
	ch.Subscribe(rec.handlers())
	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	require.Eventually(t, func() bool { return len(rec.snapshot().transcriptions) == 1 }, waitFor, tick)
	got := rec.snapshot()
	assert.Equal(t, []string{MsgMalformed}, got.errors)
	assert.Equal(t, []string{"ok"}, got.transcriptions)
	assert.True(t, ch.IsConnected())
}

func TestChannel_ServerErrorResolvesPending(t *testing.T) {
	_, url := newServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(data), TypeEnd) {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"empty recording"}`))
			}
		}
	})

	ch := New(url)
	rec := &recorder{}
	ch.Subscribe(rec.handlers())
	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	require.NoError(t, ch.EndTranscription())
	require.Eventually(t, func() bool { return len(rec.snapshot().errors) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"empty recording"}, rec.snapshot().errors)
	assert.False(t, ch.awaiting())
}

func TestChannel_ReconnectStopsAtCeiling(t *testing.T) {
	var dials int32
	_, url := newServer(t, func(conn *websocket.Conn) {
		atomic.AddInt32(&dials, 1)
	})

	ch := New(url, WithPolicy(reconnect.Policy{Interval: 10 * time.Millisecond, MaxAttempts: 3}))
	rec := &recorder{}
	ch.Subscribe(rec.handlers())
	require.NoError(t, ch.Connect(context.Background()))

	require.Eventually(t, func() bool {
		errs := rec.snapshot().errors
		return len(errs) > 0 && errs[len(errs)-1] == MsgUnavailable
	}, waitFor, tick)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 4, atomic.LoadInt32(&dials))
	assert.False(t, ch.IsConnected())
	assert.Equal(t, 4, rec.snapshot().disconnected)

	// explicit Connect re-arms the budget
	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&dials) == 8 }, waitFor, tick)
	ch.Disconnect()
}

func TestChannel_InboundFrameRearmsReconnectBudget(t *testing.T) {
	var dials int32
	_, url := newServer(t, func(conn *websocket.Conn) {
		atomic.AddInt32(&dials, 1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	})

	ch := New(url, WithPolicy(reconnect.Policy{Interval: 10 * time.Millisecond, MaxAttempts: 1}))
	require.NoError(t, ch.Connect(context.Background()))

	// a dial alone does not reset the count; a server that talks does
	require.Eventually(t, func() bool { return atomic.LoadInt32(&dials) >= 4 }, waitFor, tick)
	ch.Disconnect()
}

func TestChannel_ConnectIsIdempotent(t *testing.T) {
	var dials int32
	_, url := newServer(t, func(conn *websocket.Conn) {
		atomic.AddInt32(&dials, 1)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch := New(url)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ch.Connect(ctx))
		}()
	}
	wg.Wait()
	require.NoError(t, ch.Connect(ctx))
	defer ch.Disconnect()

	assert.EqualValues(t, 1, atomic.LoadInt32(&dials))
}

func TestChannel_NotConnected(t *testing.T) {
	ch := New("ws://127.0.0.1:1/ws/voice")
	assert.NoError(t, ch.SendAudioChunk([]byte("x")))
	assert.ErrorIs(t, ch.EndTranscription(), ErrNotConnected)
	assert.False(t, ch.IsConnected())
}

func TestChannel_UnsubscribeStopsDelivery(t *testing.T) {
	send := make(chan string, 2)
	_, url := newServer(t, func(conn *websocket.Conn) {
		for text := range send {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcription","text":"`+text+`"}`))
		}
	})
	defer close(send)

	ch := New(url)
	first, second := &recorder{}, &recorder{}
	unsubscribe := ch.Subscribe(first.handlers())
	ch.Subscribe(second.handlers())
	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	send <- "one"
	require.Eventually(t, func() bool { return len(second.snapshot().transcriptions) == 1 }, waitFor, tick)
	unsubscribe()
	unsubscribe()
	send <- "two"
	require.Eventually(t, func() bool { return len(second.snapshot().transcriptions) == 2 }, waitFor, tick)

	assert.Equal(t, []string{"one"}, first.snapshot().transcriptions)
}
