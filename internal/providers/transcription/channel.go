// Package transcription is the client side of the streaming transcription
// service: recorded audio goes out as base64 chunks, transcripts and voice
// analysis come back asynchronously on the same socket.
package transcription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/providers/reconnect"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// Wire message types.
const (
	TypeAudioChunk    = "audio_chunk"
	TypeEnd           = "end"
	TypeTranscription = "transcription"
	TypeFinalResult   = "final_result"
	TypeError         = "error"
)

// Messages reported to error handlers.
const (
	MsgMalformed   = "failed to parse server response"
	MsgLost        = "connection lost before the transcription arrived"
	MsgUnavailable = "transcription service unavailable"
)

var ErrNotConnected = errors.New("transcription channel is not connected")

const (
	writeTimeout = 10 * time.Second
	dialTimeout  = 10 * time.Second
)

// Handlers receive channel events. They run on the channel's read goroutine,
// in arrival order; any of them may be nil.
type Handlers struct {
	OnTranscription func(text string)
	OnAnalysis      func(a *models.VoiceAnalysis)
	OnError         func(msg string)
	OnConnected     func()
	OnDisconnected  func()
}

type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

type serverMessage struct {
	Type          string                `json:"type"`
	Text          string                `json:"text"`
	Transcription string                `json:"transcription"`
	Analysis      *models.VoiceAnalysis `json:"analysis"`
	Message       string                `json:"message"`
}

type Channel struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	retries *reconnect.Counter
	log     *logrus.Entry

	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	dialing  chan struct{}
	dialErr  error
	closed   bool
	timer    *time.Timer
	pending  bool
	exchange string
	seq      int

	subsMu sync.RWMutex
	subs   map[int]Handlers
	nextID int
}

type Option func(*Channel)

func WithPolicy(p reconnect.Policy) Option {
	return func(c *Channel) { c.retries = reconnect.NewCounter(p) }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Channel) { c.log = logger.Component(l, "transcription") }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

func WithHeader(h http.Header) Option {
	return func(c *Channel) { c.header = h }
}

func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:    url,
		dialer: websocket.DefaultDialer,
		subs:   make(map[int]Handlers),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retries == nil {
		c.retries = reconnect.NewCounter(reconnect.DefaultPolicy())
	}
	if c.log == nil {
		c.log = logger.Component(nil, "transcription")
	}
	return c
}

// Subscribe registers h and returns a function removing it.
func (c *Channel) Subscribe(h Handlers) func() {
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = h
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

// Connect dials the service unless a connection is open or being opened.
// It re-arms the reconnect budget.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.closed = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.retries.Reset()
	return c.dial(ctx)
}

func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// awaiting reports whether an end was sent and no result has arrived yet.
func (c *Channel) awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Disconnect closes the socket without scheduling a reconnect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.pending = false
	c.exchange = ""
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()

	c.log.Info("disconnected")
	c.each(func(h Handlers) {
		if h.OnDisconnected != nil {
			h.OnDisconnected()
		}
	})
}

// SendAudioChunk frames chunk as base64. Empty chunks are dropped; so is
// every chunk while the socket is not open.
func (c *Channel) SendAudioChunk(chunk []byte) error {
	const op = "Channel.SendAudioChunk"

	if len(chunk) == 0 {
		c.log.Debug("empty audio chunk dropped")
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		c.log.WithField("chunk_bytes", len(chunk)).Warn("not connected, audio chunk dropped")
		return nil
	}
	if c.exchange == "" {
		c.exchange = uuid.NewString()
		c.seq = 0
	}
	c.seq++
	exchange, seq := c.exchange, c.seq
	c.mu.Unlock()

	payload, err := json.Marshal(clientMessage{
		Type: TypeAudioChunk,
		Data: base64.StdEncoding.EncodeToString(chunk),
	})
	if err != nil {
		return utils.E(utils.CodeInternal, op, "encode audio chunk", err)
	}
	if err := c.write(conn, payload); err != nil {
		return utils.E(utils.CodeUnavailable, op, "send audio chunk", err)
	}

	c.log.WithFields(logrus.Fields{
		"exchange_id": exchange,
		"seq":         seq,
		"chunk_bytes": len(chunk),
	}).Debug("audio chunk sent")
	return nil
}

// EndTranscription signals the end of the current recording. The result is
// delivered to the subscribed handlers.
func (c *Channel) EndTranscription() error {
	const op = "Channel.EndTranscription"

	c.mu.Lock()
	conn := c.conn
	exchange := c.exchange
	c.mu.Unlock()

	if conn == nil {
		c.log.Warn("not connected, end of transcription not sent")
		return ErrNotConnected
	}

	payload, _ := json.Marshal(clientMessage{Type: TypeEnd})
	if err := c.write(conn, payload); err != nil {
		return utils.E(utils.CodeUnavailable, op, "send end", err)
	}

	c.mu.Lock()
	c.pending = true
	c.mu.Unlock()

	c.log.WithField("exchange_id", exchange).Info("end of transcription sent")
	return nil
}

func (c *Channel) write(conn *websocket.Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Channel) dial(ctx context.Context) error {
	const op = "Channel.Connect"

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if wait := c.dialing; wait != nil {
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			return nil
		}
		return utils.E(utils.CodeUnavailable, op, "dial transcription service", c.dialErr)
	}
	done := make(chan struct{})
	c.dialing = done
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)

	c.mu.Lock()
	c.dialing = nil
	c.dialErr = err
	if err == nil && c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		close(done)
		return utils.E(utils.CodeUnavailable, op, "channel closed while dialing", nil)
	}
	if err == nil {
		c.conn = conn
	}
	c.mu.Unlock()
	close(done)

	if err != nil {
		c.log.WithError(err).WithField("url", c.url).Warn("dial failed")
		return utils.E(utils.CodeUnavailable, op, "dial transcription service", err)
	}

	c.log.WithField("url", c.url).Info("connected")
	go c.readLoop(conn)
	c.each(func(h Handlers) {
		if h.OnConnected != nil {
			h.OnConnected()
		}
	})
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.onClosed(conn, err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		// a talking server counts as a healthy connection
		c.retries.Reset()
		c.handle(data)
	}
}

func (c *Channel) handle(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.WithError(err).Warn("malformed server message")
		c.reportError(MsgMalformed)
		return
	}

	switch msg.Type {
	case TypeTranscription:
		c.resolve()
		c.each(func(h Handlers) {
			if h.OnTranscription != nil {
				h.OnTranscription(msg.Text)
			}
		})
	case TypeFinalResult:
		c.resolve()
		analysis := msg.Analysis.Normalized()
		c.each(func(h Handlers) {
			if h.OnTranscription != nil {
				h.OnTranscription(msg.Transcription)
			}
			if analysis != nil && h.OnAnalysis != nil {
				h.OnAnalysis(analysis)
			}
		})
	case TypeError:
		c.resolve()
		c.log.WithField("message", msg.Message).Warn("server reported an error")
		c.reportError(msg.Message)
	default:
		c.log.WithField("type", msg.Type).Debug("unknown message type")
	}
}

func (c *Channel) resolve() {
	c.mu.Lock()
	c.pending = false
	c.exchange = ""
	c.mu.Unlock()
}

func (c *Channel) onClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// replaced or closed by Disconnect
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = false
	c.exchange = ""
	explicit := c.closed
	c.mu.Unlock()

	_ = conn.Close()
	c.log.WithError(err).Warn("connection closed")

	c.each(func(h Handlers) {
		if h.OnDisconnected != nil {
			h.OnDisconnected()
		}
	})
	if pending {
		c.reportError(MsgLost)
	}
	if !explicit {
		c.scheduleReconnect()
	}
}

func (c *Channel) scheduleReconnect() {
	delay, attempt, ok := c.retries.Next()
	if !ok {
		c.log.WithField("attempts", c.retries.Attempts()).Error("reconnect attempts exhausted")
		c.reportError(MsgUnavailable)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.log.WithFields(logrus.Fields{
		"attempt": attempt,
		"delay":   delay.String(),
	}).Info("reconnect scheduled")
	c.timer = time.AfterFunc(delay, c.reconnect)
}

func (c *Channel) reconnect() {
	c.mu.Lock()
	skip := c.closed || c.conn != nil || c.dialing != nil
	c.timer = nil
	c.mu.Unlock()
	if skip {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.scheduleReconnect()
	}
}

func (c *Channel) reportError(msg string) {
	c.each(func(h Handlers) {
		if h.OnError != nil {
			h.OnError(msg)
		}
	})
}

func (c *Channel) each(fn func(h Handlers)) {
	c.subsMu.RLock()
	hs := make([]Handlers, 0, len(c.subs))
	for _, h := range c.subs {
		hs = append(hs, h)
	}
	c.subsMu.RUnlock()

	for _, h := range hs {
		fn(h)
	}
}
