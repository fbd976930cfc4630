// Package tts synthesizes interviewer questions through the speech service
// and plays the returned audio.
package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/providers/reconnect"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

const (
	DefaultVoice      = "xenia"
	DefaultSampleRate = 48000
)

const (
	readyTimeout = 5 * time.Second
	pollInterval = 100 * time.Millisecond
	writeTimeout = 10 * time.Second
	dialTimeout  = 10 * time.Second
)

var (
	// ErrSpeakInFlight rejects a Speak issued while another one is waiting for audio.
	ErrSpeakInFlight = errors.New("speech synthesis already in progress")
	ErrNotReady      = errors.New("speech service connection is not ready")
	ErrConnLost      = errors.New("speech service connection lost")
)

type request struct {
	Text       string `json:"text"`
	Speaker    string `json:"speaker"`
	SampleRate int    `json:"sample_rate"`
}

type result struct {
	audio []byte
	err   error
}

// Client talks to the streaming synthesis service. The service answers each
// request with one binary message and carries no correlation id, so the
// first binary message after a request is taken as its answer. Only one
// request may be outstanding.
type Client struct {
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
	inFlight bool
	waiter   chan result
}

type Option func(*Client)

func WithPolicy(p reconnect.Policy) Option {
	return func(c *Client) { c.retries = reconnect.NewCounter(p) }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = logger.Component(l, "tts") }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{url: url, dialer: websocket.DefaultDialer}
	for _, o := range opts {
		o(c)
	}
	if c.retries == nil {
		c.retries = reconnect.NewCounter(reconnect.DefaultPolicy())
	}
	if c.log == nil {
		c.log = logger.Component(nil, "tts")
	}
	return c
}

// Connect opens the socket unless it is open or opening.
func (c *Client) Connect(ctx context.Context) error {
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

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Disconnect closes the socket and cancels any scheduled reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	w := c.waiter
	c.waiter = nil
	c.mu.Unlock()

	if w != nil {
		w <- result{err: ErrConnLost}
	}
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
}

// Speak synthesizes text and returns the encoded audio. voice and sampleRate
// fall back to DefaultVoice and DefaultSampleRate when zero.
func (c *Client) Speak(ctx context.Context, text, voice string, sampleRate int) ([]byte, error) {
	const op = "Client.Speak"

	if strings.TrimSpace(text) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "text is required", nil)
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrSpeakInFlight
	}
	c.inFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.waiter = nil
		c.mu.Unlock()
	}()

	if !c.IsConnected() {
		if err := c.dial(ctx); err != nil {
			return nil, utils.E(utils.CodeUnavailable, op, "could not connect to speech service", err)
		}
	}
	conn, err := c.waitReady(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "connection not ready", err)
	}

	waiter := make(chan result, 1)
	c.mu.Lock()
	c.waiter = waiter
	c.mu.Unlock()

	payload, err := json.Marshal(request{Text: text, Speaker: voice, SampleRate: sampleRate})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "encode request", err)
	}
	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "send request", err)
	}

	c.log.WithFields(logrus.Fields{
		"chars":       len([]rune(text)),
		"speaker":     voice,
		"sample_rate": sampleRate,
	}).Info("synthesis requested")

	select {
	case r := <-waiter:
		if r.err != nil {
			return nil, utils.E(utils.CodeUnavailable, op, "synthesis failed", r.err)
		}
		c.log.WithField("audio_bytes", len(r.audio)).Info("synthesis received")
		return r.audio, nil
	case <-ctx.Done():
		c.drop(conn)
		return nil, utils.E(utils.CodeTimeout, op, "synthesis cancelled", ctx.Err())
	}
}

// drop closes conn without scheduling a reconnect. The audio of an abandoned
// request must not be read as the answer to the next one; Speak dials anew.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	_ = conn.Close()
	c.log.Info("connection dropped after a cancelled request")
}

// waitReady polls until the socket is open, failing fast once no dial is
// in progress and after readyTimeout at most.
func (c *Client) waitReady(ctx context.Context) (*websocket.Conn, error) {
	deadline := time.NewTimer(readyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		conn, dialing := c.conn, c.dialing != nil
		c.mu.Unlock()
		if conn != nil {
			return conn, nil
		}
		if !dialing {
			return nil, ErrNotReady
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			return nil, ErrNotReady
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) dial(ctx context.Context) error {
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
		return c.dialErr
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
		return ErrConnLost
	}
	if err == nil {
		c.conn = conn
	}
	c.mu.Unlock()
	close(done)

	if err != nil {
		c.log.WithError(err).WithField("url", c.url).Warn("dial failed")
		return err
	}
	c.log.WithField("url", c.url).Info("connected")
	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.onClosed(conn, err)
			return
		}
		c.retries.Reset()
		if mt != websocket.BinaryMessage {
			c.log.WithField("payload", string(data)).Debug("text message ignored")
			continue
		}

		c.mu.Lock()
		w := c.waiter
		c.waiter = nil
		c.mu.Unlock()
		if w == nil {
			c.log.WithField("audio_bytes", len(data)).Warn("unsolicited audio dropped")
			continue
		}
		w <- result{audio: data}
	}
}

func (c *Client) onClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	w := c.waiter
	c.waiter = nil
	explicit := c.closed
	c.mu.Unlock()

	_ = conn.Close()
	c.log.WithError(err).Warn("connection closed")
	if w != nil {
		w <- result{err: ErrConnLost}
	}
	if !explicit {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	delay, attempt, ok := c.retries.Next()
	if !ok {
		c.log.WithField("attempts", c.retries.Attempts()).Error("reconnect attempts exhausted")
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

func (c *Client) reconnect() {
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
