package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/interview"
	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// EventSource hands out interview event subscriptions.
type EventSource interface {
	Subscribe(buffer int) (<-chan interview.Event, func())
	Subscribers() int
}

type WSHandler struct {
	iv       Interview
	events   EventSource
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewWSHandler(iv Interview, events EventSource, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		iv:     iv,
		events: events,
		upgrader: websocket.Upgrader{
			// the control API listens on loopback by default
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.Component(log, "ws"),
	}
}

type wsClientMsg struct {
	Type      string `json:"type"`
	VacancyID string `json:"vacancy_id"`
}

type wsServerMsg struct {
	Type    string              `json:"type"`
	Code    utils.Code          `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	State   *interview.Snapshot `json:"state,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// Events streams interview events and accepts the same commands as the
// REST endpoints: start, enable_camera, start_recording, stop_recording,
// rerecord, submit, exit.
func (h *WSHandler) Events(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := h.events.Subscribe(128)
	defer unsubscribe()
	h.log.WithField("subscribers", h.events.Subscribers()).Info("event stream opened")

	snap := h.iv.Snapshot()
	if err := wc.writeJSON(wsServerMsg{Type: "state", State: &snap}); err != nil {
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeJSON(wsServerMsg{Type: "error", Code: utils.CodeInvalidArgument, Message: "invalid json"})
				continue
			}
			h.command(ctx, wc, msg)
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := wc.writeJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) command(ctx context.Context, wc *wsConn, msg wsClientMsg) {
	var err error
	switch msg.Type {
	case "start":
		err = h.iv.Start(ctx, msg.VacancyID)
	case "enable_camera":
		if !h.iv.EnableCamera(ctx) {
			err = utils.E(utils.CodeFailedPrecondition, "WSHandler.command", "unable to access the camera", nil)
		}
	case "start_recording":
		err = h.iv.StartRecording(ctx)
	case "stop_recording":
		err = h.iv.StopRecording(ctx)
	case "rerecord":
		err = h.iv.Rerecord(ctx)
	case "submit":
		// submission uploads the video; keep reading commands meanwhile
		go func() {
			if serr := h.iv.Submit(ctx); serr != nil {
				h.reply(wc, msg.Type, serr)
			}
		}()
		return
	case "exit":
		err = h.iv.Exit(ctx)
	default:
		err = utils.E(utils.CodeInvalidArgument, "WSHandler.command", "unknown message type", nil)
	}
	if err != nil {
		h.reply(wc, msg.Type, err)
	}
}

func (h *WSHandler) reply(wc *wsConn, command string, err error) {
	out := wsServerMsg{Type: "error", Code: utils.CodeInternal, Message: "internal error"}
	var ae *utils.AppError
	if errors.As(err, &ae) {
		out.Code = ae.Code
		out.Message = ae.Message
	}
	h.log.WithError(err).WithField("command", command).Debug("command rejected")
	_ = wc.writeJSON(out)
}
