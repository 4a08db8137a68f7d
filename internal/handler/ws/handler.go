package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Engine is the part of the transcript engine the socket needs.
type Engine interface {
	Subscribe(buffer int) *chatService.Subscription
	SubmitAsync(ctx context.Context, text string) (chat.StreamSession, <-chan struct{}, error)
}

// Handler pushes transcript events to browsers and accepts submissions.
type Handler struct {
	baseCtx  context.Context
	engine   Engine
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// New creates a WebSocket handler. Sessions run on baseCtx.
func New(baseCtx context.Context, engine Engine) *Handler {
	return &Handler{
		baseCtx: baseCtx,
		engine:  engine,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logrus.WithField("component", "ws"),
	}
}

// RegisterRoutes mounts the socket route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(outgoingMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("[ws] upgrade failed")
		return
	}
	defer wsConn.Close()

	c := &conn{ws: wsConn}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		// Closing unblocks readLoop once the writer gives up.
		defer wsConn.Close()
		h.writeLoop(ctx, c)
	}()

	h.readLoop(ctx, c)
	cancel()
	wg.Wait()
}

// readLoop handles client commands until the socket closes.
func (h *Handler) readLoop(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Info("[ws] connection closed unexpectedly")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = c.send("rejected", map[string]string{"error": "invalid message"})
			continue
		}

		switch msg.Type {
		case "submit":
			h.submit(c, msg.Text)
		case "ping":
			_ = c.send("pong", nil)
		default:
			_ = c.send("rejected", map[string]string{"error": "unknown message type: " + msg.Type})
		}
	}
}

func (h *Handler) submit(c *conn, text string) {
	session, _, err := h.engine.SubmitAsync(h.baseCtx, text)
	if err != nil {
		reason := "internal"
		switch {
		case errors.Is(err, chatService.ErrEmptyInput):
			reason = "empty"
		case errors.Is(err, chatService.ErrAlreadyStreaming):
			reason = "streaming"
		}
		_ = c.send("rejected", map[string]string{"error": err.Error(), "reason": reason})
		return
	}
	_ = c.send("accepted", session)
}

// writeLoop relays engine events and keeps the connection alive. A lagging
// subscription is replaced and the client gets a fresh snapshot.
func (h *Handler) writeLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		sub := h.engine.Subscribe(0)
		resubscribe, err := h.relay(ctx, c, sub, ticker)
		sub.Close()
		if err != nil || !resubscribe {
			return
		}
		h.log.Warn("[ws] subscriber lagged, resubscribing")
	}
}

func (h *Handler) relay(ctx context.Context, c *conn, sub *chatService.Subscription, ticker *time.Ticker) (bool, error) {
	if err := c.send(string(chat.EventSnapshot), sub.Snapshot); err != nil {
		return false, err
	}

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return false, err
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return sub.Lagged(), nil
			}
			if err := c.send(string(ev.Kind), ev); err != nil {
				return false, err
			}
		}
	}
}
