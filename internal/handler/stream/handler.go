package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	chatHandler "github.com/zhouzirui/streamchat/internal/handler/chat"
	"github.com/zhouzirui/streamchat/internal/model/chat"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
	"github.com/zhouzirui/streamchat/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Engine is the part of the transcript engine the SSE endpoints need.
type Engine interface {
	Transcript() []chat.Message
	Subscribe(buffer int) *chatService.Subscription
	SubmitAsync(ctx context.Context, text string) (chat.StreamSession, <-chan struct{}, error)
}

// Handler streams transcript changes over Server-Sent Events.
type Handler struct {
	baseCtx context.Context
	engine  Engine
	log     logrus.FieldLogger
}

// New creates a stream handler. Sessions run on baseCtx.
func New(baseCtx context.Context, engine Engine) *Handler {
	return &Handler{
		baseCtx: baseCtx,
		engine:  engine,
		log:     logrus.WithField("component", "stream"),
	}
}

// RegisterRoutes mounts the SSE routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.handleStream)
	r.Get("/events", h.handleEvents)
}

// StreamResponse is one frame of GET /stream.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	// Subscribe first so no event of the new session is missed.
	sub := h.engine.Subscribe(0)
	defer sub.Close()

	session, done, err := h.engine.SubmitAsync(h.baseCtx, message)
	if err != nil {
		utils.RespondError(w, chatHandler.SubmitErrorStatus(err), err.Error())
		return
	}

	utils.SetupSSEHeaders(w)
	if err := h.relaySession(r.Context(), w, flusher, sub, session, done); err != nil {
		h.log.WithError(err).WithField("session", session.ID).Info("[stream] client stream closed early")
		return
	}
	h.log.WithField("session", session.ID).Debug("[stream] completed response")
}

// relaySession forwards one session's events until it finishes or the
// client leaves. The session itself keeps running either way.
func (h *Handler) relaySession(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sub *chatService.Subscription, session chat.StreamSession, done <-chan struct{}) error {
	send := func(resp StreamResponse) error {
		resp.SessionID = session.ID
		return utils.SendSSEChunk(w, flusher, resp)
	}

	if err := send(StreamResponse{Event: "start", MessageID: session.AssistantMessageID}); err != nil {
		return err
	}

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				// Dropped for lagging; report the settled result instead.
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}
				return h.sendFinal(send, session)
			}
			if ev.SessionID != session.ID {
				continue
			}

			switch ev.Kind {
			case chat.EventDelta:
				if err := send(StreamResponse{Event: "delta", Content: ev.Delta}); err != nil {
					return err
				}
			case chat.EventReplaced:
				if err := send(StreamResponse{Event: "error", Content: ev.Content, Error: "stream failed"}); err != nil {
					return err
				}
			case chat.EventIdle:
				if !ev.Failed {
					if err := send(StreamResponse{Event: "message", Content: ev.Content}); err != nil {
						return err
					}
				}
				return send(StreamResponse{Event: "end", Finished: true})
			}
		}
	}
}

func (h *Handler) sendFinal(send func(StreamResponse) error, session chat.StreamSession) error {
	var content string
	for _, msg := range h.engine.Transcript() {
		if msg.ID == session.AssistantMessageID {
			content = msg.Content
			break
		}
	}

	if content == chat.ErrorMarker {
		if err := send(StreamResponse{Event: "error", Content: content, Error: "stream failed"}); err != nil {
			return err
		}
	} else if err := send(StreamResponse{Event: "message", Content: content}); err != nil {
		return err
	}
	return send(StreamResponse{Event: "end", Finished: true})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.engine.Subscribe(0)
	defer sub.Close()

	utils.SetupSSEHeaders(w)
	ctx := r.Context()
	log := h.log.WithField("request", r.Header.Get("X-Request-Id"))
	log.Debug("[sse] opening event feed")

	if err := sendEvent(w, flusher, sub.Snapshot); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("[sse] closing event feed")
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				// EventSource reconnects on its own and gets a fresh snapshot.
				_ = utils.SendSSEEvent(w, flusher, "lagged", map[string]bool{"lagged": true})
				log.Warn("[sse] subscriber lagged, closing feed")
				return
			}
			if err := sendEvent(w, flusher, ev); err != nil {
				return
			}
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, ev chat.Event) error {
	if err := utils.SendSSEEvent(w, flusher, string(ev.Kind), ev); err != nil {
		return fmt.Errorf("event %d: %w", ev.Version, err)
	}
	return nil
}
