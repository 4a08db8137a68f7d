package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	"github.com/zhouzirui/streamchat/internal/service/ai"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
	"github.com/zhouzirui/streamchat/pkg/utils"
)

// Engine is the part of the transcript engine this handler drives.
type Engine interface {
	Transcript() []chat.Message
	State() chat.State
	SubmitAsync(ctx context.Context, text string) (chat.StreamSession, <-chan struct{}, error)
}

// Completer answers a prompt in one call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Handler serves the REST side of the chat.
type Handler struct {
	baseCtx   context.Context
	engine    Engine
	completer Completer
}

// New creates a chat handler. Sessions started here run on baseCtx so a
// client hanging up does not cut its reply short.
func New(baseCtx context.Context, engine Engine, completer Completer) *Handler {
	return &Handler{
		baseCtx:   baseCtx,
		engine:    engine,
		completer: completer,
	}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/transcript", h.handleTranscript)
	r.Post("/messages", h.handleSubmit)
	r.Post("/complete", h.handleComplete)
}

// TranscriptResponse is the body of GET /transcript.
type TranscriptResponse struct {
	State    chat.State     `json:"state"`
	Messages []chat.Message `json:"messages"`
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, TranscriptResponse{
		State:    h.engine.State(),
		Messages: h.engine.Transcript(),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, _, err := h.engine.SubmitAsync(h.baseCtx, payload.Content)
	if err != nil {
		status := SubmitErrorStatus(err)
		if status == http.StatusInternalServerError {
			logrus.WithError(err).Error("[chat] submit failed")
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, session)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(payload.Message)
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	content, err := h.completer.Complete(r.Context(), message)
	if err != nil {
		logrus.WithError(err).Warn("[chat] completion failed")
		utils.RespondError(w, http.StatusBadGateway, ai.CompletionErrorText)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"content": content})
}

// SubmitErrorStatus maps an engine rejection to an HTTP status.
func SubmitErrorStatus(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrAlreadyStreaming):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
