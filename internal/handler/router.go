package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/streamchat/internal/handler/chat"
	"github.com/zhouzirui/streamchat/internal/handler/stream"
	"github.com/zhouzirui/streamchat/internal/handler/web"
	"github.com/zhouzirui/streamchat/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/streamchat/internal/middleware"
	"github.com/zhouzirui/streamchat/internal/service/ai"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
	"github.com/zhouzirui/streamchat/pkg/utils"
)

// NewRouter wires HTTP routes to the transcript engine. Submissions started
// over HTTP run on baseCtx, which should live as long as the server.
func NewRouter(baseCtx context.Context, engine *chatService.Engine, source ai.Source) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(baseCtx, engine, source)
	streamHandler := stream.New(baseCtx, engine)
	wsHandler := ws.New(baseCtx, engine)

	web.RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"state":  string(engine.State()),
		})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
