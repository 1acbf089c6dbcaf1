package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liangxiao/meya/backend/internal/config"
	"github.com/liangxiao/meya/backend/internal/handler/chat"
	"github.com/liangxiao/meya/backend/internal/handler/stream"
	middlewarePkg "github.com/liangxiao/meya/backend/internal/middleware"
	chatService "github.com/liangxiao/meya/backend/internal/service/chat"
	"github.com/liangxiao/meya/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. streamHandler may be nil when
// the model is not configured; the query endpoint then reports unavailable.
func NewRouter(serverCfg config.ServerConfig, chatSvc *chatService.Service, streamHandler *stream.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(serverCfg.AllowedOrigin))

	chatHandler := chat.New(chatSvc)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)

		if streamHandler != nil {
			streamHandler.RegisterRoutes(api)
		} else {
			api.Get("/query", func(w http.ResponseWriter, r *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
			})
		}
	})

	return r
}
