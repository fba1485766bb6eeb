package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	httpapi "github.com/yourorg/rental-api/http"
	"github.com/yourorg/rental-api/internal/logger"
)

func BuildRouter(search httpapi.Searcher, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(100, 1*time.Minute)) // protect partner quota
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]any{"ok": true})
	})

	httpapi.RegisterMyChoize(r, httpapi.MyChoizeDeps{Search: search, Logger: log})

	return r
}
