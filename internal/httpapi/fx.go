package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/config"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Provide(NewRouter),
	fx.Invoke(StartServer),
)

// StartServer starts the HTTP server with fx lifecycle management, mirroring
// the teacher's handlers.StartServer.
func StartServer(lc fx.Lifecycle, cfg *config.Config, r *chi.Mux) {
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				slog.Info("httpapi: server starting", "port", cfg.Port)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("httpapi: server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			slog.Info("httpapi: shutting down server")
			return srv.Shutdown(ctx)
		},
	})
}
