// Package httpapi exposes the engine's only two HTTP surfaces: a health
// check and the WebSocket upgrade endpoint that hands a request off to the
// Connection Supervisor (spec §4.5, §6).
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/jycamier/chatfanout/backend/internal/auth"
	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/config"
	"github.com/jycamier/chatfanout/backend/internal/ipenrich"
	"github.com/jycamier/chatfanout/backend/internal/middleware"
	"github.com/jycamier/chatfanout/backend/internal/router"
	"github.com/jycamier/chatfanout/backend/internal/store"
	"github.com/jycamier/chatfanout/backend/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler wires the Session Authenticator and Store Gateway to the
// Connection Supervisor for each accepted upgrade.
type Handler struct {
	auth     *auth.Authenticator
	store    store.Store
	bus      bus.Bus
	router   *router.Router
	enricher *ipenrich.Worker
}

func NewHandler(a *auth.Authenticator, st store.Store, b bus.Bus, r *router.Router, enricher *ipenrich.Worker) *Handler {
	return &Handler{auth: a, store: st, bus: b, router: r, enricher: enricher}
}

// NewRouter builds the chi router: CORS for ordinary routes, no CORS
// middleware on /ws since browsers don't preflight WebSocket upgrades.
func NewRouter(cfg *config.Config, h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SlogLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/ws", h.HandleUpgrade)

	return r
}

// HandleUpgrade runs the PRE_OPEN entry sequence (spec §4.5): origin check,
// session authentication, then the socket upgrade and handoff to the
// Connection Supervisor. Auth failures and origin mismatches both reject
// with 403, never distinguishing the reason in the response body.
func (h *Handler) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !checkOrigin(r) {
		slog.Warn("httpapi: rejected upgrade, origin/host mismatch", "origin", r.Header.Get("Origin"), "host", r.Host)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	identity, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	user, err := h.store.GetUser(r.Context(), identity.UserID)
	if err != nil {
		slog.Error("httpapi: load user for session failed", "user_id", identity.UserID, "error", err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("httpapi: upgrade failed", "error", err)
		return
	}

	c, err := ws.New(r.Context(), conn, user, clientIP(r), h.bus, h.router, h.store, h.enricher)
	if err != nil {
		slog.Error("httpapi: connection handshake failed", "user_id", user.ID, "error", err)
		_ = conn.Close()
		return
	}

	// Run outlives this request: the request's context (and its 60s
	// Timeout middleware deadline) must not cancel a live socket.
	go c.Run(context.Background())
}

// checkOrigin rejects the upgrade when Origin or Host is missing, or when
// the Origin's host (port stripped) doesn't match Host case-insensitively.
// Spec §9 Open Question #2 resolves the missing-header case as a reject.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || r.Host == "" {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	return strings.EqualFold(u.Hostname(), hostWithoutPort(r.Host))
}

func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func clientIP(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}
	return r.RemoteAddr
}
