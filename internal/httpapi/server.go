// Package httpapi implements the gateway's HTTP/SSE surface (spec.md
// §4.5): the /events stream, the single POST /api/send write endpoint,
// UI-state CRUD, read-only derived data, and the update-controller proxy
// endpoints. Routing uses gorilla/mux + gorilla/handlers: this surface
// is wide enough — a dozen-plus routes behind shared auth middleware —
// that mux's path variables earn their keep.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/command"
	"github.com/DK5EN/mcapp-gateway/internal/router"
	"github.com/DK5EN/mcapp-gateway/internal/store"
	"github.com/DK5EN/mcapp-gateway/internal/update"
	"github.com/DK5EN/mcapp-gateway/internal/weather"
)

// Server is the gateway's HTTP/SSE API (spec.md §4.5).
type Server struct {
	log     *zap.Logger
	router  *router.Router
	store   *store.Store
	cmd     *command.Engine
	hub     *hub
	apiKey  string

	weatherCache *weather.Cache
	weatherSvc   weather.Service

	updateLayout     *update.Layout
	updateEvents     *update.Broadcaster
	updateController *update.Controller

	mu          sync.RWMutex
	lastBLE     map[string]any
	lastBLERegs map[string]any
	updateRun   bool
	lastResult  *update.Result

	httpSrv *http.Server
}

type Option func(*Server)

func WithWeather(cache *weather.Cache, svc weather.Service) Option {
	return func(s *Server) { s.weatherCache, s.weatherSvc = cache, svc }
}

func WithUpdate(layout *update.Layout, events *update.Broadcaster, controller *update.Controller) Option {
	return func(s *Server) {
		s.updateLayout, s.updateEvents, s.updateController = layout, events, controller
	}
}

func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// New builds the HTTP API server and subscribes it to the router so
// every mesh message is fanned out to connected SSE clients as a
// `message` frame.
func New(log *zap.Logger, r *router.Router, st *store.Store, cmd *command.Engine, opts ...Option) *Server {
	s := &Server{
		log:         log.Named("httpapi"),
		router:      r,
		store:       st,
		cmd:         cmd,
		hub:         newHub(),
		lastBLE:     map[string]any{"connected": false, "state": "disconnected"},
		lastBLERegs: map[string]any{},
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Subscribe(router.TopicMeshMessage, s.onMeshMessage)
	r.Subscribe(router.TopicBLEStatus, s.onBLEStatus)
	r.Subscribe(router.TopicBLENotification, s.onBLENotification)
	r.Subscribe(router.TopicWebsocketDirect, s.onWebsocketDirect)

	return s
}

func (s *Server) onMeshMessage(_ string, data any) {
	s.hub.broadcast("message", data)
}

func (s *Server) onWebsocketDirect(_ string, data any) {
	s.hub.broadcast("message", data)
}

func (s *Server) onBLEStatus(_ string, data any) {
	s.mu.Lock()
	if m, ok := data.(map[string]any); ok {
		s.lastBLE = m
	}
	s.mu.Unlock()
	s.hub.broadcast("ble_status", data)
}

func (s *Server) onBLENotification(_ string, data any) {
	s.hub.broadcast("ble_notification", data)
}

func (s *Server) bleStatus() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.lastBLE))
	for k, v := range s.lastBLE {
		out[k] = v
	}
	return out
}

func (s *Server) bleRegisters() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.lastBLERegs))
	for k, v := range s.lastBLERegs {
		out[k] = v
	}
	return out
}

func (s *Server) routes() http.Handler {
	m := mux.NewRouter()

	m.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	m.HandleFunc("/api/send", s.authed(s.handleSend)).Methods(http.MethodPost)
	m.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	m.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	m.Handle("/metrics", promhttp.Handler())

	m.HandleFunc("/api/read_counts", s.authed(s.handleReadCounts)).Methods(http.MethodGet, http.MethodPost)
	m.HandleFunc("/api/hidden_destinations", s.authed(s.handleHiddenDestinations)).Methods(http.MethodGet, http.MethodPost)
	m.HandleFunc("/api/blocked_texts", s.authed(s.handleBlockedTexts)).Methods(http.MethodGet, http.MethodPost)
	m.HandleFunc("/api/mheard/sidebar", s.authed(s.handleSidebar("mheard"))).Methods(http.MethodGet, http.MethodPost)
	m.HandleFunc("/api/wx/sidebar", s.authed(s.handleSidebar("wx"))).Methods(http.MethodGet, http.MethodPost)

	m.HandleFunc("/api/weather", s.handleWeather).Methods(http.MethodGet)
	m.HandleFunc("/api/telemetry", s.handleTelemetry).Methods(http.MethodGet)
	m.HandleFunc("/api/telemetry/yearly", s.handleTelemetryYearly).Methods(http.MethodGet)
	m.HandleFunc("/api/timezone", s.handleTimezone).Methods(http.MethodGet)
	m.HandleFunc("/api/time", s.handleTime).Methods(http.MethodGet)

	m.HandleFunc("/api/update/check", s.authed(s.handleUpdateCheck)).Methods(http.MethodGet)
	m.HandleFunc("/api/update/start", s.authed(s.handleUpdateStart)).Methods(http.MethodPost)
	m.HandleFunc("/api/update/rollback", s.authed(s.handleUpdateRollback)).Methods(http.MethodPost)
	m.HandleFunc("/api/update/slots", s.authed(s.handleUpdateSlots)).Methods(http.MethodGet)
	if s.updateEvents != nil {
		m.HandleFunc("/api/update/stream", s.authed(s.updateEvents.ServeHTTP)).Methods(http.MethodGet)
	}

	return handlers.CombinedLoggingHandler(zap.NewStdLog(s.log).Writer(), m)
}

// authed enforces the single shared X-API-Key when one is configured
// (spec.md §1 Non-goals: "no user authentication beyond a single shared
// API key").
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: s.routes()}
	s.log.Info("HTTP API listening", zap.String("addr", addr))
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP API server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"clients":    s.hub.clientCount(),
		"ble_status": s.bleStatus(),
		"server_time_ms": time.Now().UnixMilli(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func zapErr(err error) zap.Field { return zap.Error(err) }
