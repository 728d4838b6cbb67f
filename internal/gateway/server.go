// Package gateway provides the HTTP server that receives pushed events.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lchbot/internal/event"
	"lchbot/internal/gateway/handlers"
	"lchbot/internal/gateway/middleware"
	"lchbot/internal/metrics"
	"lchbot/internal/plugin"
	"lchbot/pkg/logger"
)

// maxEventBody bounds an inbound event payload.
const maxEventBody = 1 << 20

// Version is stamped at build time.
var Version = "dev"

// Server is the event ingestion server. Each inbound request is normalized
// and dispatched independently; there is no global lock around dispatch, so
// a slow handler stalls only its own request.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	normalizer *event.Normalizer
	dispatcher *plugin.Dispatcher
	manager    *plugin.Manager
	addr       string
}

// NewServer creates a gateway server.
func NewServer(host string, port int, normalizer *event.Normalizer, dispatcher *plugin.Dispatcher, manager *plugin.Manager) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:     router,
		normalizer: normalizer,
		dispatcher: dispatcher,
		manager:    manager,
		addr:       fmt.Sprintf("%s:%d", host, port),
	}
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      middleware.Recovery(middleware.Logging(router)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	router.HandleFunc("/", s.handleEvent).Methods(http.MethodPost)
	router.HandleFunc("/healthz", handlers.HealthHandler(Version)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/plugins", s.handleListPlugins).Methods(http.MethodGet)
	router.HandleFunc("/plugins/{id}/enable", s.handleEnablePlugin).Methods(http.MethodPost)
	router.HandleFunc("/plugins/{id}/disable", s.handleDisablePlugin).Methods(http.MethodPost)

	return s
}

// handleEvent accepts one pushed event per request: normalize, then
// dispatch. Normalization failure is the only client error; whether any
// plugin handled the event does not change the status code.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		metrics.EventsRejected.Inc()
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidEvent, "read body")
		return
	}

	ev, err := s.normalizer.Normalize(body)
	if err != nil {
		metrics.EventsRejected.Inc()
		logger.Warn().Err(err).Msg("rejected inbound event")
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidEvent, err.Error())
		return
	}

	metrics.EventsReceived.WithLabelValues(string(ev.Kind)).Inc()

	// Once accepted, dispatch runs to completion even if the pushing
	// gateway drops the connection; outbound calls bound their own time.
	handled := s.dispatcher.Dispatch(context.WithoutCancel(r.Context()), ev)

	handlers.SendJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"handled": handled,
	})
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	handlers.SendJSON(w, http.StatusOK, map[string]any{
		"plugins": s.manager.All(),
	})
}

func (s *Server) handleEnablePlugin(w http.ResponseWriter, r *http.Request) {
	s.setPluginState(w, r, s.manager.Enable)
}

func (s *Server) handleDisablePlugin(w http.ResponseWriter, r *http.Request) {
	s.setPluginState(w, r, s.manager.Disable)
}

func (s *Server) setPluginState(w http.ResponseWriter, r *http.Request, op func(string) error) {
	id := mux.Vars(r)["id"]
	if err := op(id); err != nil {
		if errors.Is(err, plugin.ErrUnknownPlugin) {
			handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, err.Error())
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, err.Error())
		return
	}
	info, _ := s.manager.GetByID(id)
	handlers.SendJSON(w, http.StatusOK, info)
}

// Router returns the underlying router, for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	handlers.InitStartTime()

	logger.Info().Str("addr", s.addr).Msg("starting event ingestion server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("shutting down event ingestion server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
