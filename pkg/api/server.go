package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/failover"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/placement"
	"github.com/cuemby/burrow/pkg/reservation"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Config wires the server to the services it fronts. Planner, Reservations
// and Failover are required; Scheduler is optional.
type Config struct {
	Store        storage.Store
	Planner      *placement.Planner
	Reservations *reservation.Service
	Failover     *failover.Manager
	Scheduler    *scheduler.Scheduler

	// ReadOnly rejects every mutating request
	ReadOnly bool
}

// Server is the burrow HTTP API
type Server struct {
	cfg    Config
	router chi.Router
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates an API server and builds its routes
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Planner == nil || cfg.Reservations == nil || cfg.Failover == nil {
		return nil, fmt.Errorf("api server requires a store, planner, reservation service and failover manager")
	}

	s := &Server{
		cfg:    cfg,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler, for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.ReadOnly {
			r.Use(ReadOnly)
		}

		r.Route("/namespaces", func(r chi.Router) {
			r.Get("/", s.listNamespaces)
			r.Post("/", s.createNamespace)
			r.Post("/shards", s.createShards)
			r.Delete("/{backend}/{namespace}", s.deleteNamespace)
		})
		r.Get("/mountpath", s.mountPath)

		r.Route("/pools", func(r chi.Router) {
			r.Get("/", s.listPools)
			r.Post("/", s.createPool)
			r.Route("/{pool}", func(r chi.Router) {
				r.Get("/", s.getPool)
				r.Delete("/", s.deletePool)
				r.Post("/members", s.addMember)
				r.Delete("/members/{host}", s.removeMember)
				r.Post("/validate", s.validatePool)
				r.Get("/unreserved", s.unreservedHost)
			})
		})

		r.Route("/leases", func(r chi.Router) {
			r.Get("/", s.listLeases)
			r.Post("/", s.createLease)
			r.Route("/{lease}", func(r chi.Router) {
				r.Get("/", s.getLease)
				r.Delete("/", s.deleteLease)
				r.Post("/install", s.leaseAction((*reservation.Lease).Install))
				r.Post("/uninstall", s.leaseAction((*reservation.Lease).Uninstall))
				r.Post("/monitor", s.leaseAction((*reservation.Lease).Monitor))
				r.Get("/power", s.powerStatus)
				r.Post("/power/on", s.leaseAction((*reservation.Lease).PowerOn))
				r.Post("/power/off", s.leaseAction((*reservation.Lease).PowerOff))
				r.Post("/power/cycle", s.leaseAction((*reservation.Lease).PowerCycle))
				r.Put("/boot", s.configureBoot)
			})
		})

		r.Route("/gateways", func(r chi.Router) {
			r.Get("/", s.listPairs)
			r.Post("/", s.createPair)
			r.Route("/{pair}", func(r chi.Router) {
				r.Get("/", s.getPair)
				r.Delete("/", s.deletePair)
				r.Post("/tick", s.tickPair)
				r.Post("/shards/monitor", s.monitorShards)
			})
		})

		r.Get("/actions", s.listActions)
		r.Post("/actions/{name}/run", s.runAction)
	})

	return r
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrDuplicateMember):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNoNamespaceAvailability),
		errors.Is(err, types.ErrNoFreeHosts),
		errors.Is(err, types.ErrAlreadyPresent),
		errors.Is(err, types.ErrStateCheck):
		return http.StatusConflict
	case errors.Is(err, types.ErrServiceNotInstalled), errors.Is(err, types.ErrInvalidBackingService):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrRemoteCall):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: types.ErrorKind(err)})
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", types.ErrValidation, err)
	}
	return nil
}
