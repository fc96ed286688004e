package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	c "github.com/patrickmn/go-cache"
)

// Config holds the engine settings applied to every session the service creates.
type Config struct {
	AutoExecute       bool
	AutoExecuteDelay  time.Duration
	PauseBlocksManual bool
	SessionTTL        time.Duration
	Clock             Clock
	Logger            *slog.Logger
}

// Service wires together definition storage, compiled graphs, live sessions and
// the HTTP surface for the workflow domain.
type Service struct {
	repo      DefinitionStore
	graphs    *c.Cache
	sessions  *SessionStore
	validator *Validator
	metrics   *Metrics
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a Service over repo. Criteria are resolved through registry.
func NewService(repo DefinitionStore, registry *Registry, cfg Config) (*Service, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry(nil)
	}
	metrics, err := NewMetrics(nil)
	if err != nil {
		return nil, err
	}
	return &Service{
		repo:      repo,
		graphs:    c.New(c.NoExpiration, 10*time.Minute),
		sessions:  NewSessionStore(cfg.SessionTTL),
		validator: NewValidator(registry, cfg.Logger).WithMetrics(metrics),
		metrics:   metrics,
		cfg:       cfg,
		logger:    cfg.Logger,
	}, nil
}

// Graph returns the compiled graph for a definition, or nil, nil if it does not exist.
// Graphs are compiled once and shared by every session of that workflow.
func (s *Service) Graph(ctx context.Context, id string) (*Graph, error) {
	if g, found := s.graphs.Get(id); found {
		return g.(*Graph), nil
	}
	def, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}
	g, err := NewGraph(def)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", id, err)
	}
	s.graphs.Set(id, g, c.DefaultExpiration)
	return g, nil
}

// StartSession creates an engine for the workflow, starts it and registers the session.
func (s *Service) StartSession(ctx context.Context, graph *Graph, autoExecute bool) (*Session, error) {
	engine := NewEngine(graph, Options{
		AutoExecute:       autoExecute,
		AutoExecuteDelay:  s.cfg.AutoExecuteDelay,
		PauseBlocksManual: s.cfg.PauseBlocksManual,
		Clock:             s.cfg.Clock,
		Logger:            s.logger,
		Validator:         s.validator,
	})
	sub := s.metrics.Observe(graph.Definition().ID, engine.Dispatcher())
	if err := engine.Start(ctx); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	return s.sessions.Add(graph.Definition().ID, engine, sub), nil
}

// Sessions exposes the live session store.
func (s *Service) Sessions() *SessionStore { return s.sessions }

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers workflow and session HTTP handlers on the given router.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	workflows := parentRouter.PathPrefix("/workflows").Subrouter()
	workflows.StrictSlash(false)
	workflows.Use(jsonMiddleware)

	workflows.HandleFunc("", s.HandleListWorkflows).Methods("GET")
	workflows.HandleFunc("/{id}", s.HandleGetWorkflow).Methods("GET")
	workflows.HandleFunc("/{id}/sessions", s.HandleCreateSession).Methods("POST")

	sessions := parentRouter.PathPrefix("/sessions").Subrouter()
	sessions.StrictSlash(false)
	sessions.Use(jsonMiddleware)

	sessions.HandleFunc("/{sid}", s.HandleGetSession).Methods("GET")
	sessions.HandleFunc("/{sid}", s.HandleDeleteSession).Methods("DELETE")
	sessions.HandleFunc("/{sid}/{action:start|pause|resume|stop|reset}", s.HandleLifecycle).Methods("POST")
	sessions.HandleFunc("/{sid}/navigate", s.HandleNavigate).Methods("POST")
	sessions.HandleFunc("/{sid}/nodes/{nodeId}/complete", s.HandleCompleteNode).Methods("POST")
	sessions.HandleFunc("/{sid}/nodes/{nodeId}/error", s.HandleNodeError).Methods("POST")
	sessions.HandleFunc("/{sid}/validate", s.HandleValidate).Methods("GET")
	sessions.HandleFunc("/{sid}/compliance", s.HandleCompliance).Methods("GET")
	sessions.HandleFunc("/{sid}/audit", s.HandleAudit).Methods("GET")
}
