// Package api provides the HTTP surface of LeadPipe.
//
// It exposes JSON endpoints for leads, pipelines, custom fields, agents and
// messages, the provider configuration, and the inbound Twilio webhook. Every
// response uses the models.APIResponse envelope.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/crm"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/providercfg"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// ShutdownTimeout bounds how long Run waits for in-flight requests.
	ShutdownTimeout = 10 * time.Second
)

// Opts holds the optional dependencies of a Server.
type Opts struct {
	Addr      string
	Router    *messaging.Router
	Providers providercfg.Store
	Factory   messaging.FactoryOpts
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithRouter enables the provider and webhook endpoints.
func WithRouter(r *messaging.Router) Option {
	return func(o *Opts) { o.Router = r }
}

// WithProviderStore sets where provider configuration is persisted.
func WithProviderStore(s providercfg.Store) Option {
	return func(o *Opts) { o.Providers = s }
}

// WithFactoryOpts sets the dependencies passed to messaging.RoutesFromConfig.
func WithFactoryOpts(f messaging.FactoryOpts) Option {
	return func(o *Opts) { o.Factory = f }
}

// Server serves the LeadPipe API.
type Server struct {
	crm       *crm.Service
	router    *messaging.Router
	providers providercfg.Store
	factory   messaging.FactoryOpts
	addr      string
	mux       *http.ServeMux
	started   time.Time
}

// NewServer creates a Server backed by svc.
func NewServer(svc *crm.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		crm:       svc,
		router:    cfg.Router,
		providers: cfg.Providers,
		factory:   cfg.Factory,
		addr:      cfg.Addr,
		mux:       http.NewServeMux(),
		started:   time.Now(),
	}
	s.routes()
	slog.Debug("Server.NewServer: routes registered", "addr", s.addr, "router_set", s.router != nil, "providers_set", s.providers != nil)
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /leads", s.listLeadsHandler)
	s.mux.HandleFunc("POST /leads", s.createLeadHandler)
	s.mux.HandleFunc("GET /leads/{id}", s.getLeadHandler)
	s.mux.HandleFunc("PUT /leads/{id}", s.updateLeadHandler)
	s.mux.HandleFunc("DELETE /leads/{id}", s.deleteLeadHandler)
	s.mux.HandleFunc("POST /leads/{id}/move", s.moveLeadHandler)
	s.mux.HandleFunc("GET /leads/{id}/context", s.leadContextHandler)
	s.mux.HandleFunc("PATCH /leads/{id}/context", s.updateLeadContextHandler)
	s.mux.HandleFunc("GET /leads/{id}/messages", s.leadMessagesHandler)

	s.mux.HandleFunc("GET /pipelines", s.listPipelinesHandler)
	s.mux.HandleFunc("POST /pipelines", s.createPipelineHandler)
	s.mux.HandleFunc("GET /pipelines/{id}", s.getPipelineHandler)
	s.mux.HandleFunc("PUT /pipelines/{id}", s.updatePipelineHandler)
	s.mux.HandleFunc("DELETE /pipelines/{id}", s.deletePipelineHandler)
	s.mux.HandleFunc("POST /pipelines/{id}/default", s.defaultPipelineHandler)
	s.mux.HandleFunc("GET /pipelines/{id}/stats", s.pipelineStatsHandler)

	s.mux.HandleFunc("GET /custom-fields", s.listFieldsHandler)
	s.mux.HandleFunc("POST /custom-fields", s.createFieldHandler)
	s.mux.HandleFunc("PUT /custom-fields/{id}", s.updateFieldHandler)
	s.mux.HandleFunc("DELETE /custom-fields/{id}", s.deleteFieldHandler)
	s.mux.HandleFunc("POST /custom-fields/move", s.moveFieldHandler)

	s.mux.HandleFunc("GET /agents", s.listAgentsHandler)
	s.mux.HandleFunc("POST /agents", s.createAgentHandler)
	s.mux.HandleFunc("GET /agents/{id}", s.getAgentHandler)
	s.mux.HandleFunc("PUT /agents/{id}", s.updateAgentHandler)
	s.mux.HandleFunc("DELETE /agents/{id}", s.deleteAgentHandler)
	s.mux.HandleFunc("POST /agents/{id}/active", s.agentActiveHandler)
	s.mux.HandleFunc("POST /agents/flow", s.agentFlowHandler)
	s.mux.HandleFunc("GET /agents/graph", s.agentGraphHandler)

	s.mux.HandleFunc("GET /messages", s.listMessagesHandler)
	s.mux.HandleFunc("GET /messages/stats", s.messageStatsHandler)
	s.mux.HandleFunc("GET /messages/{id}", s.getMessageHandler)
	s.mux.HandleFunc("POST /messages/{id}/sentiment", s.sentimentHandler)
	s.mux.HandleFunc("POST /events/custom", s.customEventHandler)

	s.mux.HandleFunc("GET /provider-config", s.getProviderHandler)
	s.mux.HandleFunc("PUT /provider-config", s.putProviderHandler)
	s.mux.HandleFunc("DELETE /provider-config", s.deleteProviderHandler)
	s.mux.HandleFunc("POST /provider-config/test", s.testProviderHandler)
	s.mux.HandleFunc("POST /webhooks/twilio", s.twilioWebhookHandler)

	s.mux.HandleFunc("GET /health", s.healthHandler)
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: graceful shutdown failed", "error", err)
		return err
	}
	return nil
}

// healthHandler reports liveness and a few gauges for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}
	if stats, err := s.crm.MessageStats(ctx); err != nil {
		slog.Warn("Server.healthHandler: failed to count messages", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to fetch message metrics"
	} else {
		healthData["messages"] = stats
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
