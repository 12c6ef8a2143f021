// Package api provides the HTTP surface of sindico.
//
// It exposes RESTful endpoints for the chat wizard, document generation,
// image uploads, the assistant directory and conversation history, plus a
// Prometheus metrics endpoint.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sindicoapp/sindico/internal/document"
	"github.com/sindicoapp/sindico/internal/flow"
	"github.com/sindicoapp/sindico/internal/genai"
	"github.com/sindicoapp/sindico/internal/media"
	"github.com/sindicoapp/sindico/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration for the API server.
type Opts struct {
	Addr            string
	Store           store.Store
	GenAI           genai.ClientInterface
	Pipeline        *document.Pipeline
	Engine          *flow.Engine
	Detector        *flow.IntentDetector
	Media           *media.Service
	CondominiumName string
}

// Option configures Opts.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPipeline overrides the document generation pipeline.
func WithPipeline(p *document.Pipeline) Option {
	return func(o *Opts) { o.Pipeline = p }
}

// WithEngine overrides the guided flow engine.
func WithEngine(e *flow.Engine) Option {
	return func(o *Opts) { o.Engine = e }
}

// WithDetector overrides the intent detector.
func WithDetector(d *flow.IntentDetector) Option {
	return func(o *Opts) { o.Detector = d }
}

// WithCondominiumName sets the condominium name used in generation prompts.
func WithCondominiumName(name string) Option {
	return func(o *Opts) { o.CondominiumName = name }
}

// Server wires the store, the generation stack and the flow engine behind
// a chi router.
type Server struct {
	router   *chi.Mux
	st       store.Store
	client   genai.ClientInterface
	pipeline *document.Pipeline
	engine   *flow.Engine
	detector *flow.IntentDetector
	media    *media.Service
	httpSrv  *http.Server
	addr     string
}

// NewServer builds a server from the given components.
func NewServer(st store.Store, client genai.ClientInterface, mediaSvc *media.Service, opts ...Option) *Server {
	o := Opts{
		Addr:     DefaultAddr,
		Store:    st,
		GenAI:    client,
		Media:    mediaSvc,
		Detector: flow.NewIntentDetector(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Pipeline == nil {
		o.Pipeline = document.NewPipeline(o.GenAI)
	}
	if o.Engine == nil {
		o.Engine = flow.NewEngine(o.Store, o.Pipeline, flow.WithCondominiumName(o.CondominiumName))
	}

	s := &Server{
		router:   chi.NewRouter(),
		st:       o.Store,
		client:   o.GenAI,
		pipeline: o.Pipeline,
		engine:   o.Engine,
		detector: o.Detector,
		media:    o.Media,
		addr:     o.Addr,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.chatHandler)

		r.Post("/documents/generate", s.generateDocumentHandler)
		r.Get("/documents", s.listDocumentsHandler)
		r.Post("/documents/{id}/images", s.uploadImagesHandler)

		r.Post("/flows/skip-images", s.skipImagesHandler)

		r.Get("/assistants", s.listAssistantsHandler)
		r.Post("/assistants/sync", s.syncAssistantsHandler)
		r.Get("/assistants/{id}", s.getAssistantHandler)
		r.Delete("/assistants/{id}", s.deleteAssistantHandler)

		r.Get("/conversations", s.listConversationsHandler)
		r.Get("/conversations/{assistantID}", s.getConversationHandler)

		r.Post("/threads/reset", s.resetThreadHandler)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until the context is cancelled, then shuts it
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("Server.Start: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("Server.Start: shutting down")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("Server.Start: shutdown: %w", err)
	}
	return nil
}
