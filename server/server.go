// Package server implements the reference assistant backend honoring the
// client contract: the streaming chat endpoints and the conversation
// listing/read/update service.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Config configures the backend.
type Config struct {
	// Provider generates assistant replies.
	// Required.
	Provider Provider

	// Store persists sessions.
	// Optional - defaults to in-memory storage.
	Store SessionStore

	// Logger is the structured logger.
	// Optional - defaults to slog.Default().
	Logger *slog.Logger

	// AllowedOrigins for CORS. Defaults to allowing all origins.
	AllowedOrigins []string

	// RequestTimeout bounds non-streaming requests. Defaults to 30 seconds.
	RequestTimeout time.Duration

	// StreamTimeout bounds one streamed generation. Defaults to 2 minutes.
	StreamTimeout time.Duration

	// MaxMessageLength limits one user message. Defaults to 4000 characters.
	MaxMessageLength int

	// MaxRequestBodySize limits request bodies. Defaults to 64 KiB.
	MaxRequestBodySize int64
}

// applyDefaults fills in default values for the config.
func (c Config) applyDefaults() Config {
	if c.Store == nil {
		c.Store = NewMemoryStore()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = 2 * time.Minute
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = 4000
	}
	if c.MaxRequestBodySize <= 0 {
		c.MaxRequestBodySize = 64 * 1024
	}
	return c
}

// Server is the assistant backend.
type Server struct {
	config   Config
	provider Provider
	store    SessionStore
	logger   *slog.Logger
	router   *chi.Mux
}

// New creates a server with the given configuration.
func New(cfg Config) (*Server, error) {
	cfg = cfg.applyDefaults()
	if cfg.Provider == nil {
		return nil, errors.New("invalid configuration: Provider is required")
	}

	s := &Server{
		config:   cfg,
		provider: cfg.Provider,
		store:    cfg.Store,
		logger:   cfg.Logger,
	}
	s.router = s.newRouter()
	return s, nil
}

// Handler returns the HTTP handler for the backend.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(s.logger))
	r.Use(loggingMiddleware(s.logger))
	r.Use(chimiddleware.RealIP)
	r.Use(bodySizeLimitMiddleware(s.config.MaxRequestBodySize))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// Streaming endpoints manage their own deadline; the request timeout
	// would cut generations short.
	r.Post("/v1/chat/stream", s.handleChatStream)
	r.Get("/v1/chat/ws", s.handleChatWS)

	r.Route("/v1/conversations", func(r chi.Router) {
		r.Use(timeoutMiddleware(s.config.RequestTimeout))
		r.Get("/", s.handleListConversations)
		r.Get("/{id}", s.handleGetConversation)
		r.Patch("/{id}", s.handlePatchConversation)
	})

	return r
}
