// Package server provides the HTTP transport for the companion backend
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"companion-backend/chat"
)

// Server hosts the chat API over HTTP
type Server struct {
	orchestrator *chat.Orchestrator
	jwtSecret    []byte
	limiter      *RateLimiter
	httpServer   *http.Server
}

// New creates a server bound to the given address. rateLimitInterval is the
// minimum gap between chat messages per user; zero disables limiting.
func New(addr string, orchestrator *chat.Orchestrator, jwtSecret []byte, rateLimitInterval time.Duration) *Server {
	s := &Server{
		orchestrator: orchestrator,
		jwtSecret:    jwtSecret,
		limiter:      NewRateLimiter(rateLimitInterval),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/send", s.method(http.MethodPost, s.authMiddleware(s.rateLimitMiddleware(s.handleSend))))
	mux.HandleFunc("/chat/history", s.method(http.MethodGet, s.authMiddleware(s.handleHistory)))
	mux.HandleFunc("/chat/switch-character", s.method(http.MethodPost, s.authMiddleware(s.handleSwitchCharacter)))
	mux.HandleFunc("/chat/provider", s.method(http.MethodGet, s.authMiddleware(s.handleProviderStatus)))
	mux.HandleFunc("/characters", s.method(http.MethodGet, s.authMiddleware(s.handleCharacters)))
	mux.HandleFunc("/admin/llm/switch", s.method(http.MethodPost, s.authMiddleware(s.handleSwitchProvider)))
	mux.HandleFunc("/healthz", s.method(http.MethodGet, s.handleHealthz))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE responses stay open for the whole generation.
	}
	return s
}

// method rejects requests with the wrong HTTP verb before any other handling
func (s *Server) method(verb string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != verb {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
			return
		}
		next(w, r)
	}
}

// Start serves HTTP until the listener fails or Shutdown is called
func (s *Server) Start() error {
	log.Printf("[HTTP] Listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("[HTTP] Shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured handler chain, primarily for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
