// Package server exposes the chat gateway and the knowledge base over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"docchat/chat"
	"docchat/knowledge"
	"docchat/llm"
	"docchat/llm/parser"
)

// sessionHeader carries the conversation session ID. The server issues
// an ID on the first chat response; clients echo it back.
const sessionHeader = "X-Session-ID"

// Server is the HTTP server for the chat API and UI.
type Server struct {
	gateway  *chat.Gateway
	sessions *chat.Manager
	kb       *knowledge.Base
	addr     string
}

// NewServer creates a new HTTP server.
func NewServer(gateway *chat.Gateway, sessions *chat.Manager, kb *knowledge.Base, addr string) *Server {
	return &Server{
		gateway:  gateway,
		sessions: sessions,
		kb:       kb,
		addr:     addr,
	}
}

// Routes builds the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// UI
	mux.HandleFunc("/", s.handleIndex)

	// API
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/clear", s.handleClear)
	mux.HandleFunc("/api/documents/upload", s.handleUpload)
	mux.HandleFunc("/api/documents/process", s.handleProcess)
	mux.HandleFunc("/api/documents/summary", s.handleSummary)
	mux.HandleFunc("/api/documents/events", s.handleEvents)
	mux.HandleFunc("/api/health", s.handleHealth)

	return corsMiddleware(loggingMiddleware(mux))
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // Longer for SSE
	}

	log.Printf("[INFO] docchat server starting on %s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses and writes the
// standard error body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, parser.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, parser.ErrExtraction):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, llm.ErrUpstream):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+sessionHeader)
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
