package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"docchat/chat"
)

// maxUploadBytes caps the size of a single uploaded document.
const maxUploadBytes = 32 << 20

type chatRequest struct {
	Message string      `json:"message"`
	History []chat.Turn `json:"history,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}

// handleChat performs one conversation round-trip. The session is
// resolved from the X-Session-ID header; the (possibly new) ID is
// echoed back in the response header.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	sess := s.sessions.GetOrCreate(r.Header.Get(sessionHeader))
	w.Header().Set(sessionHeader, sess.ID)

	reply, err := s.gateway.Send(r.Context(), sess, req.Message, req.History)
	if err != nil {
		log.Printf("[ERROR] chat failed: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// handleClear empties the conversation log of the caller's session.
// Clearing an unknown or absent session is a no-op success.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := r.Header.Get(sessionHeader); id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			s.gateway.Clear(sess)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared"})
}

// handleUpload accepts one multipart file under the "file" field, saves
// it into the documents directory and indexes it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	result, err := s.kb.IngestUpload(r.Context(), header.Filename, file)
	if err != nil {
		log.Printf("[ERROR] upload %s failed: %v", header.Filename, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Indexed %s into %d chunks", result.File, result.Chunks),
		"result":  result,
	})
}

// handleProcess rebuilds the index from everything in the documents
// directory. Per-file failures are reported alongside successes.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results, failures, err := s.kb.ProcessDirectory(r.Context())
	if err != nil {
		log.Printf("[ERROR] process failed: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  fmt.Sprintf("Processed %d files, %d failed", len(results), len(failures)),
		"results":  results,
		"failures": failures,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := s.kb.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleEvents streams ingestion lifecycle events over SSE until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.kb.Events().Subscribe(r.Context())
	flusher.Flush()

	for event := range events {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
