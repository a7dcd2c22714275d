package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docchat/chat"
	"docchat/knowledge"
	"docchat/llm/parser"
	"docchat/llm/vector"
	"docchat/pubsub"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type stubChatModel struct {
	reply string
	err   error
	calls int
}

func (m *stubChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *stubChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported in tests")
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = []float64{float64(strings.Count(strings.ToLower(text), "warranty")), 0.1}
	}
	return vectors, nil
}

func newTestServer(t *testing.T, chatModel *stubChatModel) *Server {
	t.Helper()

	store := vector.NewMemoryStore(vector.NewEmbeddingService(stubEmbedder{}, 2))
	root := t.TempDir()
	kb, err := knowledge.NewBase(store, parser.DefaultRegistry(), knowledge.Config{
		DocumentsDir: filepath.Join(root, "documents"),
		ProcessedDir: filepath.Join(root, "processed"),
		Chunking:     vector.DefaultChunkConfig(),
	})
	if err != nil {
		t.Fatalf("NewBase failed: %v", err)
	}
	t.Cleanup(kb.Close)

	sessions := chat.NewManager()
	gateway := chat.NewGateway(chatModel, kb, 3)

	return NewServer(gateway, sessions, kb, ":0")
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	chatModel := &stubChatModel{reply: "The warranty lasts two years."}
	srv := newTestServer(t, chatModel)
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/api/chat",
		map[string]string{"message": "How long is the warranty?"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	sessionID := rec.Header().Get("X-Session-ID")
	if sessionID == "" {
		t.Fatal("expected a session ID header on the response")
	}

	var resp struct {
		Reply   string   `json:"reply"`
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Reply != "The warranty lasts two years." {
		t.Errorf("unexpected reply: %q", resp.Reply)
	}

	// Second turn in the same session
	rec = doJSON(t, handler, http.MethodPost, "/api/chat",
		map[string]string{"message": "And for refurbished units?"},
		map[string]string{"X-Session-ID": sessionID})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on follow-up, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Session-ID"); got != sessionID {
		t.Errorf("follow-up changed the session ID: %s -> %s", sessionID, got)
	}
	if chatModel.calls != 2 {
		t.Errorf("expected 2 model calls, got %d", chatModel.calls)
	}
}

func TestChatEndpointBadRequests(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "x"})
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]string{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing message: expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: expected 400, got %d", rec2.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/chat", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected 405, got %d", rec.Code)
	}
}

func TestChatEndpointUpstreamFailure(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{err: errors.New("rate limited")})
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/api/chat",
		map[string]string{"message": "hello"}, nil)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for model failure, got %d: %s", rec.Code, rec.Body.String())
	}
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "x"})
	handler := srv.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "warranty.txt",
		"All devices carry a warranty period of 2 years from purchase."))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// The document is immediately reflected in the summary
	sumRec := doJSON(t, handler, http.MethodGet, "/api/documents/summary", nil, nil)
	if sumRec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", sumRec.Code)
	}
	var summary struct {
		FileCount  int   `json:"file_count"`
		ChunkCount int64 `json:"chunk_count"`
	}
	if err := json.Unmarshal(sumRec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("invalid summary JSON: %v", err)
	}
	if summary.FileCount != 1 || summary.ChunkCount < 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestUploadEndpointUnsupportedType(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "x"})
	handler := srv.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "malware.exe", "binary junk"))

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadEndpointEmptyDocument(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "x"})
	handler := srv.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "blank.txt", "   \n  "))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestClearEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "hi"})
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/api/chat",
		map[string]string{"message": "hello"}, nil)
	sessionID := rec.Header().Get("X-Session-ID")

	sess, ok := srv.sessions.Get(sessionID)
	if !ok || sess.Len() != 2 {
		t.Fatalf("expected a session with 2 messages before clear")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/clear", nil,
		map[string]string{"X-Session-ID": sessionID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sess.Len() != 0 {
		t.Errorf("expected an empty session after clear, got %d messages", sess.Len())
	}

	// Clearing with no session is still a success
	rec = doJSON(t, handler, http.MethodPost, "/api/clear", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("clear without session: expected 200, got %d", rec.Code)
	}
}

func TestProcessEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "x"})
	handler := srv.Routes()

	// Seed a file via upload, then rebuild
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "terms.txt",
		"Warranty terms and conditions apply to every sale."))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/documents/process", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results  map[string]knowledge.IngestResult `json:"results"`
		Failures map[string]string                 `json:"failures"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Results) != 1 || len(resp.Failures) != 0 {
		t.Errorf("unexpected process response: %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "x"})

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

func TestIndexPageServed(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "x"})
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodGet, "/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<title>DocChat</title>") {
		t.Error("index page not served")
	}

	rec = doJSON(t, handler, http.MethodGet, "/no-such-page", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestEventsEndpointStreams(t *testing.T) {
	srv := newTestServer(t, &stubChatModel{reply: "x"})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/documents/events")
	if err != nil {
		t.Fatalf("SSE request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}

	// Trigger an event once the subscription is live
	time.Sleep(50 * time.Millisecond)
	srv.kb.Events().Publish(pubsub.IngestedEvent, knowledge.IngestEvent{File: "manual.pdf", Chunks: 4})

	lines := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	deadline := time.After(2 * time.Second)
	var got []string
	for {
		select {
		case line := <-lines:
			got = append(got, line)
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, "manual.pdf") {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for SSE event, lines: %v", got)
		}
	}
}
