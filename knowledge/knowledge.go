// Package knowledge turns raw files into searchable passages. A Base
// owns the parser registry, the chunking policy, the vector store
// handle and a small on-disk metadata registry tracking what has been
// indexed.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docchat/llm"
	"docchat/llm/parser"
	"docchat/llm/vector"
	"docchat/pubsub"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// IngestEvent is the payload published on the base's broker for each
// file lifecycle change during ingestion.
type IngestEvent struct {
	File   string `json:"file"`
	Chunks int    `json:"chunks,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FileMeta records what is known about an indexed source file.
type FileMeta struct {
	Hash        string `json:"hash"`
	FileType    string `json:"file_type"`
	Chunks      int    `json:"chunks"`
	Size        int64  `json:"size"`
	ProcessedAt string `json:"processed_at"`
}

// IngestResult reports the outcome of ingesting a single file.
type IngestResult struct {
	File    string `json:"file"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
}

// Summary is the derived read-only view of the knowledge base.
type Summary struct {
	FileCount  int   `json:"file_count"`
	ChunkCount int64 `json:"chunk_count"`
}

// Config configures a knowledge Base.
type Config struct {
	// DocumentsDir is where source files live; uploads are saved here
	DocumentsDir string
	// ProcessedDir holds the metadata registry
	ProcessedDir string
	// Chunking controls how extracted text is split
	Chunking vector.ChunkConfig
}

// Base is the document store: parse, chunk, embed, persist, query.
// The vector store handle is constructed by the caller and shared with
// the query path; Base never creates ambient global state.
type Base struct {
	registry *parser.Registry
	store    vector.VectorStore
	broker   *pubsub.Broker[IngestEvent]
	cfg      Config
	metaPath string

	mu   sync.Mutex
	meta map[string]FileMeta
}

// NewBase creates a knowledge base over the given vector store. The
// documents and processed directories are created if missing and the
// metadata registry is loaded from disk.
func NewBase(store vector.VectorStore, registry *parser.Registry, cfg Config) (*Base, error) {
	if cfg.DocumentsDir == "" {
		cfg.DocumentsDir = "documents"
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = "processed"
	}
	if cfg.Chunking.ChunkSize <= 0 {
		cfg.Chunking = vector.DefaultChunkConfig()
	}

	for _, dir := range []string{cfg.DocumentsDir, cfg.ProcessedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	b := &Base{
		registry: registry,
		store:    store,
		broker:   pubsub.NewBroker[IngestEvent](),
		cfg:      cfg,
		metaPath: filepath.Join(cfg.ProcessedDir, "metadata.json"),
		meta:     make(map[string]FileMeta),
	}

	if err := b.loadMetadata(); err != nil {
		return nil, err
	}

	return b, nil
}

// Events exposes the ingestion event stream.
func (b *Base) Events() *pubsub.Broker[IngestEvent] {
	return b.broker
}

// Close shuts down the event broker. The vector store is owned by the
// caller and closed there.
func (b *Base) Close() {
	b.broker.Shutdown()
}

// loadMetadata reads the registry from disk; a missing file is an empty registry.
func (b *Base) loadMetadata() error {
	data, err := os.ReadFile(b.metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(data, &b.meta); err != nil {
		// A corrupt registry is rebuilt on the next full reprocess
		b.meta = make(map[string]FileMeta)
	}
	return nil
}

// saveMetadata writes the registry to disk. Caller holds b.mu.
func (b *Base) saveMetadata() error {
	data, err := json.MarshalIndent(b.meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.metaPath, data, 0o644)
}

// hashFile returns the hex SHA-256 of the file contents.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// IngestFile parses, chunks, embeds and indexes a single file. Chunks
// previously indexed from the same source are replaced. Files whose
// content hash is unchanged since the last run are skipped.
func (b *Base) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	path = filepath.Clean(path)
	name := filepath.Base(path)

	if !b.registry.Supported(path) {
		return nil, fmt.Errorf("%w: %s", parser.ErrUnsupportedFormat, filepath.Ext(path))
	}

	b.broker.Publish(pubsub.IngestStartedEvent, IngestEvent{File: name})

	hash, size, err := hashFile(path)
	if err != nil {
		b.broker.Publish(pubsub.IngestFailedEvent, IngestEvent{File: name, Error: err.Error()})
		return nil, fmt.Errorf("%w: %v", parser.ErrExtraction, err)
	}

	b.mu.Lock()
	prev, seen := b.meta[name]
	b.mu.Unlock()
	if seen && prev.Hash == hash {
		b.broker.Publish(pubsub.IngestSkippedEvent, IngestEvent{File: name, Chunks: prev.Chunks})
		return &IngestResult{File: name, Chunks: prev.Chunks, Skipped: true}, nil
	}

	parsed, err := b.registry.ParseFile(ctx, path)
	if err != nil {
		b.broker.Publish(pubsub.IngestFailedEvent, IngestEvent{File: name, Error: err.Error()})
		return nil, err
	}

	chunks := vector.ChunkDocument(parsed.Content, b.cfg.Chunking)
	if len(chunks) == 0 {
		err := fmt.Errorf("%w: document content is too short to index", parser.ErrExtraction)
		b.broker.Publish(pubsub.IngestFailedEvent, IngestEvent{File: name, Error: err.Error()})
		return nil, err
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	fileType := parser.FileTypeFromExt(ext).String()
	now := time.Now().Format(time.RFC3339)

	docs := make([]llm.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = llm.Document{
			ID:         uuid.NewString(),
			Content:    chunk.Content,
			Source:     name,
			FileType:   fileType,
			Title:      parsed.Title,
			ChunkIndex: i,
			CreatedAt:  now,
			Metadata: map[string]interface{}{
				"chunk_count": len(chunks),
			},
		}
		for k, v := range parsed.Metadata {
			docs[i].Metadata[k] = v
		}
	}

	// Replace any chunks indexed from an earlier version of this file
	if err := b.store.DeleteBySource(ctx, name); err != nil {
		b.broker.Publish(pubsub.IngestFailedEvent, IngestEvent{File: name, Error: err.Error()})
		return nil, fmt.Errorf("failed to replace existing chunks: %w", err)
	}

	if err := b.store.AddBatch(ctx, docs); err != nil {
		b.broker.Publish(pubsub.IngestFailedEvent, IngestEvent{File: name, Error: err.Error()})
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	b.mu.Lock()
	b.meta[name] = FileMeta{
		Hash:        hash,
		FileType:    fileType,
		Chunks:      len(chunks),
		Size:        size,
		ProcessedAt: now,
	}
	saveErr := b.saveMetadata()
	b.mu.Unlock()
	if saveErr != nil {
		return nil, fmt.Errorf("failed to save metadata: %w", saveErr)
	}

	b.broker.Publish(pubsub.IngestedEvent, IngestEvent{File: name, Chunks: len(chunks)})
	return &IngestResult{File: name, Chunks: len(chunks)}, nil
}

// IngestUpload saves an uploaded file into the documents directory and
// ingests it. The extension is validated before anything is written so
// a rejected upload leaves both the directory and the index untouched.
func (b *Base) IngestUpload(ctx context.Context, filename string, r io.Reader) (*IngestResult, error) {
	filename = filepath.Base(filename)
	if filename == "" || filename == "." {
		return nil, fmt.Errorf("%w: empty filename", parser.ErrUnsupportedFormat)
	}
	if !b.registry.Supported(filename) {
		return nil, fmt.Errorf("%w: %s", parser.ErrUnsupportedFormat, filepath.Ext(filename))
	}

	dst := filepath.Join(b.cfg.DocumentsDir, filename)
	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	return b.IngestFile(ctx, dst)
}

// ProcessDirectory clears the index and the metadata registry, then
// re-ingests every supported file in the documents directory. Each file
// is processed independently: one failure is recorded per file and does
// not block the rest.
func (b *Base) ProcessDirectory(ctx context.Context) (map[string]IngestResult, map[string]string, error) {
	if err := b.store.Clear(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to clear store: %w", err)
	}

	b.mu.Lock()
	b.meta = make(map[string]FileMeta)
	saveErr := b.saveMetadata()
	b.mu.Unlock()
	if saveErr != nil {
		return nil, nil, fmt.Errorf("failed to reset metadata: %w", saveErr)
	}

	b.broker.Publish(pubsub.StoreClearedEvent, IngestEvent{})

	matches, err := doublestar.FilepathGlob(filepath.Join(b.cfg.DocumentsDir, "**", "*"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan documents directory: %w", err)
	}
	sort.Strings(matches)

	results := make(map[string]IngestResult)
	failures := make(map[string]string)

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if !b.registry.Supported(path) {
			continue
		}

		name := filepath.Base(path)
		res, err := b.IngestFile(ctx, path)
		if err != nil {
			failures[name] = err.Error()
			continue
		}
		results[name] = *res
	}

	return results, failures, nil
}

// Search returns the top-k chunks most similar to the query text. An
// empty knowledge base yields an empty result, never an error.
func (b *Base) Search(ctx context.Context, query string, topK int) ([]llm.SearchResult, error) {
	return b.store.Search(ctx, query, topK)
}

// Summary recomputes the file and chunk counts from the registry and
// the store.
func (b *Base) Summary(ctx context.Context) (Summary, error) {
	chunks, err := b.store.Count(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to count chunks: %w", err)
	}

	b.mu.Lock()
	files := len(b.meta)
	b.mu.Unlock()

	return Summary{FileCount: files, ChunkCount: chunks}, nil
}
