package vector

import (
	"context"

	"docchat/llm"
)

// VectorStore defines the interface for vector storage operations.
// A store is constructed once at process start and shared by the
// ingestion and query paths.
type VectorStore interface {
	// AddBatch embeds and stores multiple documents in a single operation
	AddBatch(ctx context.Context, docs []llm.Document) error

	// Search performs semantic search and returns top-k results ordered
	// by descending similarity. An empty store yields an empty slice.
	Search(ctx context.Context, query string, topK int) ([]llm.SearchResult, error)

	// DeleteBySource removes all chunks from a specific source file
	DeleteBySource(ctx context.Context, source string) error

	// Count returns the total number of chunks in the store
	Count(ctx context.Context) (int64, error)

	// Clear removes every chunk, used before a full directory rebuild
	Clear(ctx context.Context) error

	// Close closes any connections or resources
	Close() error
}

// StoreConfig holds configuration for vector store implementations
type StoreConfig struct {
	// Embedding dimension (must match the embedding model)
	EmbeddingDim int

	// Index name for the vector index
	IndexName string

	// Key prefix for stored documents
	KeyPrefix string
}

// DefaultStoreConfig returns default configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		EmbeddingDim: 1024,
		IndexName:    "docchat-knowledge",
		KeyPrefix:    "vec:",
	}
}
