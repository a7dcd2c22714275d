package vector

import (
	"context"
	"fmt"

	"docchat/llm"

	"github.com/cloudwego/eino/components/embedding"
)

// EmbeddingService wraps an embedding model for vector generation
type EmbeddingService struct {
	embedder embedding.Embedder
	dim      int
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(embedder embedding.Embedder, dim int) *EmbeddingService {
	if dim <= 0 {
		dim = 1024 // Default dimension for many models
	}
	return &EmbeddingService{
		embedder: embedder,
		dim:      dim,
	}
}

// Embed generates an embedding vector for a single text
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", llm.ErrUpstream, err)
	}

	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	// Convert float64 to float32
	result := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		result[i] = float32(v)
	}

	return result, nil
}

// EmbedBatch generates embedding vectors for multiple texts
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	vectors, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", llm.ErrUpstream, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(vectors), len(texts))
	}

	result := make([][]float32, len(texts))
	for i, vec := range vectors {
		result[i] = make([]float32, len(vec))
		for j, v := range vec {
			result[i][j] = float32(v)
		}
	}

	return result, nil
}

// Dimension returns the embedding dimension
func (s *EmbeddingService) Dimension() int {
	return s.dim
}
