package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docchat/llm"
)

// MemoryStore implements VectorStore with brute-force cosine similarity
// over in-process vectors. It is the default backend when no Redis
// instance is configured and the backend used in tests.
type MemoryStore struct {
	mu           sync.RWMutex
	embeddingSvc *EmbeddingService
	docs         []llm.Document
	vectors      [][]float32
	dim          int
}

// NewMemoryStore creates an in-memory vector store
func NewMemoryStore(embeddingSvc *EmbeddingService) *MemoryStore {
	return &MemoryStore{
		embeddingSvc: embeddingSvc,
	}
}

// AddBatch embeds and stores multiple documents
func (s *MemoryStore) AddBatch(ctx context.Context, docs []llm.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := s.embeddingSvc.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Every stored vector must share one dimensionality, fixed by the
	// embedding model in use. Validate the whole batch before recording
	// anything, so a rejected batch leaves the store untouched.
	dim := s.dim
	for _, vec := range vectors {
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return fmt.Errorf("vector dimension mismatch: got %d, store uses %d", len(vec), dim)
		}
	}
	s.dim = dim

	s.docs = append(s.docs, docs...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search embeds the query and returns the top-k most similar documents
func (s *MemoryStore) Search(ctx context.Context, query string, topK int) ([]llm.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	empty := len(s.docs) == 0
	s.mu.RUnlock()
	if empty {
		return []llm.SearchResult{}, nil
	}

	queryVector, err := s.embeddingSvc.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]llm.SearchResult, 0, len(s.docs))
	for i, doc := range s.docs {
		results = append(results, llm.SearchResult{
			Document: doc,
			Score:    cosineSimilarity(queryVector, s.vectors[i]),
		})
	}

	// Stable sort keeps insertion order for equal scores, so repeated
	// queries against an unchanged store return identical orderings.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// DeleteBySource removes all documents from a specific source file
func (s *MemoryStore) DeleteBySource(ctx context.Context, source string) error {
	if source == "" {
		return fmt.Errorf("source cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.docs[:0]
	vectors := s.vectors[:0]
	for i, doc := range s.docs {
		if doc.Source != source {
			docs = append(docs, doc)
			vectors = append(vectors, s.vectors[i])
		}
	}
	s.docs = docs
	s.vectors = vectors
	return nil
}

// Count returns the total number of documents in the store
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

// Clear removes every document
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.vectors = nil
	s.dim = 0
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// cosineSimilarity computes the cosine similarity of two vectors
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
