package vector

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"docchat/llm"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/redis/go-redis/v9"
)

const (
	// Default HNSW index configuration
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in Redis hash
	fieldContent    = "content"
	fieldVector     = "vector"
	fieldSource     = "source"
	fieldFileType   = "file_type"
	fieldTitle      = "title"
	fieldChunkIndex = "chunk_index"
	fieldCreatedAt  = "created_at"
	fieldMetadata   = "metadata"
	fieldScore      = "score"
)

// RedisStore implements VectorStore using Redis with RediSearch vector search
type RedisStore struct {
	client         *redis.Client
	embeddingSvc   *EmbeddingService
	config         StoreConfig
	indexCreated   bool
	mu             sync.Mutex
	efConstruction int
	m              int
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	IndexName      string
	VectorDim      int
	EFConstruction int
	M              int
}

// NewRedisStore creates a new Redis-based vector store
func NewRedisStore(ctx context.Context, embedder embedding.Embedder, cfg RedisConfig) (*RedisStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultStoreConfig().IndexName
	}
	if cfg.EFConstruction <= 0 {
		cfg.EFConstruction = defaultEFConstruction
	}
	if cfg.M <= 0 {
		cfg.M = defaultM
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &RedisStore{
		client:       client,
		embeddingSvc: NewEmbeddingService(embedder, cfg.VectorDim),
		config: StoreConfig{
			EmbeddingDim: cfg.VectorDim,
			IndexName:    cfg.IndexName,
			KeyPrefix:    "vec:",
		},
		efConstruction: cfg.EFConstruction,
		m:              cfg.M,
	}

	if err := store.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	return store, nil
}

// ensureIndex creates the HNSW vector index if it doesn't exist
func (s *RedisStore) ensureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexName := s.config.IndexName
	if _, err := s.client.Do(ctx, "FT.INFO", indexName).Result(); err == nil {
		s.indexCreated = true
		return nil
	}

	// FT.CREATE docchat-knowledge
	//   ON HASH PREFIX 1 "vec:"
	//   SCHEMA vector VECTOR HNSW 6 TYPE FLOAT32 DIM 1024 DISTANCE_METRIC COSINE EF_CONSTRUCTION 200 M 16
	//          content TEXT source TAG file_type TAG title TEXT chunk_index NUMERIC created_at NUMERIC
	_, err := s.client.Do(ctx, "FT.CREATE", indexName,
		"ON", "HASH",
		"PREFIX", "1", s.config.KeyPrefix,
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.config.EmbeddingDim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(s.efConstruction),
		"M", strconv.Itoa(s.m),
		fieldContent, "TEXT",
		fieldSource, "TAG",
		fieldFileType, "TAG",
		fieldTitle, "TEXT",
		fieldChunkIndex, "NUMERIC",
		fieldCreatedAt, "NUMERIC",
	).Result()

	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	s.indexCreated = true
	return nil
}

// generateID generates a unique document ID
func (s *RedisStore) generateID(source string, chunkIndex int) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte(fmt.Sprintf("%d", chunkIndex)))
	h.Write([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// AddBatch embeds and stores multiple documents in a single pipeline
func (s *RedisStore) AddBatch(ctx context.Context, docs []llm.Document) error {
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

	pipe := s.client.Pipeline()

	now := time.Now().Unix()
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = s.generateID(doc.Source, doc.ChunkIndex)
		}
		if doc.CreatedAt == "" {
			doc.CreatedAt = time.Now().Format(time.RFC3339)
		}

		key := s.config.KeyPrefix + doc.ID

		vectorBytes := encodeVector(vectors[i])
		metadataJSON, _ := json.Marshal(doc.Metadata)

		pipe.HSet(ctx, key,
			fieldContent, doc.Content,
			fieldVector, vectorBytes,
			fieldSource, escapeTagValue(doc.Source),
			fieldFileType, doc.FileType,
			fieldTitle, doc.Title,
			fieldChunkIndex, doc.ChunkIndex,
			fieldCreatedAt, now,
			fieldMetadata, metadataJSON,
		)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}

	return nil
}

// encodeVector encodes a float32 vector as little-endian bytes for RediSearch
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// escapeTagValue escapes the TAG separator in field values
func escapeTagValue(value string) string {
	var out []byte
	for i := 0; i < len(value); i++ {
		if value[i] == ',' {
			out = append(out, '\\')
		}
		out = append(out, value[i])
	}
	return string(out)
}

// Search performs semantic search using vector similarity
func (s *RedisStore) Search(ctx context.Context, query string, topK int) ([]llm.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	if topK <= 0 {
		topK = 5
	}
	if topK > 100 {
		topK = 100
	}

	// An empty index is a valid state; return no results rather than an error
	count, err := s.Count(ctx)
	if err == nil && count == 0 {
		return []llm.SearchResult{}, nil
	}

	queryVector, err := s.embeddingSvc.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	// FT.SEARCH docchat-knowledge "*=>[KNN k @vector $query_vector AS score]"
	//   PARAMS 2 query_vector "<bytes>" SORTBY score LIMIT 0 k DIALECT 2
	queryStr := fmt.Sprintf("*=>[KNN %d @vector $query_vector AS %s]", topK, fieldScore)

	result, err := s.client.Do(ctx, "FT.SEARCH", s.config.IndexName, queryStr,
		"PARAMS", "2", "query_vector", encodeVector(queryVector),
		"RETURN", "7", fieldContent, fieldSource, fieldFileType, fieldTitle, fieldChunkIndex, fieldMetadata, fieldScore,
		"SORTBY", fieldScore,
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	).Result()

	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results, err := s.parseSearchResults(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	return results, nil
}

// parseSearchResults parses the FT.SEARCH reply: a count followed by
// (id, fields) pairs
func (s *RedisStore) parseSearchResults(result interface{}) ([]llm.SearchResult, error) {
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result format")
	}

	if len(values) < 2 {
		return []llm.SearchResult{}, nil
	}

	var results []llm.SearchResult

	for i := 1; i < len(values); i += 2 {
		if i+1 >= len(values) {
			break
		}

		docID, ok := values[i].(string)
		if !ok {
			continue
		}

		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}

		doc, score := s.parseDocumentFields(docID, fields)

		results = append(results, llm.SearchResult{
			Document: doc,
			// RediSearch reports cosine distance; flip to similarity
			Score: 1.0 - score,
		})
	}

	return results, nil
}

// parseDocumentFields parses document fields from a Redis search reply
func (s *RedisStore) parseDocumentFields(id string, fields []interface{}) (llm.Document, float32) {
	doc := llm.Document{
		ID:       id,
		Metadata: make(map[string]interface{}),
	}
	var score float32

	for i := 0; i+1 < len(fields); i += 2 {
		fieldName, ok := fields[i].(string)
		if !ok {
			continue
		}

		fieldValue := fields[i+1]

		switch fieldName {
		case fieldContent:
			if val, ok := fieldValue.(string); ok {
				doc.Content = val
			}
		case fieldSource:
			if val, ok := fieldValue.(string); ok {
				doc.Source = val
			}
		case fieldFileType:
			if val, ok := fieldValue.(string); ok {
				doc.FileType = val
			}
		case fieldTitle:
			if val, ok := fieldValue.(string); ok {
				doc.Title = val
			}
		case fieldChunkIndex:
			switch val := fieldValue.(type) {
			case int64:
				doc.ChunkIndex = int(val)
			case string:
				if n, err := strconv.Atoi(val); err == nil {
					doc.ChunkIndex = n
				}
			}
		case fieldMetadata:
			if val, ok := fieldValue.(string); ok {
				json.Unmarshal([]byte(val), &doc.Metadata)
			}
		case fieldScore:
			if val, ok := fieldValue.(string); ok {
				if f, err := strconv.ParseFloat(val, 32); err == nil {
					score = float32(f)
				}
			}
		}
	}

	return doc, score
}

// DeleteBySource removes all documents from a specific source file
func (s *RedisStore) DeleteBySource(ctx context.Context, source string) error {
	if source == "" {
		return fmt.Errorf("source cannot be empty")
	}

	result, err := s.client.Do(ctx, "FT.SEARCH", s.config.IndexName,
		fmt.Sprintf("@%s:{%s}", fieldSource, escapeTagValue(source)),
		"NOCONTENT",
		"LIMIT", "0", "1000",
	).Result()

	if err != nil {
		// Missing index means nothing to delete
		return nil
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return nil
	}

	var keys []string
	for i := 1; i < len(values); i++ {
		if docID, ok := values[i].(string); ok {
			keys = append(keys, docID)
		}
	}

	if len(keys) > 0 {
		return s.client.Del(ctx, keys...).Err()
	}

	return nil
}

// Count returns the total number of documents in the store
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	info, err := s.client.Do(ctx, "FT.INFO", s.config.IndexName).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get index info: %w", err)
	}

	values, ok := info.([]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected info format")
	}

	for i := 0; i < len(values)-1; i += 2 {
		if key, ok := values[i].(string); ok && key == "num_docs" {
			switch count := values[i+1].(type) {
			case int64:
				return count, nil
			case string:
				n, err := strconv.ParseInt(count, 10, 64)
				if err == nil {
					return n, nil
				}
			}
		}
	}

	return 0, nil
}

// Clear drops the index together with its documents and recreates it,
// used before a full directory rebuild
func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.client.Do(ctx, "FT.DROPINDEX", s.config.IndexName, "DD").Result()
	if err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}

	s.mu.Lock()
	s.indexCreated = false
	s.mu.Unlock()

	return s.ensureIndex(ctx)
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
