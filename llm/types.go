package llm

// Document represents a single indexed chunk of a source file.
type Document struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	Source     string                 `json:"source"`
	FileType   string                 `json:"file_type"`
	Title      string                 `json:"title"`
	ChunkIndex int                    `json:"chunk_index"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  string                 `json:"created_at"`
}

// SearchResult represents a retrieved chunk with its relevance score.
type SearchResult struct {
	Document Document
	Score    float32
}
