package vector

import (
	"strings"
	"unicode"
)

// ChunkConfig configures how documents are split into chunks.
// Window and overlap sizes are tunables surfaced through the
// application config, not a hard contract.
type ChunkConfig struct {
	ChunkSize        int  // Maximum chunk size in characters
	ChunkOverlap     int  // Overlap between chunks
	MinChunkSize     int  // Minimum chunk size to keep
	SplitByParagraph bool // Whether to prioritize paragraph splitting
}

// DefaultChunkConfig returns the default chunk configuration
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:        1000,
		ChunkOverlap:     200,
		MinChunkSize:     100,
		SplitByParagraph: true,
	}
}

// Chunk represents a text chunk with metadata
type Chunk struct {
	Content    string
	ChunkIndex int
}

// ChunkDocument splits a document into chunks based on the configuration
func ChunkDocument(content string, config ChunkConfig) []Chunk {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	// An overlap as large as the window would keep forceSplit from ever
	// advancing, so cap it below the chunk size.
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize - 1
	}
	if config.MinChunkSize <= 0 {
		config.MinChunkSize = 100
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return []Chunk{}
	}

	// Short documents become a single chunk regardless of the minimum
	if len(content) <= config.ChunkSize {
		return []Chunk{{Content: content, ChunkIndex: 0}}
	}

	var chunks []Chunk

	if config.SplitByParagraph {
		chunks = splitByParagraph(content, config)
	}

	// Fall back to sentence splitting when paragraph splitting produced nothing
	if len(chunks) == 0 {
		chunks = splitBySentence(content, config)
	}

	// Filter out chunks that are too small
	var filteredChunks []Chunk
	for _, chunk := range chunks {
		if len(chunk.Content) >= config.MinChunkSize {
			filteredChunks = append(filteredChunks, chunk)
		}
	}

	// Re-index chunks
	for i := range filteredChunks {
		filteredChunks[i].ChunkIndex = i
	}

	return filteredChunks
}

// splitByParagraph splits content by paragraph boundaries first
func splitByParagraph(content string, config ChunkConfig) []Chunk {
	var chunks []Chunk

	paragraphs := strings.Split(content, "\n\n")

	var currentChunk strings.Builder
	currentIndex := 0

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if currentChunk.Len()+len(paragraph) > config.ChunkSize && currentChunk.Len() > 0 {
			content := strings.TrimSpace(currentChunk.String())
			if len(content) >= config.MinChunkSize {
				chunks = append(chunks, Chunk{
					Content:    content,
					ChunkIndex: currentIndex,
				})
				currentIndex++
			}

			currentChunk.Reset()

			// Carry overlap from the previous chunk
			if config.ChunkOverlap > 0 && len(content) > 0 {
				overlap := getTailOverlap(content, config.ChunkOverlap)
				currentChunk.WriteString(overlap)
				currentChunk.WriteString("\n\n")
			}
		}

		currentChunk.WriteString(paragraph)
		currentChunk.WriteString("\n\n")
	}

	if currentChunk.Len() > 0 {
		content := strings.TrimSpace(currentChunk.String())
		if len(content) >= config.MinChunkSize {
			chunks = append(chunks, Chunk{
				Content:    content,
				ChunkIndex: currentIndex,
			})
		}
	}

	// Paragraphs larger than the window still need splitting
	chunks = handleLargeChunks(chunks, config)

	return chunks
}

// splitBySentence splits content by sentence boundaries
func splitBySentence(content string, config ChunkConfig) []Chunk {
	var chunks []Chunk

	sentences := splitIntoSentences(content)

	var currentChunk strings.Builder
	currentIndex := 0

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if currentChunk.Len()+len(sentence) > config.ChunkSize && currentChunk.Len() > 0 {
			content := strings.TrimSpace(currentChunk.String())
			if len(content) >= config.MinChunkSize {
				chunks = append(chunks, Chunk{
					Content:    content,
					ChunkIndex: currentIndex,
				})
				currentIndex++
			}

			currentChunk.Reset()

			if config.ChunkOverlap > 0 && len(content) > 0 {
				overlap := getTailOverlap(content, config.ChunkOverlap)
				currentChunk.WriteString(overlap)
				currentChunk.WriteString(" ")
			}
		}

		currentChunk.WriteString(sentence)
		currentChunk.WriteString(" ")
	}

	if currentChunk.Len() > 0 {
		content := strings.TrimSpace(currentChunk.String())
		if len(content) >= config.MinChunkSize {
			chunks = append(chunks, Chunk{
				Content:    content,
				ChunkIndex: currentIndex,
			})
		}
	}

	return chunks
}

// splitIntoSentences splits text into sentences
func splitIntoSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])

		if isSentenceEnd(runes[i]) {
			next := runeAt(runes, i+1)
			if next == 0 || unicode.IsSpace(next) || next == '"' || next == '\'' || next == ')' || next == ']' {
				sentence := strings.TrimSpace(current.String())
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	return sentences
}

// isSentenceEnd checks if a rune is a sentence ending punctuation
func isSentenceEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？' || r == '.' || r == '!' || r == '?'
}

// runeAt safely returns a rune at index or 0 if out of bounds
func runeAt(runes []rune, i int) rune {
	if i < 0 || i >= len(runes) {
		return 0
	}
	return runes[i]
}

// getTailOverlap gets the last N characters from text, trying to break at word boundary
func getTailOverlap(text string, size int) string {
	if size <= 0 || len(text) == 0 {
		return ""
	}

	if size >= len(text) {
		return text
	}

	tail := text[len(text)-size:]

	if firstSpace := strings.Index(tail, " "); firstSpace > 0 {
		return tail[firstSpace+1:]
	}

	return tail
}

// handleLargeChunks splits chunks that are still too large
func handleLargeChunks(chunks []Chunk, config ChunkConfig) []Chunk {
	var result []Chunk

	for _, chunk := range chunks {
		if len(chunk.Content) <= config.ChunkSize {
			result = append(result, chunk)
			continue
		}

		subChunks := forceSplit(chunk.Content, config.ChunkSize, config.ChunkOverlap)
		for i, sc := range subChunks {
			result = append(result, Chunk{
				Content:    sc,
				ChunkIndex: chunk.ChunkIndex + i,
			})
		}
	}

	return result
}

// forceSplit splits text into fixed-size chunks
func forceSplit(text string, size, overlap int) []string {
	var chunks []string

	runes := []rune(text)
	start := 0

	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}

		start = end - overlap
		if start < 0 {
			start = 0
		}
	}

	return chunks
}
