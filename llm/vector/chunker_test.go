package vector

import (
	"strings"
	"testing"
	"time"
)

func TestChunkDocument_EmptyInput(t *testing.T) {
	chunks := ChunkDocument("", DefaultChunkConfig())
	if len(chunks) != 0 {
		t.Fatalf("expected 0 chunks for empty input, got %d", len(chunks))
	}

	chunks = ChunkDocument("   \n\n  ", DefaultChunkConfig())
	if len(chunks) != 0 {
		t.Fatalf("expected 0 chunks for whitespace input, got %d", len(chunks))
	}
}

func TestChunkDocument_ShortDocumentIsSingleChunk(t *testing.T) {
	// Shorter than MinChunkSize, but a short document must still be
	// indexed as one chunk.
	content := "Tiny note."
	chunks := ChunkDocument(content, DefaultChunkConfig())

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != content {
		t.Errorf("expected chunk to hold the full document, got %q", chunks[0].Content)
	}
	if chunks[0].ChunkIndex != 0 {
		t.Errorf("expected chunk index 0, got %d", chunks[0].ChunkIndex)
	}
}

func TestChunkDocument_SplitsByParagraph(t *testing.T) {
	para := strings.Repeat("Paragraph text with several words in it. ", 10)
	content := strings.TrimSpace(strings.Repeat(para+"\n\n", 6))

	config := ChunkConfig{
		ChunkSize:        600,
		ChunkOverlap:     100,
		MinChunkSize:     50,
		SplitByParagraph: true,
	}
	chunks := ChunkDocument(content, config)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Content == "" {
			t.Errorf("chunk %d is empty", i)
		}
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d, want %d", i, c.ChunkIndex, i)
		}
	}
}

func TestChunkDocument_OverlapCarriesContext(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		sb.WriteString(strings.Repeat("alpha beta gamma delta epsilon ", 10))
		sb.WriteString("\n\n")
	}

	config := ChunkConfig{
		ChunkSize:        400,
		ChunkOverlap:     80,
		MinChunkSize:     50,
		SplitByParagraph: true,
	}
	chunks := ChunkDocument(sb.String(), config)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// The second chunk starts with the tail of the first.
	tail := getTailOverlap(chunks[0].Content, config.ChunkOverlap)
	if tail == "" {
		t.Fatal("expected non-empty overlap tail")
	}
	if !strings.HasPrefix(chunks[1].Content, tail) {
		t.Errorf("chunk 1 does not start with overlap from chunk 0:\ntail: %q\nchunk: %q",
			tail, chunks[1].Content[:min(len(chunks[1].Content), 120)])
	}
}

func TestChunkDocument_OversizedParagraphForceSplit(t *testing.T) {
	// A single paragraph with no sentence breaks, far bigger than the window.
	content := strings.Repeat("x", 3000)

	config := ChunkConfig{
		ChunkSize:        500,
		ChunkOverlap:     50,
		MinChunkSize:     10,
		SplitByParagraph: true,
	}
	chunks := ChunkDocument(content, config)

	if len(chunks) < 2 {
		t.Fatalf("expected oversized paragraph to split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Content) > config.ChunkSize {
			t.Errorf("chunk %d exceeds window: %d > %d", i, len(c.Content), config.ChunkSize)
		}
	}
}

func TestChunkDocument_OverlapAtLeastWindowTerminates(t *testing.T) {
	// Overlap equal to (or above) the window must not stall the splitter
	// on paragraphs longer than the window.
	content := strings.Repeat("x", 500)

	for _, overlap := range []int{100, 150} {
		config := ChunkConfig{
			ChunkSize:        100,
			ChunkOverlap:     overlap,
			MinChunkSize:     10,
			SplitByParagraph: true,
		}

		done := make(chan []Chunk, 1)
		go func() {
			done <- ChunkDocument(content, config)
		}()

		select {
		case chunks := <-done:
			if len(chunks) < 2 {
				t.Errorf("overlap %d: expected multiple chunks, got %d", overlap, len(chunks))
			}
			for i, c := range chunks {
				if len(c.Content) > config.ChunkSize {
					t.Errorf("overlap %d: chunk %d exceeds window: %d", overlap, i, len(c.Content))
				}
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("overlap %d: ChunkDocument did not terminate", overlap)
		}
	}
}

func TestChunkDocument_SentenceSplitting(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog near the riverbank today. "
	content := strings.TrimSpace(strings.Repeat(sentence, 40))

	config := ChunkConfig{
		ChunkSize:        500,
		ChunkOverlap:     100,
		MinChunkSize:     50,
		SplitByParagraph: false,
	}
	chunks := ChunkDocument(content, config)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
}

func TestSplitIntoSentences(t *testing.T) {
	sentences := splitIntoSentences("First one. Second one! Third one? Trailing bit")
	if len(sentences) != 4 {
		t.Fatalf("expected 4 sentences, got %d: %v", len(sentences), sentences)
	}
	if sentences[0] != "First one." {
		t.Errorf("unexpected first sentence: %q", sentences[0])
	}
	if sentences[3] != "Trailing bit" {
		t.Errorf("unexpected trailing sentence: %q", sentences[3])
	}
}

func TestGetTailOverlap(t *testing.T) {
	text := "one two three four five"

	if got := getTailOverlap(text, 100); got != text {
		t.Errorf("overlap larger than text should return the whole text, got %q", got)
	}
	if got := getTailOverlap(text, 0); got != "" {
		t.Errorf("zero overlap should be empty, got %q", got)
	}

	// Breaks at a word boundary inside the tail.
	if got := getTailOverlap(text, 9); got != "five" {
		t.Errorf("expected word-aligned overlap %q, got %q", "five", got)
	}
}
