package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// DocxParser handles Word documents (.docx) using fumiama/go-docx.
// Paragraphs and table cells are extracted in document order.
type DocxParser struct{}

// NewDocxParser creates a new DOCX parser
func NewDocxParser() *DocxParser {
	return &DocxParser{}
}

// Parse reads and parses DOCX from the reader
func (p *DocxParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return p.extract(doc, "", len(data))
}

// ParseFile reads and parses a DOCX file
func (p *DocxParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return p.extract(doc, filePath, int(info.Size()))
}

// extract walks the document body and collects paragraph and table text
func (p *DocxParser) extract(doc *docx.Docx, filePath string, size int) (*Document, error) {
	var sb strings.Builder
	paragraphs := 0

	for _, item := range doc.Document.Body.Items {
		switch item.(type) {
		case *docx.Paragraph, *docx.Table:
			text := strings.TrimSpace(fmt.Sprint(item))
			if text == "" {
				continue
			}
			sb.WriteString(text)
			sb.WriteString("\n")
			paragraphs++
		}
	}

	content := sb.String()
	return &Document{
		Content: content,
		Title:   ExtractTitle(content, filePath),
		Metadata: map[string]interface{}{
			"paragraph_count": paragraphs,
			"file_size":       size,
		},
	}, nil
}

// FileType returns the file type this parser handles
func (p *DocxParser) FileType() FileType {
	return FileTypeDocx
}
