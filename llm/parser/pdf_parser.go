package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files using ledongthuc/pdf for text extraction.
// Scanned PDFs without a text layer produce no content and fail with
// ErrExtraction at the registry level.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse reads and parses PDF from the reader
func (p *PDFParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return p.extract(reader, "", len(data))
}

// ParseFile reads and parses a PDF file
func (p *PDFParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer f.Close()

	info, err := f.Stat()
	size := 0
	if err == nil {
		size = int(info.Size())
	}

	return p.extract(reader, filePath, size)
}

// extract pulls the plain text layer out of the parsed PDF
func (p *PDFParser) extract(reader *pdf.Reader, filePath string, size int) (*Document, error) {
	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	content := buf.String()
	return &Document{
		Content: content,
		Title:   ExtractTitle(content, filePath),
		Metadata: map[string]interface{}{
			"page_count": reader.NumPage(),
			"file_size":  size,
		},
	}, nil
}

// FileType returns the file type this parser handles
func (p *PDFParser) FileType() FileType {
	return FileTypePDF
}
