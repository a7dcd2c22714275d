package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// HTMLParser handles HTML files
type HTMLParser struct {
	// asMarkdown converts body HTML to markdown instead of plain text,
	// preserving heading and list structure for retrieval
	asMarkdown bool
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		asMarkdown: true,
	}
}

// Parse reads and parses HTML from the reader
func (p *HTMLParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return p.parse(data, "")
}

// ParseFile reads and parses an HTML file
func (p *HTMLParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return p.parse(data, filePath)
}

// parse extracts text content from the HTML document
func (p *HTMLParser) parse(data []byte, filePath string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find("script, style, noscript").Remove()

	var content string
	if p.asMarkdown {
		body, err := doc.Find("body").Html()
		if err == nil && body != "" {
			content, err = convertHTMLToMarkdown(body)
			if err != nil {
				content = ""
			}
		}
	}
	if content == "" {
		content = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}

	if title == "" {
		title = ExtractTitle(content, filePath)
	}

	return &Document{
		Content: content,
		Title:   title,
		Metadata: map[string]interface{}{
			"file_size": len(data),
		},
	}, nil
}

// convertHTMLToMarkdown converts an HTML fragment to markdown
func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}

	// Clean up excessive blank lines
	lines := strings.Split(markdown, "\n")
	var result []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return strings.Join(result, "\n"), nil
}

// FileType returns the file type this parser handles
func (p *HTMLParser) FileType() FileType {
	return FileTypeHTML
}
