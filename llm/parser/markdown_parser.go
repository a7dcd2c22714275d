package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// MarkdownParser handles markdown files
type MarkdownParser struct {
	// stripCodeBlocks whether to remove code blocks from content
	stripCodeBlocks bool
}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		stripCodeBlocks: false,
	}
}

// Parse reads and parses markdown from the reader
func (p *MarkdownParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return p.parse(string(data), ""), nil
}

// ParseFile reads and parses a markdown file
func (p *MarkdownParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return p.parse(string(data), filePath), nil
}

// parse processes the markdown content
func (p *MarkdownParser) parse(content, filePath string) *Document {
	metadata := p.extractFrontmatter(content)
	processedContent := p.removeFrontmatter(content)

	if p.stripCodeBlocks {
		processedContent = p.removeCodeBlocks(processedContent)
	}

	// Clean up markdown formatting for better embedding
	processedContent = p.cleanMarkdown(processedContent)

	title := ExtractTitle(processedContent, filePath)
	if frontmatterTitle, ok := metadata["title"].(string); ok {
		title = frontmatterTitle
	}

	metadata["file_size"] = len(content)
	metadata["line_count"] = len(strings.Split(content, "\n"))

	return &Document{
		Content:  processedContent,
		Title:    title,
		Metadata: metadata,
	}
}

// extractFrontmatter extracts YAML frontmatter key/value pairs from content
func (p *MarkdownParser) extractFrontmatter(content string) map[string]interface{} {
	metadata := make(map[string]interface{})

	if !hasFrontmatter(content) {
		return metadata
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "---" {
			break
		}

		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			value = strings.Trim(value, `"`)
			metadata[key] = value
		}
	}

	return metadata
}

// removeFrontmatter removes YAML frontmatter from content
func (p *MarkdownParser) removeFrontmatter(content string) string {
	if !hasFrontmatter(content) {
		return content
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return content
}

// hasFrontmatter checks if content has YAML frontmatter
func hasFrontmatter(content string) bool {
	lines := strings.Split(content, "\n")
	return len(lines) >= 2 && strings.TrimSpace(lines[0]) == "---"
}

// removeCodeBlocks removes markdown code blocks
func (p *MarkdownParser) removeCodeBlocks(content string) string {
	re := regexp.MustCompile("```[\\s\\S]*?```")
	content = re.ReplaceAllString(content, "")

	re = regexp.MustCompile("`[^`]+`")
	content = re.ReplaceAllString(content, "")

	return content
}

// cleanMarkdown cleans up markdown formatting for better embedding
func (p *MarkdownParser) cleanMarkdown(content string) string {
	// Keep heading text, drop the markers
	re := regexp.MustCompile(`(?m)^#+\s+(.*)$`)
	content = re.ReplaceAllString(content, "$1")

	content = strings.ReplaceAll(content, "**", "")
	content = strings.ReplaceAll(content, "__", "")

	// Links and images keep only their text
	re = regexp.MustCompile(`!?\[([^\]]*)\]\([^\)]+\)`)
	content = re.ReplaceAllString(content, "$1")

	lines := strings.Split(content, "\n")
	var cleanLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanLines = append(cleanLines, line)
		}
	}

	return strings.Join(cleanLines, "\n\n")
}

// FileType returns the file type this parser handles
func (p *MarkdownParser) FileType() FileType {
	return FileTypeMD
}
