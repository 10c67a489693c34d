package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
)

// PDF extracts page text, prefixing each non-empty page with a
// "--- Page N ---" marker and separating pages with a blank line.
func PDF(ctx context.Context, data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", fmt.Errorf("failed to parse PDF: empty input")
	}

	// the pdf reader panics on some truncated inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	loader := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	pages, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	for i, page := range pages {
		if strings.TrimSpace(page.PageContent) == "" {
			continue
		}
		num := i + 1
		if n, ok := page.Metadata["page"].(int); ok {
			num = n
		}
		parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", num, page.PageContent))
	}

	return strings.Join(parts, "\n\n"), nil
}
