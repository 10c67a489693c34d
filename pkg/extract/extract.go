// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Func extracts the text of a single document.
type Func func(ctx context.Context, data []byte) (string, error)

// Extractor dispatches on the file extension.
type Extractor struct {
	byExt map[string]Func
}

func New() *Extractor {
	return &Extractor{
		byExt: map[string]Func{
			".pdf":  PDF,
			".html": HTML,
			".htm":  HTML,
			".txt":  Text,
			".md":   Text,
		},
	}
}

// Register adds or replaces the extractor used for ext (".docx", "docx", ...).
func (e *Extractor) Register(ext string, fn Func) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	e.byExt[ext] = fn
}

func (e *Extractor) Supports(filename string) bool {
	_, ok := e.byExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.byExt))
	for ext := range e.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := e.byExt[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
	return fn(ctx, data)
}
