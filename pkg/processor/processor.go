package processor

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 450
	DefaultChunkOverlap = 120
)

// DefaultSeparators are tried in order: paragraph, line, sentence end,
// whitespace, then raw character boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "!", "?", " ", ""}

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// Processor splits document text into overlapping chunks.
type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = DefaultChunkOverlap
	}
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}

	return Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithSeparators(config.Separators),
			// separators open the piece that follows them, so punctuation
			// at a boundary stays in a chunk
			textsplitter.WithKeepSeparator(true),
		),
	}
}

func New() Processor {
	return NewWithConfig(ProcessorConfig{})
}

// Split returns the chunks of text in document order. Blank input yields no
// chunks. The same text always produces the same boundaries.
func (p Processor) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	parts, err := p.splitter.SplitText(text)
	if err != nil {
		// Only token-counting length functions can fail here.
		return nil
	}

	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, part)
	}

	return chunks
}

func (p Processor) Config() ProcessorConfig {
	return p.config
}
