package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
)

const (
	// NoRelevantContent is returned without calling the model when retrieval finds nothing.
	NoRelevantContent = "No relevant content found in the document."

	// RefusalText is what the model is told to answer when the context lacks the information.
	RefusalText = "The information is not available in the provided company documents."
)

const systemPromptTemplate = `You are a helpful enterprise assistant that answers questions using **only** the provided document context.
If the information is not present in the context, reply exactly:
"%s"

Context:
%s
`

// Synthesizer answers questions from the active index. Grounding is an
// instruction to the model; the answer is not checked against the context.
type Synthesizer struct {
	registry  *Registry
	generator types.Generator
}

func NewSynthesizer(registry *Registry, generator types.Generator) *Synthesizer {
	return &Synthesizer{registry: registry, generator: generator}
}

func (s *Synthesizer) Answer(ctx context.Context, question string) (string, error) {
	active, ok := s.registry.Get()
	if !ok {
		return "", ErrNoActiveIndex
	}

	chunks, err := active.Retriever.Retrieve(ctx, question)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return NoRelevantContent, nil
	}

	answer, err := s.generator.Generate(ctx, SystemPrompt(chunks), question)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// SystemPrompt embeds the chunks, in retrieval order and separated by blank
// lines, into the grounding instruction.
func SystemPrompt(chunks []models.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return fmt.Sprintf(systemPromptTemplate, RefusalText, strings.Join(parts, "\n\n"))
}
