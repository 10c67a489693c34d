package rag

import (
	"strings"

	"github.com/google/uuid"
)

const (
	collectionPrefix = "pdf_"
	maxBaseLen       = 32
	suffixLen        = 8
)

var filenameReplacer = strings.NewReplacer(" ", "_", ".", "_", "-", "_")

// Namer derives collection names. The zero value draws its suffix from
// random UUIDs.
type Namer struct {
	// Random returns at least 8 characters of randomness.
	Random func() string
}

// CollectionName returns a fresh collection name for an uploaded file:
// "pdf_" + normalised filename (at most 32 runes) + "_" + 8 random characters.
func CollectionName(filename string) string {
	return Namer{}.Name(filename)
}

func (n Namer) Name(filename string) string {
	random := n.Random
	if random == nil {
		random = uuid.NewString
	}
	suffix := random()
	if len(suffix) > suffixLen {
		suffix = suffix[:suffixLen]
	}
	return collectionPrefix + SafeBase(filename) + "_" + suffix
}

// SafeBase lowercases filename, maps spaces, dots and hyphens to
// underscores and truncates the result to 32 runes.
func SafeBase(filename string) string {
	base := filenameReplacer.Replace(strings.ToLower(filename))
	if r := []rune(base); len(r) > maxBaseLen {
		base = string(r[:maxBaseLen])
	}
	return base
}
