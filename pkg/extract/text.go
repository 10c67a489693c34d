package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Text accepts UTF-8 plain text and normalises line endings.
func Text(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("document is not valid UTF-8 text")
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return text, nil
}
