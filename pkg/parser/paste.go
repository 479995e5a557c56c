package parser

import (
	"context"
	"strings"

	"github.com/analystcopilot/core/pkg/models"
)

// PasteParser implements the paste contract from §4.1: the entire input is
// one document, with the first non-empty line used as a title when the
// caller hasn't supplied one in metadata.
type PasteParser struct{}

func (p *PasteParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	text := strings.TrimSpace(string(input))
	title := ""
	if t, ok := metadata["title"].(string); ok && t != "" {
		title = t
	} else if lines := strings.SplitN(text, "\n", 2); len(lines) > 0 {
		title = strings.TrimSpace(lines[0])
		if len(title) > 120 {
			title = title[:120]
		}
	}
	doc := ParsedDocument{
		Title:    title,
		Content:  text,
		Metadata: models.JSONMap{},
	}
	for k, v := range metadata {
		doc.Metadata[k] = v
	}
	return sink.Emit(ctx, doc)
}
