package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/analystcopilot/core/pkg/models"
)

// MarkdownParser implements the markdown contract from §4.1: optional
// front matter is extracted into metadata, then the body is split on
// top-level (h1) headings into documents; a file with no h1 yields one
// document for its whole body.
type MarkdownParser struct{}

var (
	frontMatterRE = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)
	frontLineRE   = regexp.MustCompile(`^([A-Za-z0-9_-]+):\s*(.*)$`)
	mdH1RE        = regexp.MustCompile(`(?m)^#\s+(.*)$`)
)

func (p *MarkdownParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	text := string(input)
	front := models.JSONMap{}

	if m := frontMatterRE.FindStringSubmatch(text); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			if fm := frontLineRE.FindStringSubmatch(strings.TrimSpace(line)); fm != nil {
				front[fm[1]] = strings.Trim(strings.TrimSpace(fm[2]), `"'`)
			}
		}
		text = text[len(m[0]):]
	}

	matches := mdH1RE.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		doc := ParsedDocument{
			Title:    titleFromFront(front),
			Content:  strings.TrimSpace(text),
			Metadata: mergeMeta(front, metadata, 0),
		}
		return sink.Emit(ctx, doc)
	}

	for i, m := range matches {
		title := text[m[2]:m[3]]
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		doc := ParsedDocument{
			Title:    strings.TrimSpace(title),
			Content:  strings.TrimSpace(text[start:end]),
			Metadata: mergeMeta(front, metadata, i),
		}
		if err := sink.Emit(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func titleFromFront(front models.JSONMap) string {
	if t, ok := front["title"].(string); ok {
		return t
	}
	return ""
}

func mergeMeta(front, metadata models.JSONMap, section int) models.JSONMap {
	md := models.JSONMap{"section_index": section}
	for k, v := range front {
		md[k] = v
	}
	for k, v := range metadata {
		md[k] = v
	}
	return md
}
