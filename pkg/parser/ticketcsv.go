package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
)

// TicketCSVParser implements the ticket_csv contract from §4.1: one row
// becomes one document; recognized columns map to canonical fields; rows
// missing id-or-summary are skipped with a warning; malformed CSV fails the
// whole job.
type TicketCSVParser struct{}

// canonicalColumns maps recognized header names (lower-cased, trimmed) to
// the canonical field they populate.
var canonicalColumns = map[string]string{
	"id": "id", "key": "id", "ticket_id": "id", "ticket id": "id",
	"summary": "summary", "title": "summary",
	"description": "description", "desc": "description",
	"comments": "comments", "comment": "comments",
	"reporter": "reporter", "author": "reporter",
	"status": "status",
	"priority": "priority",
	"labels": "labels", "tags": "labels",
	"components": "components", "component": "components",
	"created": "created", "created_at": "created", "date created": "created",
}

func (p *TicketCSVParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	reader := csv.NewReader(strings.NewReader(string(input)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidationFailed, "ticket_csv: failed to read header", err)
	}
	colIndex := make(map[string]int)
	for i, h := range header {
		canon, ok := canonicalColumns[strings.ToLower(strings.TrimSpace(h))]
		if ok {
			colIndex[canon] = i
		}
	}

	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperrors.Wrap(apperrors.KindValidationFailed, "ticket_csv: malformed CSV", err)
		}
		rowNum++

		get := func(field string) string {
			idx, ok := colIndex[field]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		id := get("id")
		summary := get("summary")
		if id == "" || summary == "" {
			sink.Warn(Warning{
				Message: fmt.Sprintf("row %d missing id or summary, skipped", rowNum),
				Context: "ticket_csv",
			})
			continue
		}

		created := ParseDate(get("created"))
		if get("created") != "" && created == nil {
			sink.Warn(Warning{
				Message: fmt.Sprintf("row %d has an unparseable created date, left null", rowNum),
				Context: "ticket_csv",
			})
		}

		content := summary
		if desc := get("description"); desc != "" {
			content += "\n\n" + desc
		}
		if comments := get("comments"); comments != "" {
			content += "\n\nComments:\n" + comments
		}

		doc := ParsedDocument{
			ID:        id,
			Title:     summary,
			Content:   content,
			Author:    get("reporter"),
			CreatedAt: created,
			Metadata: models.JSONMap{
				"row":        rowNum,
				"status":     get("status"),
				"priority":   get("priority"),
				"labels":     splitList(get("labels")),
				"components": splitList(get("components")),
				"ticket_id":  id,
			},
		}
		for k, v := range metadata {
			doc.Metadata[k] = v
		}
		if err := sink.Emit(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
