package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/analystcopilot/core/pkg/models"
)

// DBSchemaParser implements the db_schema contract from §4.1 by
// regex-extracting CREATE TABLE blocks from DDL text such as a .sql dump.
// FormatLiveSchema renders TableSummary values into the same DDL-like text
// this parser consumes; nothing in the ingestion coordinator introspects a
// live database.
type DBSchemaParser struct{}

var createTableRE = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?["` + "`" + `]?([A-Za-z0-9_.]+)["` + "`" + `]?\s*\((.*?)\)\s*;`)

func (p *DBSchemaParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	text := string(input)
	matches := createTableRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		doc := ParsedDocument{
			Title:    "schema",
			Content:  text,
			Metadata: cloneMeta(metadata, models.JSONMap{"table_count": 0}),
		}
		return sink.Emit(ctx, doc)
	}

	for _, m := range matches {
		table := m[1]
		body := m[2]
		columns := extractColumns(body)
		doc := ParsedDocument{
			Title:   table,
			Content: "Table " + table + "\n\nColumns:\n" + strings.Join(columns, "\n"),
			Metadata: cloneMeta(metadata, models.JSONMap{
				"table_name":  table,
				"columns":     columns,
				"column_count": len(columns),
			}),
		}
		if err := sink.Emit(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

var columnLineRE = regexp.MustCompile(`^\s*["` + "`" + `]?([A-Za-z0-9_]+)["` + "`" + `]?\s+([A-Za-z0-9_()]+)`)
var ddlKeywords = map[string]bool{"primary": true, "foreign": true, "constraint": true, "key": true, "unique": true, "check": true, "index": true}

func extractColumns(body string) []string {
	var cols []string
	for _, line := range strings.Split(body, ",") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := columnLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if ddlKeywords[strings.ToLower(m[1])] {
			continue
		}
		cols = append(cols, m[1]+" "+m[2])
	}
	return cols
}

func cloneMeta(metadata, extra models.JSONMap) models.JSONMap {
	md := models.JSONMap{}
	for k, v := range extra {
		md[k] = v
	}
	for k, v := range metadata {
		md[k] = v
	}
	return md
}

// TableSummary is the shape a live introspection collaborator returns per
// table, rendered into DDL-like text by FormatLiveSchema.
type TableSummary struct {
	Name    string
	Columns []ColumnSummary
}

// ColumnSummary describes one introspected column.
type ColumnSummary struct {
	Name     string
	DataType string
}

// FormatLiveSchema renders introspected table summaries into the same
// DDL-like text DBSchemaParser.Parse expects, so a live connection and an
// uploaded .sql dump share one extraction path.
func FormatLiveSchema(tables []TableSummary) string {
	var b strings.Builder
	for _, t := range tables {
		b.WriteString("CREATE TABLE ")
		b.WriteString(t.Name)
		b.WriteString(" (\n")
		for i, c := range t.Columns {
			b.WriteString("  ")
			b.WriteString(c.Name)
			b.WriteString(" ")
			b.WriteString(c.DataType)
			if i < len(t.Columns)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(");\n\n")
	}
	return b.String()
}
