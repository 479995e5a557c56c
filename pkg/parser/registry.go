// Package parser turns raw bytes/strings into a lazy stream of semantic
// ParsedDocuments for every source_type in §4.1. Parsers stream: each
// implementation yields documents through a callback rather than building
// an in-memory slice, so peak memory stays bounded independent of input
// size.
package parser

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
)

// ParsedDocument is one semantic unit a parser extracts from raw input.
type ParsedDocument struct {
	ID        string
	Title     string
	Content   string
	Author    string
	CreatedAt *time.Time
	Metadata  models.JSONMap
}

// Warning records a non-fatal issue surfaced during parsing (skipped rows,
// bad dates, per-file/page failures) without aborting the job.
type Warning struct {
	Message string
	Context string
}

// Sink receives documents and warnings as a parser streams them. Emit
// returns an error to request the parser stop early (e.g. the coordinator
// is shutting down); parsers must check this on every iteration.
type Sink interface {
	Emit(ctx context.Context, doc ParsedDocument) error
	Warn(w Warning)
}

// Parser is implemented by every source-type-specific streaming parser.
type Parser interface {
	Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error
}

// Registry dispatches (source_type, input, metadata) to a registered Parser.
type Registry struct {
	parsers map[models.SourceType]Parser
}

// NewRegistry builds a Registry with every built-in parser registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{parsers: make(map[models.SourceType]Parser)}
	r.parsers[models.SourceTicketCSV] = &TicketCSVParser{}
	r.parsers[models.SourceWikiHTML] = &WikiHTMLParser{}
	r.parsers[models.SourceWikiXML] = &WikiXMLParser{}
	r.parsers[models.SourcePDF] = NewPDFParser()
	r.parsers[models.SourceMarkdown] = &MarkdownParser{}
	r.parsers[models.SourcePaste] = &PasteParser{}
	r.parsers[models.SourceCode] = &CodeParser{}
	r.parsers[models.SourceDBSchema] = &DBSchemaParser{}
	r.parsers[models.SourceZip] = &ZipParser{registry: r}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option customizes Registry construction, e.g. to inject a live
// db_schema introspection collaborator.
type Option func(*Registry)

// WithParser overrides (or adds) the parser registered for a source type.
func WithParser(t models.SourceType, p Parser) Option {
	return func(r *Registry) { r.parsers[t] = p }
}

// Parse dispatches to the registered parser for sourceType.
func (r *Registry) Parse(ctx context.Context, sourceType models.SourceType, input []byte, metadata models.JSONMap, sink Sink) error {
	p, ok := r.parsers[sourceType]
	if !ok {
		return apperrors.New(apperrors.KindUnsupportedSource, "no parser registered for source type "+string(sourceType))
	}
	return p.Parse(ctx, input, metadata, sink)
}

// extensionMap and contentTypeMap back Detect's extension-first,
// MIME-second heuristic.
var extensionMap = map[string]models.SourceType{
	".csv":  models.SourceTicketCSV,
	".html": models.SourceWikiHTML,
	".htm":  models.SourceWikiHTML,
	".xml":  models.SourceWikiXML,
	".pdf":  models.SourcePDF,
	".md":   models.SourceMarkdown,
	".markdown": models.SourceMarkdown,
	".zip":  models.SourceZip,
	".sql":  models.SourceDBSchema,
	".go": models.SourceCode, ".py": models.SourceCode, ".js": models.SourceCode,
	".ts": models.SourceCode, ".java": models.SourceCode, ".rb": models.SourceCode,
}

var contentTypeMap = map[string]models.SourceType{
	"text/csv":                   models.SourceTicketCSV,
	"text/html":                  models.SourceWikiHTML,
	"application/xml":            models.SourceWikiXML,
	"text/xml":                   models.SourceWikiXML,
	"application/pdf":            models.SourcePDF,
	"text/markdown":              models.SourceMarkdown,
	"application/zip":            models.SourceZip,
	"application/x-sql":          models.SourceDBSchema,
}

// Detect implements §4.1's detect(filename, content_type): extension-first,
// MIME-second, unknown when both miss.
func Detect(filename, contentType string) models.SourceType {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionMap[ext]; ok {
		return t
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if t, ok := contentTypeMap[ct]; ok {
		return t
	}
	return models.SourceUnknown
}
