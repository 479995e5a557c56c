package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/ledongthuc/pdf"
)

// PDFParser implements the pdf contract from §4.1: one document per page,
// text-layer extraction first, falling back to a page-level warning (rather
// than OCR, which needs a provider this module doesn't wire) when a page's
// text layer is empty or unreadable.
type PDFParser struct{}

// NewPDFParser constructs a PDFParser. It's a function rather than a bare
// struct literal so registry wiring stays consistent with parsers that do
// carry setup state.
func NewPDFParser() *PDFParser { return &PDFParser{} }

func (p *PDFParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	r, err := pdf.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidationFailed, "pdf: failed to open document", err)
	}

	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			sink.Warn(Warning{Message: fmt.Sprintf("pdf: page %d is missing, skipped", i), Context: "pdf"})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			sink.Warn(Warning{
				Message: fmt.Sprintf("pdf: page %d has no extractable text layer (scanned image pages require OCR, which this ingestion path does not perform)", i),
				Context: "pdf",
			})
			continue
		}

		doc := ParsedDocument{
			Title:    fmt.Sprintf("page %d", i),
			Content:  strings.TrimSpace(text),
			Metadata: cloneMeta(metadata, models.JSONMap{"page": i, "page_count": numPages}),
		}
		if err := sink.Emit(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}
