package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
)

// WikiXMLParser implements the wiki_xml contract from §4.1. It is built
// directly on stdlib encoding/xml rather than a third-party XML library: no
// library in the pack offers entity-expansion control finer than stdlib's
// (which refuses external entities and DTDs by default so long as Decoder's
// Entity map is left nil and external subsets are never fetched), so
// reaching for one here would add a dependency without adding safety. Every
// DOCTYPE or ENTITY declaration is treated as a security
// violation rather than silently ignored, since a wiki export containing one
// is far more likely to be a crafted XXE payload than a legitimate page.
//
// Pages are split on two shapes, mirroring Confluence's two export forms:
// plain `<page>` elements, or `<object class="Page">` elements from the
// older object-dump exporter. When neither shape appears anywhere in the
// document, the whole input is treated as a single page rather than
// silently producing nothing.
type WikiXMLParser struct{}

// wikiProperty captures an object-exporter `<property name="...">value</property>`
// child, the object-dump exporter's way of attaching named fields.
type wikiProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// wikiElement is decoded generically for both `<page>` and
// `<object class="Page">` shapes: neither exporter uses the same child/attr
// names consistently, so every plausible title/content/author source is
// captured and resolved in priority order afterward.
type wikiElement struct {
	Attrs      []xml.Attr     `xml:",any,attr"`
	Title      string         `xml:"title"`
	Name       string         `xml:"name"`
	Author     string         `xml:"author"`
	Created    string         `xml:"created"`
	Body       string         `xml:"body"`
	Content    string         `xml:"content"`
	Properties []wikiProperty `xml:"property"`
	InnerXML   string         `xml:",innerxml"`
}

func (p *WikiXMLParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	if err := rejectDangerousXML(input); err != nil {
		return err
	}

	matches, err := collectWikiElements(input)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidationFailed, "wiki_xml: malformed XML", err)
	}

	if len(matches) == 0 {
		return p.emitWholeDocument(ctx, input, metadata, sink)
	}

	for index, raw := range matches {
		var el wikiElement
		if err := xml.Unmarshal(raw, &el); err != nil {
			sink.Warn(Warning{Message: fmt.Sprintf("page %d failed to decode: %v", index, err), Context: "wiki_xml"})
			continue
		}
		doc := ParsedDocument{
			Title:     resolveWikiTitle(el, index),
			Content:   resolveWikiContent(el),
			Author:    strings.TrimSpace(el.Author),
			CreatedAt: ParseDate(strings.TrimSpace(el.Created)),
			Metadata:  models.JSONMap{"page_index": index},
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

// emitWholeDocument is the fallback path when no `<page>` or
// `object[@class="Page"]` element appears anywhere in the input: the entire
// document becomes a single ParsedDocument.
func (p *WikiXMLParser) emitWholeDocument(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	var el wikiElement
	if err := xml.Unmarshal(input, &el); err != nil {
		return apperrors.Wrap(apperrors.KindValidationFailed, "wiki_xml: malformed XML", err)
	}
	content := resolveWikiContent(el)
	if content == "" {
		content = strings.TrimSpace(extractText(input))
	}
	doc := ParsedDocument{
		Title:     resolveWikiTitle(el, 0),
		Content:   content,
		Author:    strings.TrimSpace(el.Author),
		CreatedAt: ParseDate(strings.TrimSpace(el.Created)),
		Metadata:  models.JSONMap{"page_index": 0},
	}
	for k, v := range metadata {
		doc.Metadata[k] = v
	}
	return sink.Emit(ctx, doc)
}

// collectWikiElements walks the token stream once and returns the raw bytes
// of every `<page>` or `<object class="Page">` element found, at any depth.
// Nested matches (an object inside a page, say) are not recursed into: each
// element is consumed whole via captureElement before the scan continues.
func collectWikiElements(input []byte) ([][]byte, error) {
	dec := xml.NewDecoder(strings.NewReader(string(input)))
	dec.Strict = true
	dec.Entity = nil

	var matches [][]byte
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !isWikiPageElement(start) {
			continue
		}
		raw, err := captureElement(dec, start)
		if err != nil {
			return nil, err
		}
		matches = append(matches, raw)
	}
	return matches, nil
}

// isWikiPageElement reports whether a start element is a `<page>` or an
// `<object class="Page">`.
func isWikiPageElement(start xml.StartElement) bool {
	if start.Name.Local == "page" {
		return true
	}
	if start.Name.Local != "object" {
		return false
	}
	for _, attr := range start.Attr {
		if attr.Name.Local == "class" && attr.Value == "Page" {
			return true
		}
	}
	return false
}

// captureElement re-encodes a full element (the already-consumed start
// token plus everything up to and including its matching end token) back to
// XML bytes, so it can be decoded a second time into the typed wikiElement
// shape without re-parsing the whole document from scratch.
func captureElement(dec *xml.Decoder, start xml.StartElement) ([]byte, error) {
	var buf strings.Builder
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeToken(start); err != nil {
		return nil, err
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if err := enc.EncodeToken(tok); err != nil {
			return nil, err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// resolveWikiTitle tries, in order: a <title> child, a <name> child, a
// title/name attribute, a named <property>, falling back to a generated
// placeholder.
func resolveWikiTitle(el wikiElement, index int) string {
	if t := strings.TrimSpace(el.Title); t != "" {
		return t
	}
	if n := strings.TrimSpace(el.Name); n != "" {
		return n
	}
	for _, attr := range el.Attrs {
		if attr.Name.Local == "title" || attr.Name.Local == "name" {
			if v := strings.TrimSpace(attr.Value); v != "" {
				return v
			}
		}
	}
	for _, prop := range el.Properties {
		if prop.Name == "title" || prop.Name == "name" {
			if v := strings.TrimSpace(prop.Value); v != "" {
				return v
			}
		}
	}
	return fmt.Sprintf("Page %d", index+1)
}

// resolveWikiContent prefers an explicit body/content child; failing that,
// falls back to every property value concatenated, then finally the
// element's full text.
func resolveWikiContent(el wikiElement) string {
	if b := strings.TrimSpace(el.Body); b != "" {
		return b
	}
	if c := strings.TrimSpace(el.Content); c != "" {
		return c
	}
	var parts []string
	for _, prop := range el.Properties {
		if prop.Name == "title" || prop.Name == "name" {
			continue
		}
		if v := strings.TrimSpace(prop.Value); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n")
	}
	return strings.TrimSpace(extractText([]byte(el.InnerXML)))
}

// extractText decodes an XML fragment and concatenates its character data,
// the closest stdlib equivalent to ElementTree.tostring(method="text") used
// by the exporter this parser is modeled on.
func extractText(fragment []byte) string {
	dec := xml.NewDecoder(strings.NewReader("<root>" + string(fragment) + "</root>"))
	dec.Strict = false
	dec.Entity = nil
	var buf strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			buf.Write(cd)
			buf.WriteByte(' ')
		}
	}
	return buf.String()
}

// rejectDangerousXML performs a cheap textual pre-check for DOCTYPE and
// entity declarations before the document ever reaches the decoder, as
// defense in depth against XXE/entity-expansion ("billion laughs") attacks.
func rejectDangerousXML(input []byte) error {
	s := string(input)
	lower := strings.ToLower(s)
	if strings.Contains(lower, "<!doctype") {
		return apperrors.New(apperrors.KindXMLSecurity, "wiki_xml: DOCTYPE declarations are not permitted")
	}
	if strings.Contains(lower, "<!entity") {
		return apperrors.New(apperrors.KindXMLSecurity, "wiki_xml: custom ENTITY declarations are not permitted")
	}
	return nil
}
