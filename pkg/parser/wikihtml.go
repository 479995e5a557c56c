package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"golang.org/x/net/html"
)

// WikiHTMLParser implements the wiki_html contract from §4.1: split by
// detected page containers (preference order), else by h1 boundaries, else
// a single document; strip script/style/nav/footer/header/aside first.
type WikiHTMLParser struct{}

// pageContainerClasses is the preference-ordered list of class names
// considered "page containers" before falling back to h1 splits.
var pageContainerClasses = []string{"wiki-content", "page-content", "article-body", "confluenceContent"}

var stripTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true, "header": true, "aside": true,
}

func (p *WikiHTMLParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	root, err := html.Parse(bytes.NewReader(input))
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidationFailed, "wiki_html: invalid HTML", err)
	}
	stripNoise(root)

	containers := findPageContainers(root)
	if len(containers) > 0 {
		for i, c := range containers {
			doc := buildDoc(c, i, metadata)
			if err := sink.Emit(ctx, doc); err != nil {
				return err
			}
		}
		return nil
	}

	h1s := findAll(root, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "h1" })
	if len(h1s) >= 1 {
		for i, h := range h1s {
			doc := buildDocFromHeading(h, i, metadata)
			if err := sink.Emit(ctx, doc); err != nil {
				return err
			}
		}
		return nil
	}

	doc := buildDoc(root, 0, metadata)
	return sink.Emit(ctx, doc)
}

func stripNoise(n *html.Node) {
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	for _, c := range children {
		if c.Type == html.ElementNode && stripTags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		stripNoise(c)
	}
}

func findPageContainers(root *html.Node) []*html.Node {
	var out []*html.Node
	for _, class := range pageContainerClasses {
		matches := findAll(root, func(n *html.Node) bool {
			return n.Type == html.ElementNode && hasClass(n, class)
		})
		if len(matches) > 0 {
			return matches
		}
	}
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if match(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func findTitle(n *html.Node) string {
	if h1s := findAll(n, func(x *html.Node) bool { return x.Type == html.ElementNode && x.Data == "h1" }); len(h1s) > 0 {
		return textContent(h1s[0])
	}
	if titles := findAll(n, func(x *html.Node) bool { return x.Type == html.ElementNode && x.Data == "title" }); len(titles) > 0 {
		return textContent(titles[0])
	}
	return ""
}

func buildDoc(n *html.Node, index int, metadata models.JSONMap) ParsedDocument {
	md := models.JSONMap{"container_index": index}
	for k, v := range metadata {
		md[k] = v
	}
	return ParsedDocument{
		Title:   findTitle(n),
		Content: textContent(n),
		Metadata: md,
	}
}

func buildDocFromHeading(h *html.Node, index int, metadata models.JSONMap) ParsedDocument {
	var b strings.Builder
	for sib := h.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode && sib.Data == "h1" {
			break
		}
		b.WriteString(textContent(sib))
		b.WriteString("\n")
	}
	md := models.JSONMap{"heading_index": index}
	for k, v := range metadata {
		md[k] = v
	}
	return ParsedDocument{
		Title:   textContent(h),
		Content: strings.TrimSpace(b.String()),
		Metadata: md,
	}
}
