package parser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/parser"
)

type collectingSink struct {
	docs     []parser.ParsedDocument
	warnings []parser.Warning
}

func (s *collectingSink) Emit(_ context.Context, doc parser.ParsedDocument) error {
	s.docs = append(s.docs, doc)
	return nil
}

func (s *collectingSink) Warn(w parser.Warning) { s.warnings = append(s.warnings, w) }

func TestWikiXMLSplitsOnPageElements(t *testing.T) {
	input := []byte(`<wiki>
		<page><title>First</title><author>alice</author><body>hello</body></page>
		<page><title>Second</title><body>world</body></page>
	</wiki>`)

	sink := &collectingSink{}
	p := &parser.WikiXMLParser{}
	require.NoError(t, p.Parse(context.Background(), input, nil, sink))
	require.Len(t, sink.docs, 2)
	require.Equal(t, "First", sink.docs[0].Title)
	require.Equal(t, "hello", sink.docs[0].Content)
	require.Equal(t, "alice", sink.docs[0].Author)
	require.Equal(t, "Second", sink.docs[1].Title)
}

func TestWikiXMLSplitsOnObjectPageElements(t *testing.T) {
	input := []byte(`<export>
		<object class="Page">
			<property name="title">Object Page</property>
			<property name="body">object content</property>
		</object>
		<object class="Attachment">
			<property name="name">ignored.png</property>
		</object>
	</export>`)

	sink := &collectingSink{}
	p := &parser.WikiXMLParser{}
	require.NoError(t, p.Parse(context.Background(), input, nil, sink))
	require.Len(t, sink.docs, 1)
	require.Equal(t, "Object Page", sink.docs[0].Title)
	require.Equal(t, "object content", sink.docs[0].Content)
}

func TestWikiXMLFallsBackToSingleDocumentWhenNoPagesFound(t *testing.T) {
	input := []byte(`<document><title>Standalone</title><body>just one doc</body></document>`)

	sink := &collectingSink{}
	p := &parser.WikiXMLParser{}
	require.NoError(t, p.Parse(context.Background(), input, nil, sink))
	require.Len(t, sink.docs, 1)
	require.Equal(t, "Standalone", sink.docs[0].Title)
	require.Equal(t, "just one doc", sink.docs[0].Content)
}

func TestWikiXMLRejectsDoctype(t *testing.T) {
	input := []byte(`<!DOCTYPE foo [ <!ENTITY xxe SYSTEM "file:///etc/passwd"> ]><page><title>x</title></page>`)

	sink := &collectingSink{}
	p := &parser.WikiXMLParser{}
	err := p.Parse(context.Background(), input, nil, sink)
	require.Error(t, err)
	require.Empty(t, sink.docs)
}

func TestWikiXMLMetadataMergedIntoEachDocument(t *testing.T) {
	input := []byte(`<page><title>A</title><body>x</body></page>`)
	sink := &collectingSink{}
	p := &parser.WikiXMLParser{}
	require.NoError(t, p.Parse(context.Background(), input, models.JSONMap{"origin": "acme"}, sink))
	require.Len(t, sink.docs, 1)
	require.Equal(t, "acme", sink.docs[0].Metadata["origin"])
}
