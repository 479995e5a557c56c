// Package chunker splits document text into overlapping, structure-aware
// segments sized for embedding, per §4.2. It has no teacher analogue in
// the pack for PII-adjacent alert text, so its algorithm is grounded
// directly on the structural Chunk/ChunkContext shape from
// kadirpekel-hector's v2/rag package (section/heading-aware chunk metadata)
// while implementing the overlap and merge rules spec.md specifies exactly.
package chunker

import (
	"regexp"
	"strings"
)

// Config enumerates the chunker's knobs; no dynamic kwargs, per §4.2.
type Config struct {
	MaxChunkSize      int
	MinChunkSize      int
	OverlapSize       int
	PreserveStructure bool
	SplitOnHeadings   bool
	SplitOnParagraphs bool
	SplitOnSentences  bool
}

// DefaultConfig returns the defaults named in §4.2.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:      1000,
		MinChunkSize:      100,
		OverlapSize:       200,
		PreserveStructure: true,
		SplitOnHeadings:   true,
		SplitOnParagraphs: true,
		SplitOnSentences:  true,
	}
}

// Chunk is one overlapping segment produced by Chunker.Split.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// Metadata is the per-chunk metadata enumerated in §4.2 step 6.
type Metadata struct {
	ChunkIndex      int
	ChunkSize       int
	WordCount       int
	HeadingLevel    int
	HeadingTitle    string
	SectionStart    bool
	ContainsCode    bool
	ContainsList    bool
	ContainsHeadings bool
	TotalChunks     int
}

var (
	headingRE      = regexp.MustCompile(`(?m)^(#{1,6})\s+(.*)$`)
	sentenceEndRE  = regexp.MustCompile(`[.!?]+["')\]]?\s+`)
	codeBlockRE    = regexp.MustCompile("```|^\\s{4,}\\S")
	listItemRE     = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
	multiNewlineRE = regexp.MustCompile(`\n{3,}`)
)

// abbreviations are tokens that never end a sentence for splitting
// purposes, per §4.2 step 4.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "inc": true, "etc": true,
	"jr": true, "sr": true, "vs": true, "e.g": true, "i.e": true,
}

// Chunker splits a document's text into chunks per Config.
type Chunker struct {
	cfg Config
}

// New builds a Chunker with the given configuration.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg}
}

type section struct {
	title   string
	level   int
	content string
}

// Split implements the algorithm in §4.2: normalize, optionally split into
// heading sections, accumulate paragraphs into size-bounded chunks with an
// overlap suffix, degrade to sentence splitting when paragraphs are absent,
// then merge/drop undersized chunks.
func (c *Chunker) Split(text string) []Chunk {
	normalized := normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return nil
	}

	var sections []section
	if c.cfg.PreserveStructure && c.cfg.SplitOnHeadings {
		sections = splitHeadings(normalized)
	} else {
		sections = []section{{content: normalized}}
	}

	var chunks []Chunk
	for _, sec := range sections {
		chunks = append(chunks, c.chunkSection(sec)...)
	}

	chunks = c.mergeSmall(chunks)

	for i := range chunks {
		chunks[i].Metadata.ChunkIndex = i
		chunks[i].Metadata.TotalChunks = len(chunks)
	}
	return chunks
}

// normalize implements §4.2 step 1.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = multiNewlineRE.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

// splitHeadings implements §4.2 step 2: one section per heading, plus an
// "Introduction" section for any text preceding the first heading.
func splitHeadings(text string) []section {
	matches := headingRE.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []section{{content: text}}
	}

	var sections []section
	if matches[0][0] > 0 {
		intro := strings.TrimSpace(text[:matches[0][0]])
		if intro != "" {
			sections = append(sections, section{title: "Introduction", content: intro})
		}
	}
	for i, m := range matches {
		level := m[3] - m[2]
		title := text[m[4]:m[5]]
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, section{
			title:   strings.TrimSpace(title),
			level:   level,
			content: strings.TrimSpace(text[start:end]),
		})
	}
	return sections
}

// chunkSection implements §4.2 steps 3–4 for one section.
func (c *Chunker) chunkSection(sec section) []Chunk {
	paragraphs := splitParagraphs(sec.content)
	if len(paragraphs) <= 1 && c.cfg.SplitOnSentences {
		if len(paragraphs) == 1 && len(paragraphs[0]) > c.cfg.MaxChunkSize {
			paragraphs = splitSentencesIntoGroups(paragraphs[0], c.cfg.MaxChunkSize)
		}
	}

	var chunks []Chunk
	var builder strings.Builder
	sectionStart := true

	flush := func() {
		if builder.Len() == 0 {
			return
		}
		txt := builder.String()
		chunks = append(chunks, Chunk{
			Text: txt,
			Metadata: Metadata{
				ChunkSize:        len(txt),
				WordCount:        len(strings.Fields(txt)),
				HeadingLevel:     sec.level,
				HeadingTitle:     sec.title,
				SectionStart:     sectionStart,
				ContainsCode:     codeBlockRE.MatchString(txt),
				ContainsList:     listItemRE.MatchString(txt),
				ContainsHeadings: sec.title != "",
			},
		})
		sectionStart = false
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		candidateLen := builder.Len()
		if candidateLen > 0 {
			candidateLen += 2 // paragraph separator
		}
		candidateLen += len(p)

		if builder.Len() > 0 && candidateLen > c.cfg.MaxChunkSize {
			prior := builder.String()
			flush()
			builder.Reset()
			builder.WriteString(overlapSuffix(prior, c.cfg.OverlapSize))
			if builder.Len() > 0 {
				builder.WriteString("\n\n")
			}
		}
		builder.WriteString(p)
		builder.WriteString("\n\n")

		for builder.Len() > c.cfg.MaxChunkSize {
			full := strings.TrimRight(builder.String(), "\n")
			cut := findSplitPoint(full, c.cfg.MaxChunkSize)
			head := full[:cut]
			tail := full[cut:]
			chunks = append(chunks, Chunk{
				Text: head,
				Metadata: Metadata{
					ChunkSize:        len(head),
					WordCount:        len(strings.Fields(head)),
					HeadingLevel:     sec.level,
					HeadingTitle:     sec.title,
					SectionStart:     sectionStart,
					ContainsCode:     codeBlockRE.MatchString(head),
					ContainsList:     listItemRE.MatchString(head),
					ContainsHeadings: sec.title != "",
				},
			})
			sectionStart = false
			builder.Reset()
			builder.WriteString(overlapSuffix(head, c.cfg.OverlapSize))
			builder.WriteString(tail)
		}
	}
	flush()
	return chunks
}

func splitParagraphs(text string) []string {
	return strings.Split(text, "\n\n")
}

// splitSentencesIntoGroups degrades to sentence splitting (§4.2 step 4),
// grouping sentences back into paragraph-sized units so chunkSection's
// accumulator logic applies unchanged.
func splitSentencesIntoGroups(text string, targetSize int) []string {
	sentences := splitSentences(text)
	var groups []string
	var cur strings.Builder
	for _, s := range sentences {
		if cur.Len() > 0 && cur.Len()+len(s) > targetSize {
			groups = append(groups, cur.String())
			cur.Reset()
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		groups = append(groups, cur.String())
	}
	return groups
}

// splitSentences splits on sentence boundaries, refusing to split right
// after a token in the abbreviation set (§4.2 step 4).
func splitSentences(text string) []string {
	locs := sentenceEndRE.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var out []string
	last := 0
	for _, loc := range locs {
		candidate := text[last:loc[1]]
		preceding := strings.TrimRight(text[last:loc[0]], ".!?\"')] ")
		lastWord := strings.ToLower(lastToken(preceding))
		if abbreviations[lastWord] {
			continue
		}
		out = append(out, candidate)
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

func lastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// overlapSuffix returns the tail of text to seed the next chunk with,
// preferring the tail after the last sentence boundary and falling back to
// a word-aligned cut (§4.2 step 3).
func overlapSuffix(text string, size int) string {
	if size <= 0 || len(text) == 0 {
		return ""
	}
	if len(text) <= size {
		return text
	}
	tail := text[len(text)-size:]

	sentences := splitSentences(tail)
	if len(sentences) > 1 {
		return strings.TrimSpace(strings.Join(sentences[1:], ""))
	}

	// Word-aligned fallback: trim to the first whitespace boundary.
	if idx := strings.IndexAny(tail, " \n\t"); idx >= 0 {
		return strings.TrimSpace(tail[idx:])
	}
	return tail
}

// findSplitPoint finds a safe cut point at or before maxLen, preferring a
// paragraph/sentence/word boundary.
func findSplitPoint(text string, maxLen int) int {
	if maxLen >= len(text) {
		return len(text)
	}
	window := text[:maxLen]
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx
	}
	sentences := sentenceEndRE.FindAllStringIndex(window, -1)
	if len(sentences) > 0 {
		return sentences[len(sentences)-1][1]
	}
	if idx := strings.LastIndexAny(window, " \n\t"); idx > 0 {
		return idx
	}
	return maxLen
}

// mergeSmall implements §4.2 step 5: merge undersized chunks into their
// predecessor when the combination fits, otherwise drop anything under
// MinChunkSize/2.
func (c *Chunker) mergeSmall(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	var out []Chunk
	for _, ch := range chunks {
		if len(out) > 0 && ch.Metadata.ChunkSize < c.cfg.MinChunkSize {
			combined := out[len(out)-1].Text + "\n\n" + ch.Text
			if len(combined) <= c.cfg.MaxChunkSize {
				prev := out[len(out)-1]
				prev.Text = combined
				prev.Metadata.ChunkSize = len(combined)
				prev.Metadata.WordCount = len(strings.Fields(combined))
				prev.Metadata.ContainsCode = prev.Metadata.ContainsCode || ch.Metadata.ContainsCode
				prev.Metadata.ContainsList = prev.Metadata.ContainsList || ch.Metadata.ContainsList
				out[len(out)-1] = prev
				continue
			}
			if ch.Metadata.ChunkSize < c.cfg.MinChunkSize/2 {
				continue // dropped: too small even standing alone
			}
		}
		out = append(out, ch)
	}
	return out
}
