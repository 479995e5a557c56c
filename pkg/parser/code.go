package parser

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/analystcopilot/core/pkg/models"
)

// CodeParser implements the code contract from §4.1. It parses one source
// file's content into a single document, annotated with a best-effort
// structural summary (imports, declared classes/functions, a cyclomatic
// complexity proxy). It does no directory traversal itself: the relative
// path arrives through metadata["path"], as ZipParser sets it for each
// archive entry, and ZipParser skips entries under any directory in
// skipDirs (.git, node_modules, __pycache__, target, build, vendor, .venv).
type CodeParser struct{}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, "target": true, "build": true, "vendor": true, ".venv": true,
}

// SkipDir reports whether a directory entry name should be skipped during
// a tree walk feeding this parser.
func SkipDir(name string) bool { return skipDirs[name] }

var (
	importRE    = regexp.MustCompile(`(?m)^\s*(import\s+.+|from\s+\S+\s+import\s+.+|#include\s+[<"].+[>"]|require\(['"].+['"]\))`)
	classRE     = regexp.MustCompile(`(?m)^\s*(?:public\s+|private\s+|export\s+)?(?:class|interface|struct|type)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	funcRE      = regexp.MustCompile(`(?m)^\s*(?:public|private|protected|static|async|export)?\s*(?:func|function|def)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	branchWords = regexp.MustCompile(`\b(if|else if|elif|for|while|case|catch|except|&&|\|\|)\b`)
)

func (p *CodeParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	text := string(input)
	path, _ := metadata["path"].(string)
	lang := detectLanguage(path)

	var imports, classes, functions []string
	for _, m := range importRE.FindAllString(text, -1) {
		imports = append(imports, strings.TrimSpace(m))
	}
	for _, m := range classRE.FindAllStringSubmatch(text, -1) {
		classes = append(classes, m[1])
	}
	for _, m := range funcRE.FindAllStringSubmatch(text, -1) {
		functions = append(functions, m[1])
	}

	// Cyclomatic complexity proxy: 1 + count of branching keywords/operators,
	// a heuristic approximation rather than a real AST-based metric.
	complexity := 1 + len(branchWords.FindAllString(text, -1))

	doc := ParsedDocument{
		Title:   path,
		Content: text,
		Metadata: models.JSONMap{
			"language":    lang,
			"path":        path,
			"imports":     imports,
			"classes":     classes,
			"functions":   functions,
			"complexity":  complexity,
			"line_count":  strings.Count(text, "\n") + 1,
		},
	}
	for k, v := range metadata {
		doc.Metadata[k] = v
	}
	return sink.Emit(ctx, doc)
}

var extLang = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".ts": "typescript",
	".java": "java", ".rb": "ruby", ".c": "c", ".cpp": "cpp", ".cs": "csharp",
}

func detectLanguage(path string) string {
	if lang, ok := extLang[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "unknown"
}
