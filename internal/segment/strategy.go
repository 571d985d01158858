package segment

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
)

const maxTitleRunes = 120

// StrategyKind tags the splitting plan chosen for a document.
type StrategyKind int

const (
	GenericSplit StrategyKind = iota
	MarkupAwareSplit
)

func (k StrategyKind) String() string {
	switch k {
	case MarkupAwareSplit:
		return "markup"
	default:
		return "generic"
	}
}

// Strategy is the result of inspecting a document before splitting it.
// Boundaries holds the byte offsets where top-level markup blocks start and
// is only set for MarkupAwareSplit.
type Strategy struct {
	Kind       StrategyKind
	Boundaries []int
}

func parseMarkdown(src []byte) ast.Node {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return md.Parser().Parse(gmtext.NewReader(src))
}

// SelectStrategy picks the markup-aware splitter when text contains block
// markup (headings, emphasis, fenced code, lists) and the generic one otherwise.
func SelectStrategy(text string) Strategy {
	src := []byte(text)
	doc := parseMarkdown(src)
	if !hasMarkup(doc) {
		return Strategy{Kind: GenericSplit}
	}
	return Strategy{Kind: MarkupAwareSplit, Boundaries: blockBoundaries(doc, src)}
}

func hasMarkup(doc ast.Node) bool {
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading, ast.KindFencedCodeBlock, ast.KindList, ast.KindEmphasis:
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

// blockBoundaries returns the start offsets of top-level blocks. A heading
// stays attached to the block that follows it.
func blockBoundaries(doc ast.Node, src []byte) []int {
	var starts []int
	afterHeading := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		pos, ok := blockStart(n, src)
		if ok && !afterHeading && pos > 0 && pos < len(src) {
			starts = append(starts, pos)
		}
		afterHeading = n.Kind() == ast.KindHeading
	}
	sort.Ints(starts)

	out := starts[:0]
	for i, s := range starts {
		if i > 0 && s == starts[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func blockStart(n ast.Node, src []byte) (int, bool) {
	if fc, ok := n.(*ast.FencedCodeBlock); ok {
		if fc.Info != nil {
			return lineStart(src, fc.Info.Segment.Start), true
		}
		if fc.Lines().Len() > 0 {
			return prevLineStart(src, fc.Lines().At(0).Start), true
		}
		return 0, false
	}
	if n.Type() == ast.TypeBlock {
		if lines := n.Lines(); lines != nil && lines.Len() > 0 {
			return lineStart(src, lines.At(0).Start), true
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if pos, ok := blockStart(c, src); ok {
			return pos, true
		}
	}
	return 0, false
}

func lineStart(src []byte, i int) int {
	if i > len(src) {
		i = len(src)
	}
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	return i
}

func prevLineStart(src []byte, i int) int {
	ls := lineStart(src, i)
	if ls == 0 {
		return 0
	}
	return lineStart(src, ls-1)
}

// splitAtOffsets cuts text at the given ascending byte offsets.
func splitAtOffsets(text string, offsets []int) []string {
	parts := make([]string, 0, len(offsets)+1)
	start := 0
	for _, off := range offsets {
		if off <= start || off >= len(text) {
			continue
		}
		parts = append(parts, text[start:off])
		start = off
	}
	return append(parts, text[start:])
}

// ExtractTitle returns a best-effort title: the first markdown heading, or
// the first non-empty line, truncated.
func ExtractTitle(text string) string {
	src := []byte(text)
	doc := parseMarkdown(src)

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		parts := make([]string, 0, lines.Len())
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			parts = append(parts, strings.TrimSpace(string(seg.Value(src))))
		}
		title = strings.Join(parts, " ")
		return ast.WalkStop, nil
	})

	if title == "" {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				title = line
				break
			}
		}
	}

	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
	}
	return title
}
