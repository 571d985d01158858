package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// separator divides text at every occurrence of pattern. cut is the offset
// inside the match where the text is divided, so pieces stay contiguous.
type separator struct {
	pattern string
	cut     int
}

// genericSeparators are tried coarsest first.
var genericSeparators = []separator{
	{pattern: "\n# ", cut: 1},
	{pattern: "\n## ", cut: 1},
	{pattern: "\n### ", cut: 1},
	{pattern: "\n\n", cut: 2},
	{pattern: "\n", cut: 1},
	{pattern: ". ", cut: 2},
	{pattern: "? ", cut: 2},
	{pattern: "! ", cut: 2},
	{pattern: "; ", cut: 2},
	{pattern: ", ", cut: 2},
	{pattern: " ", cut: 1},
}

func splitKeep(text string, sep separator) []string {
	var parts []string
	start, from := 0, 0
	for {
		idx := strings.Index(text[from:], sep.pattern)
		if idx < 0 {
			break
		}
		cut := from + idx + sep.cut
		if cut > start && cut < len(text) {
			parts = append(parts, text[start:cut])
			start = cut
		}
		from += idx + len(sep.pattern)
	}
	return append(parts, text[start:])
}

// splitRecursive breaks text into pieces no larger than the target, using the
// coarsest separator that yields more than one piece.
func (s *Segmenter) splitRecursive(text string, level int, out []string) []string {
	if s.counter.CountTokens(text) <= s.cfg.TargetChunkTokens {
		return append(out, text)
	}
	for l := level; l < len(genericSeparators); l++ {
		parts := splitKeep(text, genericSeparators[l])
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			out = s.splitRecursive(p, l+1, out)
		}
		return out
	}
	return append(out, s.hardSplit(text)...)
}

// hardSplit cuts text with no usable separator on rune boundaries.
func (s *Segmenter) hardSplit(text string) []string {
	var out []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := len(runes)
		for n > 1 {
			tokens := s.counter.CountTokens(string(runes[:n]))
			if tokens <= s.cfg.TargetChunkTokens {
				break
			}
			next := n * s.cfg.TargetChunkTokens / tokens
			if next >= n {
				next = n - 1
			}
			if next < 1 {
				next = 1
			}
			n = next
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

// wordStarts lists byte offsets where a word begins.
func wordStarts(text string) []int {
	var starts []int
	prevSpace := true
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && prevSpace {
			starts = append(starts, i)
		}
		prevSpace = space
	}
	return starts
}

// tail returns the longest word-aligned suffix of text that fits in limit
// tokens.
func (s *Segmenter) tail(text string, limit int) string {
	if limit <= 0 || text == "" {
		return ""
	}
	starts := wordStarts(text)
	lo, hi := 0, len(starts)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.counter.CountTokens(text[starts[mid]:]) <= limit {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == len(starts) {
		return ""
	}
	return text[starts[lo]:]
}

func runeLen(text string) int {
	return utf8.RuneCountInString(text)
}
