package facts

import (
	"strings"
	"unicode"
)

var bulletMarkers = []string{"- ", "* ", "+ ", "• "}

// ParseFacts reads one fact per marked line from a model response. Lines
// without a list marker are ignored, as are exact duplicates.
func ParseFacts(response string) []string {
	facts := []string{}
	seen := make(map[string]struct{})

	for _, line := range strings.Split(response, "\n") {
		fact, ok := stripMarker(strings.TrimSpace(line))
		if !ok {
			continue
		}
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		if _, dup := seen[fact]; dup {
			continue
		}
		seen[fact] = struct{}{}
		facts = append(facts, fact)
	}
	return facts
}

func stripMarker(line string) (string, bool) {
	for _, m := range bulletMarkers {
		if strings.HasPrefix(line, m) {
			return line[len(m):], true
		}
	}

	// numbered: "1. fact" or "1) fact"
	i := 0
	for i < len(line) && unicode.IsDigit(rune(line[i])) {
		i++
	}
	if i == 0 || i+1 >= len(line) {
		return "", false
	}
	if (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return line[i+2:], true
	}
	return "", false
}
