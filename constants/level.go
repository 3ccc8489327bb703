package constants

import (
	"regexp"
	"strconv"
	"strings"
)

// Level is one of the six CEFR proficiency tiers.
type Level string

const (
	A1 Level = "A1"
	A2 Level = "A2"
	B1 Level = "B1"
	B2 Level = "B2"
	C1 Level = "C1"
	C2 Level = "C2"
)

var allLevels = []Level{A1, A2, B1, B2, C1, C2}

// DefaultAllowedLevels applies to any language without an explicit allow-list.
var DefaultAllowedLevels = []Level{A1, A2, B1}

var reLevel = regexp.MustCompile(`(?i)\b(A1|A2|B1|B2|C1|C2)\b`)

func (l Level) Valid() bool {
	for _, lv := range allLevels {
		if l == lv {
			return true
		}
	}
	return false
}

// ExtractLevel finds the level code in a free-text label ("Almanca A1 Seviyesi" -> A1).
// The code must appear as a whole word; "B3" or "A12" yield false.
func ExtractLevel(label string) (Level, bool) {
	m := reLevel.FindString(label)
	if m == "" {
		return "", false
	}
	return Level(strings.ToUpper(m)), true
}

// ParseLevels converts raw strings (config, request payloads) into level codes,
// reporting the first invalid entry.
func ParseLevels(raw []string) ([]Level, string, bool) {
	out := make([]Level, 0, len(raw))
	for _, r := range raw {
		lv := Level(strings.ToUpper(strings.TrimSpace(r)))
		if !lv.Valid() {
			return nil, r, false
		}
		out = append(out, lv)
	}
	return out, "", true
}

// LessLevel orders levels by (letter, numeric suffix). Labels that do not follow the
// letter+digits shape sort by their text with suffix 0.
func LessLevel(a, b Level) bool {
	la, na := levelKey(string(a))
	lb, nb := levelKey(string(b))
	if la != lb {
		return la < lb
	}
	return na < nb
}

func levelKey(s string) (string, int) {
	if len(s) > 1 {
		if n, err := strconv.Atoi(s[1:]); err == nil {
			return s[:1], n
		}
	}
	return s, 0
}
