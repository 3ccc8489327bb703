package constants

import (
	"strings"
)

// Skill is one of the four language-skill buckets a course can count towards.
type Skill string

const (
	Listening Skill = "D" // dinleme
	Reading   Skill = "O" // okuma
	Writing   Skill = "Y" // yazma
	Speaking  Skill = "K" // konuşma
)

// allSkills is also the fixed report column order.
var allSkills = []Skill{
	Listening,
	Reading,
	Writing,
	Speaking,
}

// Skills returns the skills in report column order.
func Skills() []Skill {
	out := make([]Skill, len(allSkills))
	copy(out, allSkills)
	return out
}

func (s Skill) Valid() bool {
	for _, sk := range allSkills {
		if s == sk {
			return true
		}
	}
	return false
}

// Name returns the English name of the skill.
func (s Skill) Name() string {
	switch s {
	case Listening:
		return "listening"
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	case Speaking:
		return "speaking"
	default:
		return ""
	}
}

// CanonicalizeSkill maps a free-form skill word (English stem or Turkish term) to a Skill.
func CanonicalizeSkill(input string) (Skill, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]Skill{
		"listen":    Listening,
		"listening": Listening,
		"dinleme":   Listening,
		"read":      Reading,
		"reading":   Reading,
		"okuma":     Reading,
		"write":     Writing,
		"writing":   Writing,
		"yazma":     Writing,
		"speak":     Speaking,
		"speaking":  Speaking,
		"konuşma":   Speaking,
		"konusma":   Speaking,
	}
	if sk, ok := synonyms[normalized]; ok {
		return sk, true
	}

	for _, sk := range allSkills {
		if strings.EqualFold(normalized, string(sk)) {
			return sk, true
		}
	}
	return "", false
}
