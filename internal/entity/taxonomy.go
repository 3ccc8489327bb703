package entity

import "github.com/joseph-ayodele/skills-audit/constants"

// LevelLink is one proficiency-level link discovered under a language.
type LevelLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// LanguageLevels groups the level links of one language in discovery order.
type LanguageLevels struct {
	Language string      `json:"language"`
	Levels   []LevelLink `json:"levels"`
}

// Taxonomy is the discovered language -> level label -> url mapping.
// Slices keep discovery order, which drives WorkItem order.
type Taxonomy []LanguageLevels

// TaxonomyEntry is a single (language, level label, url) triple.
type TaxonomyEntry struct {
	Language   string `json:"language"`
	LevelLabel string `json:"level_label"`
	LevelURL   string `json:"level_url"`
}

// Entries flattens the taxonomy in language then level discovery order.
func (t Taxonomy) Entries() []TaxonomyEntry {
	var out []TaxonomyEntry
	for _, lang := range t {
		for _, lv := range lang.Levels {
			out = append(out, TaxonomyEntry{Language: lang.Language, LevelLabel: lv.Label, LevelURL: lv.URL})
		}
	}
	return out
}

// Languages returns language names in discovery order.
func (t Taxonomy) Languages() []string {
	out := make([]string, 0, len(t))
	for _, lang := range t {
		out = append(out, lang.Language)
	}
	return out
}

// Empty is true when no language carries at least one level link.
func (t Taxonomy) Empty() bool {
	for _, lang := range t {
		if len(lang.Levels) > 0 {
			return false
		}
	}
	return true
}

// WorkItem is a taxonomy entry that passed level-policy filtering.
type WorkItem struct {
	Language   string          `json:"language"`
	LevelLabel string          `json:"level_label"`
	Level      constants.Level `json:"level"`
	LevelURL   string          `json:"level_url"`
}
