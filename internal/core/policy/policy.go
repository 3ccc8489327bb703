// Package policy turns a discovered taxonomy into the ordered list of work items to crawl.
package policy

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

// LevelPolicy is the per-language allow-list of level codes with a default fallback.
type LevelPolicy struct {
	Default     []constants.Level
	PerLanguage map[string][]constants.Level
}

// DefaultPolicy mirrors the platform's audit scope: English up to C1, everything else up to B1.
func DefaultPolicy() LevelPolicy {
	return LevelPolicy{
		Default: constants.DefaultAllowedLevels,
		PerLanguage: map[string][]constants.Level{
			"İngilizce": {constants.A1, constants.A2, constants.B1, constants.B2, constants.C1},
		},
	}
}

// FromConfig builds a policy from raw config strings. Config validation has already
// rejected unknown codes, so unparseable entries are skipped here.
func FromConfig(cfg common.LevelsConfig) LevelPolicy {
	p := LevelPolicy{PerLanguage: make(map[string][]constants.Level, len(cfg.PerLanguage))}
	if lv, _, ok := constants.ParseLevels(cfg.Default); ok && len(lv) > 0 {
		p.Default = lv
	} else {
		p.Default = constants.DefaultAllowedLevels
	}
	for lang, raw := range cfg.PerLanguage {
		if lv, _, ok := constants.ParseLevels(raw); ok {
			p.PerLanguage[lang] = lv
		}
	}
	return p
}

// Allowed returns the allow-list that applies to language.
func (p LevelPolicy) Allowed(language string) []constants.Level {
	if lv, ok := p.PerLanguage[language]; ok {
		return lv
	}
	return p.Default
}

func (p LevelPolicy) allows(language string, level constants.Level) bool {
	for _, lv := range p.Allowed(language) {
		if lv == level {
			return true
		}
	}
	return false
}

// SelectLanguages keeps only the requested languages, in discovery order. An empty
// request keeps everything. Matching ignores surrounding whitespace and case.
func SelectLanguages(tax entity.Taxonomy, languages []string) (entity.Taxonomy, error) {
	if len(languages) == 0 {
		return tax, nil
	}
	wanted := make(map[string]struct{}, len(languages))
	for _, l := range languages {
		wanted[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}

	out := make(entity.Taxonomy, 0, len(languages))
	for _, lang := range tax {
		if _, ok := wanted[strings.ToLower(strings.TrimSpace(lang.Language))]; ok {
			out = append(out, lang)
		}
	}
	if len(out) == 0 {
		return nil, common.JobError(common.ErrNoMatch,
			fmt.Sprintf("none of the selected languages %v exist on the platform", languages), nil)
	}
	return out, nil
}

// Filter extracts a level code from every taxonomy entry and keeps the ones allowed for
// their language. Skipped entries are logged. Order is language then level discovery order.
func Filter(tax entity.Taxonomy, p LevelPolicy, logger *slog.Logger) ([]entity.WorkItem, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var items []entity.WorkItem
	for _, e := range tax.Entries() {
		level, ok := constants.ExtractLevel(e.LevelLabel)
		if !ok {
			logger.Warn("policy.skip.no_level_code", "language", e.Language, "label", e.LevelLabel)
			continue
		}
		if !p.allows(e.Language, level) {
			logger.Info("policy.skip.not_allowed", "language", e.Language, "label", e.LevelLabel, "level", level)
			continue
		}
		items = append(items, entity.WorkItem{
			Language:   e.Language,
			LevelLabel: e.LevelLabel,
			Level:      level,
			LevelURL:   e.LevelURL,
		})
	}

	if len(items) == 0 {
		return nil, common.JobError(common.ErrNoWorkItems, "no language level matched the level policy", nil)
	}
	return items, nil
}
