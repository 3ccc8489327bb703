// Package aggregate folds counted courses into the language/level/skill table.
package aggregate

import (
	"log/slog"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

// DefaultMinimum is the threshold applied when neither the request nor config names one.
const DefaultMinimum = 42

// Thresholds is the per-language minimum with a global default.
type Thresholds struct {
	Default     int
	PerLanguage map[string]int
}

// For returns the minimum for language.
func (t Thresholds) For(language string) int {
	if v, ok := t.PerLanguage[language]; ok {
		return v
	}
	return t.Default
}

// Below reports whether count falls under the language's minimum.
func (t Thresholds) Below(language string, count int) bool {
	return count < t.For(language)
}

// Classifier maps a course title to a skill.
type Classifier interface {
	Classify(title string) (constants.Skill, bool)
}

// Miss is a course whose title matched no skill.
type Miss struct {
	Language string
	Level    constants.Level
	Title    string
	Total    int
}

// Result is the aggregated table plus the language order it was built in.
type Result struct {
	Table     entity.AggregateTable
	Languages []string
	Misses    []Miss
}

// Aggregate sums resource totals per (language, level, skill). Every work item gets all
// four skills initialised to zero; courses sharing a skill accumulate. Unclassified
// courses are logged and contribute nothing.
func Aggregate(items []entity.WorkItemCourses, cls Classifier, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}

	res := Result{Table: make(entity.AggregateTable)}
	for _, wic := range items {
		lang, level := wic.Item.Language, wic.Item.Level

		levels, ok := res.Table[lang]
		if !ok {
			levels = make(map[constants.Level]entity.SkillCounts)
			res.Table[lang] = levels
			res.Languages = append(res.Languages, lang)
		}
		cell, ok := levels[level]
		if !ok {
			cell = make(entity.SkillCounts, 4)
			for _, sk := range constants.Skills() {
				cell[sk] = 0
			}
			levels[level] = cell
		}

		for _, rec := range wic.Courses {
			skill, ok := cls.Classify(rec.Title)
			if !ok {
				logger.Warn("aggregate.title.unclassified",
					"language", lang,
					"level", level,
					"title", rec.Title,
					"count", rec.ResourceTotal,
				)
				res.Misses = append(res.Misses, Miss{Language: lang, Level: level, Title: rec.Title, Total: rec.ResourceTotal})
				continue
			}
			cell[skill] += rec.ResourceTotal
		}
	}
	return res
}
