// Package classify maps course titles to language-skill buckets.
package classify

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/skills-audit/constants"
)

// Rule binds a title pattern to a skill.
type Rule struct {
	Skill   constants.Skill
	Pattern *regexp.Regexp
}

// wordRule matches any of terms as a whole word. Go's \b is ASCII-only, so the boundary
// is spelled out with Unicode classes to keep "konuşma" and friends intact.
func wordRule(skill constants.Skill, terms ...string) Rule {
	alts := make([]string, len(terms))
	for i, t := range terms {
		alts[i] = regexp.QuoteMeta(t)
	}
	expr := `(?i)(?:^|[^\p{L}\p{N}_])(?:` + strings.Join(alts, "|") + `)(?:$|[^\p{L}\p{N}_])`
	return Rule{Skill: skill, Pattern: regexp.MustCompile(expr)}
}

// DefaultRules recognise Turkish and English skill names. Rule order is the tie-break
// when a title names more than one skill.
func DefaultRules() []Rule {
	return []Rule{
		wordRule(constants.Listening, "dinleme", "listening"),
		wordRule(constants.Reading, "okuma", "reading"),
		wordRule(constants.Writing, "yazma", "writing"),
		wordRule(constants.Speaking, "konuşma", "konusma", "speaking"),
	}
}

// compound titles such as "ReadingSkills" or "speak-skill"; the stem must start a word
// so "Bread Skills" stays unclassified.
var reSkillsSuffix = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(listen|read|writ|speak)(?:ing|e)?[\s_-]*skills?`)

// Classifier is a pure title -> skill function.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier over rules; nil rules means DefaultRules.
func New(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the skill a title counts towards, false when it matches none.
func (c *Classifier) Classify(title string) (constants.Skill, bool) {
	t := normalize(title)
	if t == "" {
		return "", false
	}
	for _, r := range c.rules {
		if r.Pattern.MatchString(t) {
			return r.Skill, true
		}
	}
	if m := reSkillsSuffix.FindStringSubmatch(t); m != nil {
		stem := strings.ToLower(m[1])
		if stem == "writ" {
			stem = "write"
		}
		return constants.CanonicalizeSkill(stem)
	}
	return "", false
}

// normalize folds the dotted capital I, which has no simple case fold to "i"
// and would otherwise break "DİNLEME"-style matches.
func normalize(title string) string {
	return strings.ReplaceAll(strings.TrimSpace(title), "İ", "i")
}
