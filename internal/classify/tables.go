package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vbonduro/screensolve/internal/domain"
)

// KeywordGroup maps any of its keywords to one follow-up intent.
type KeywordGroup struct {
	Intent   domain.Intent `yaml:"intent"`
	Keywords []string      `yaml:"keywords"`
}

// Tables holds the data the classifier matches against. Groups in FollowUp
// are tested in order; the first group with a matching keyword wins.
type Tables struct {
	Synonyms map[string]domain.Category `yaml:"synonyms"`
	FollowUp []KeywordGroup             `yaml:"followup"`
}

func DefaultTables() *Tables {
	return &Tables{
		Synonyms: map[string]domain.Category{
			"mcq":          domain.CategoryMultipleChoice,
			"quiz":         domain.CategoryMultipleChoice,
			"question":     domain.CategoryMultipleChoice,
			"questions":    domain.CategoryMultipleChoice,
			"test":         domain.CategoryMultipleChoice,
			"error":        domain.CategoryDebugging,
			"bug":          domain.CategoryDebugging,
			"issue":        domain.CategoryDebugging,
			"exception":    domain.CategoryDebugging,
			"program":      domain.CategoryCoding,
			"algorithm":    domain.CategoryCoding,
			"leetcode":     domain.CategoryCoding,
			"hackerrank":   domain.CategoryCoding,
			"design":       domain.CategorySystemDesign,
			"architecture": domain.CategorySystemDesign,
			"diagram":      domain.CategorySystemDesign,
		},
		FollowUp: []KeywordGroup{
			{Intent: domain.IntentErrorFix, Keywords: []string{"error", "bug", "fix", "wrong", "incorrect", "not working", "broken"}},
			{Intent: domain.IntentExplanation, Keywords: []string{"explain", "clarify", "help understand", "how does"}},
			{Intent: domain.IntentOptimization, Keywords: []string{"optimize", "faster", "better", "improve", "efficient", "performance"}},
			{Intent: domain.IntentAlternative, Keywords: []string{"alternative", "other way", "different approach", "another solution"}},
		},
	}
}

// LoadTables reads a YAML tables file. Sections absent from the file keep
// their defaults.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier tables: %w", err)
	}

	var file Tables
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse classifier tables: %w", err)
	}

	t := DefaultTables()
	if len(file.Synonyms) > 0 {
		t.Synonyms = make(map[string]domain.Category, len(file.Synonyms))
		for k, v := range file.Synonyms {
			t.Synonyms[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	if len(file.FollowUp) > 0 {
		t.FollowUp = file.FollowUp
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate rejects tables that would break resolution: synonym targets must
// be canonical categories, and canonical labels cannot themselves be
// synonyms, which keeps Resolve idempotent.
func (t *Tables) Validate() error {
	for token, cat := range t.Synonyms {
		if !cat.Valid() {
			return fmt.Errorf("synonym %q maps to unknown category %q", token, cat)
		}
		if domain.Category(token).Valid() {
			return fmt.Errorf("synonym %q shadows a canonical category", token)
		}
	}
	for _, g := range t.FollowUp {
		if !g.Intent.Valid() {
			return fmt.Errorf("unknown follow-up intent %q", g.Intent)
		}
	}
	return nil
}

// Resolve maps a normalized token through the synonym table. Tokens without
// a synonym are returned as-is and may not be valid categories.
func (t *Tables) Resolve(token string) domain.Category {
	if cat, ok := t.Synonyms[token]; ok {
		return cat
	}
	return domain.Category(token)
}

// Intent classifies a follow-up question by case-insensitive keyword
// containment.
func (t *Tables) Intent(question string) domain.Intent {
	q := strings.ToLower(question)
	for _, g := range t.FollowUp {
		for _, kw := range g.Keywords {
			if strings.Contains(q, strings.ToLower(kw)) {
				return g.Intent
			}
		}
	}
	return domain.IntentGeneral
}

// Normalize reduces a raw label reply to a single lowercase token.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(`"`, "", "'", "").Replace(s)
	s = strings.Trim(s, ".")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// checklistOrder is the category asked about on each checklist line.
var checklistOrder = []domain.Category{
	domain.CategoryMultipleChoice,
	domain.CategoryCoding,
	domain.CategoryDebugging,
	domain.CategorySystemDesign,
}

// ParseChecklist maps a yes/no checklist reply to a category. A line answers
// yes when it is "yes" or ends in "yes". The lowest answered line wins.
func ParseChecklist(text string) domain.Category {
	yes := make(map[int]bool)
	for i, line := range strings.Split(text, "\n") {
		l := strings.ToLower(strings.TrimSpace(line))
		if l == "yes" || strings.HasSuffix(l, "yes") {
			yes[i+1] = true
		}
	}
	for i, cat := range checklistOrder {
		if yes[i+1] {
			return cat
		}
	}
	return domain.CategoryGeneral
}
