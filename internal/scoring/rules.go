// Package scoring maps activity kinds to score deltas. The rule table is
// built once from config and consulted on every ledger write.
package scoring

import (
	"github.com/sjmog/vibesuite/internal/config"
	"github.com/sjmog/vibesuite/internal/domain"
)

// Rule is one resolved scoring rule.
type Rule struct {
	Kind            domain.ActivityKind
	TaskSize        domain.TaskSize
	Professionalism float64
	Quality         float64
	Description     string
}

type key struct {
	kind domain.ActivityKind
	size domain.TaskSize
}

// Table indexes rules by (kind, task size).
type Table struct {
	rules map[key]Rule
}

// NewTable builds a rule table from config. Config validation has already
// rejected duplicate (kind, task_size) pairs.
func NewTable(rules []config.ScoringRuleConfig) *Table {
	t := &Table{rules: make(map[key]Rule, len(rules))}
	for _, rc := range rules {
		r := Rule{
			Kind:            domain.ActivityKind(rc.Kind),
			TaskSize:        domain.TaskSize(rc.TaskSize),
			Professionalism: rc.Professionalism,
			Quality:         rc.Quality,
			Description:     rc.Description,
		}
		t.rules[key{r.Kind, r.TaskSize}] = r
	}
	return t
}

// Lookup returns the deltas for an activity kind at the given task size.
// A kind with no rule scores zero on both axes; the activity is still
// recorded, it just does not move the needle.
func (t *Table) Lookup(kind domain.ActivityKind, size domain.TaskSize) (professionalism, quality float64, ok bool) {
	r, ok := t.rules[key{kind, size}]
	if !ok {
		return 0, 0, false
	}
	return r.Professionalism, r.Quality, true
}

// Rules returns all rules, for display.
func (t *Table) Rules() []Rule {
	res := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		res = append(res, r)
	}
	return res
}
