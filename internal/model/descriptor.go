package model

import "sort"

// SortRule orders edges inside a cluster. Rules apply by ascending Priority.
type SortRule struct {
	Attribute  string `yaml:"attribute" json:"attribute"`
	Priority   int    `yaml:"priority" json:"priority"`
	Descending bool   `yaml:"descending" json:"descending"`
}

// Valid reports whether the rule names an attribute.
func (r SortRule) Valid() bool { return r.Attribute != "" }

// OrderSortRules drops invalid rules and returns the rest by ascending
// priority, keeping input order among equal priorities.
func OrderSortRules(rules []SortRule) []SortRule {
	out := make([]SortRule, 0, len(rules))
	for _, r := range rules {
		if r.Valid() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// FilterFactory describes a point filter handed to per-cluster collaborators.
type FilterFactory struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// HeuristicFactory describes a heuristic weighting used opaquely by processors.
type HeuristicFactory struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}
