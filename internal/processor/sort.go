package processor

import (
	"cmp"
	"slices"

	"github.com/sells-group/edgeflow/internal/model"
)

// Sortable edge attributes.
const (
	SortLength = "length"
	SortStart  = "start"
	SortEnd    = "end"
)

var edgeKeys = map[string]func(e resolvedEdge) float64{
	SortLength: func(e resolvedEdge) float64 { return e.length },
	SortStart:  func(e resolvedEdge) float64 { return float64(e.startID) },
	SortEnd:    func(e resolvedEdge) float64 { return float64(e.endID) },
}

// sortEdges stable-sorts edges by rules, first rule first. Rules naming an
// unknown attribute are skipped. It returns the attributes actually used.
func sortEdges(edges []resolvedEdge, rules []model.SortRule) []string {
	type applied struct {
		key  func(resolvedEdge) float64
		desc bool
	}
	var use []applied
	var names []string
	for _, r := range rules {
		key, ok := edgeKeys[r.Attribute]
		if !ok {
			continue
		}
		use = append(use, applied{key: key, desc: r.Descending})
		names = append(names, r.Attribute)
	}
	if len(use) == 0 {
		return nil
	}

	slices.SortStableFunc(edges, func(a, b resolvedEdge) int {
		for _, u := range use {
			c := cmp.Compare(u.key(a), u.key(b))
			if u.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return names
}
