package processor

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgeflow/internal/model"
)

// Point filter names.
const (
	FilterBBox       = "bbox"
	FilterExcludeIDs = "exclude_ids"
)

// ErrUnknownFilter is returned for a filter name the processor cannot apply.
var ErrUnknownFilter = eris.New("processor: unknown point filter")

// applyFilters returns, per point, whether it survives every filter.
func applyFilters(points []model.Point, filters []model.FilterFactory) ([]bool, error) {
	keep := make([]bool, len(points))
	for i := range keep {
		keep[i] = true
	}

	for _, f := range filters {
		switch f.Name {
		case FilterBBox:
			minX, minY, maxX, maxY, err := bboxParams(f.Params)
			if err != nil {
				return nil, err
			}
			for i, pt := range points {
				if len(pt.Coord) < 2 {
					keep[i] = false
					continue
				}
				x, y := pt.Coord[0], pt.Coord[1]
				if x < minX || x > maxX || y < minY || y > maxY {
					keep[i] = false
				}
			}
		case FilterExcludeIDs:
			excluded := map[uint64]bool{}
			ids, _ := f.Params["ids"].([]any)
			for _, raw := range ids {
				v, ok := number(raw)
				if !ok {
					return nil, eris.Errorf("processor: exclude_ids: bad id %v", raw)
				}
				excluded[uint64(v)] = true
			}
			for i, pt := range points {
				if excluded[pt.ID] {
					keep[i] = false
				}
			}
		default:
			return nil, eris.Wrapf(ErrUnknownFilter, "%q", f.Name)
		}
	}
	return keep, nil
}

func bboxParams(params map[string]any) (minX, minY, maxX, maxY float64, err error) {
	vals := make([]float64, 4)
	for i, k := range []string{"min_x", "min_y", "max_x", "max_y"} {
		v, ok := number(params[k])
		if !ok {
			return 0, 0, 0, 0, eris.Errorf("processor: bbox: missing or invalid %s", k)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
