package batch

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/edgeflow/internal/model"
)

// Lookup maps a vertex endpoint ID to the index of its point in the vertex
// collection. Read-only once built.
type Lookup struct {
	index map[uint64]int
}

// Index returns the point index of id.
func (l *Lookup) Index(id uint64) (int, bool) {
	if l == nil {
		return 0, false
	}
	i, ok := l.index[id]
	return i, ok
}

// Len returns the number of indexed endpoints.
func (l *Lookup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.index)
}

// BuildLookup indexes points on the calling goroutine. When an ID repeats the
// first point wins.
func BuildLookup(points []model.Point) *Lookup {
	l := &Lookup{index: make(map[uint64]int, len(points))}
	for i, p := range points {
		if _, ok := l.index[p.ID]; !ok {
			l.index[p.ID] = i
		}
	}
	return l
}

// BuildLookupScoped splits points into partitions indexed concurrently, then
// merges them in partition order so the result matches BuildLookup.
func BuildLookupScoped(ctx context.Context, points []model.Point, partitions int) (*Lookup, error) {
	if partitions <= 0 {
		partitions = runtime.GOMAXPROCS(0)
	}
	if partitions > len(points) {
		partitions = len(points)
	}
	if partitions <= 1 {
		return BuildLookup(points), nil
	}

	size := (len(points) + partitions - 1) / partitions
	parts := make([]map[uint64]int, partitions)

	g, gctx := errgroup.WithContext(ctx)
	for p := range partitions {
		lo := p * size
		hi := min(lo+size, len(points))
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := make(map[uint64]int, hi-lo)
			for i := lo; i < hi; i++ {
				if _, ok := m[points[i].ID]; !ok {
					m[points[i].ID] = i
				}
			}
			parts[p] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l := &Lookup{index: make(map[uint64]int, len(points))}
	for _, m := range parts {
		for id, i := range m {
			if prev, ok := l.index[id]; !ok || i < prev {
				l.index[id] = i
			}
		}
	}
	return l, nil
}
