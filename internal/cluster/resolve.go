package cluster

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgeflow/internal/model"
)

// Capabilities are declared by the concrete pipeline and read at boot.
type Capabilities struct {
	SupportsEdgeSorting  bool `yaml:"supports_edge_sorting" mapstructure:"supports_edge_sorting"`
	RequiresEdgeSorting  bool `yaml:"requires_edge_sorting" mapstructure:"requires_edge_sorting"`
	SupportsPointFilters bool `yaml:"supports_point_filters" mapstructure:"supports_point_filters"`
	RequiresPointFilters bool `yaml:"requires_point_filters" mapstructure:"requires_point_filters"`
}

// Options tune how recoverable problems are reported.
type Options struct {
	// QuietMissingClusterPairElement suppresses the unpaired-vertex warning.
	QuietMissingClusterPairElement bool
	// FatalMissingClusterPairElement turns an unpaired vertex into ErrMissingClusterPair.
	FatalMissingClusterPairElement bool
}

// Inputs are the raw channels of a run.
type Inputs struct {
	Vertices   []model.Handle
	Edges      []model.Handle
	SortRules  []model.SortRule
	Filters    []model.FilterFactory
	Heuristics []model.HeuristicFactory
}

// Pair is one vertex collection and the edge collections sharing its key.
type Pair struct {
	Key    int64
	Vertex model.Handle
	Edges  []model.Handle
}

// Resolution is the outcome of boot-time validation.
type Resolution struct {
	Dictionary *Dictionary
	Pairs      []Pair
	// Vertices are the valid, uniquely keyed vertex collections in input order.
	Vertices []model.Handle
	// Edges are the valid edge collections in input order, orphans included.
	Edges      []model.Handle
	Orphans    []model.Handle
	Unpaired   []model.Handle
	Disabled   []model.Handle
	Issues     []Issue
	SortRules  []model.SortRule
	Filters    []model.FilterFactory
	Heuristics []model.HeuristicFactory
	// MaxKey is the largest cluster key seen on any input.
	MaxKey int64
}

// Resolver validates raw inputs and produces cluster pairs.
type Resolver struct {
	arena *model.Arena
	caps  Capabilities
	opts  Options
	log   *zap.Logger
}

// NewResolver creates a Resolver over arena.
func NewResolver(arena *model.Arena, caps Capabilities, opts Options) *Resolver {
	return &Resolver{
		arena: arena,
		caps:  caps,
		opts:  opts,
		log:   zap.L().With(zap.String("component", "cluster.resolver")),
	}
}

// Resolve runs boot validation. A non-nil error is always fatal and means no
// processing may begin; recoverable problems are returned as Issues.
func (r *Resolver) Resolve(in Inputs) (*Resolution, error) {
	res := &Resolution{
		Dictionary: NewDictionary(r.arena, model.TagCluster),
	}

	// MaxKey covers every input, including ones the role checks reject, so
	// fresh keys never collide with a forwarded collection.
	for _, hs := range [][]model.Handle{in.Vertices, in.Edges} {
		for _, h := range hs {
			if c := r.arena.Get(h); c != nil {
				if k, ok := c.ClusterKey(); ok && k > res.MaxKey {
					res.MaxKey = k
				}
			}
		}
	}

	vertices := r.gather(res, in.Vertices, model.ChannelVertices)
	edges := r.gather(res, in.Edges, model.ChannelEdges)

	for _, h := range vertices {
		c := r.arena.Get(h)
		if !c.VtxReady() {
			r.issue(res, IssueMissingMetadata, c, "a vtx input has no metadata and will be discarded")
			r.disable(res, c)
			continue
		}
		if !res.Dictionary.CreateKey(h) {
			r.issue(res, IssueDuplicateKey, c, "at least two vtx inputs share the same cluster tag, only one will be processed")
			r.disable(res, c)
			continue
		}
		res.Vertices = append(res.Vertices, h)
	}

	for _, h := range edges {
		c := r.arena.Get(h)
		if !c.EdgeReady() {
			r.issue(res, IssueMissingMetadata, c, "an edges input has no edge metadata and will be discarded")
			r.disable(res, c)
			continue
		}
		res.Edges = append(res.Edges, h)
		if !res.Dictionary.TryAddEntry(h) {
			r.issue(res, IssueOrphanEdges, c, "some input edges have no associated vtx")
			res.Orphans = append(res.Orphans, h)
		}
	}

	if len(res.Edges) == 0 {
		r.log.Error("missing edges")
		return nil, eris.Wrap(ErrMissingEdges, "resolve")
	}

	if r.caps.SupportsEdgeSorting {
		res.SortRules = model.OrderSortRules(in.SortRules)
		if r.caps.RequiresEdgeSorting && len(res.SortRules) == 0 {
			r.log.Error("missing valid sorting rules")
			return nil, eris.Wrap(ErrMissingSortRules, "resolve")
		}
	}

	if r.caps.SupportsPointFilters {
		res.Filters = in.Filters
		if r.caps.RequiresPointFilters && len(res.Filters) == 0 {
			r.log.Error("missing point filters")
			return nil, eris.Wrap(ErrMissingPointFilters, "resolve")
		}
	}

	res.Heuristics = in.Heuristics

	for _, h := range res.Vertices {
		c := r.arena.Get(h)
		key, _ := c.ClusterKey()
		entries := res.Dictionary.Entries(key)
		if len(entries) == 0 {
			res.Unpaired = append(res.Unpaired, h)
			if r.opts.FatalMissingClusterPairElement {
				r.log.Error("vtx input has no associated edges", zap.String("collection", c.Name))
				return nil, eris.Wrapf(ErrMissingClusterPair, "resolve: %s", c.Name)
			}
			if !r.opts.QuietMissingClusterPairElement {
				r.issue(res, IssueUnpairedVertex, c, "some input vtx have no associated edges")
			}
			continue
		}
		res.Pairs = append(res.Pairs, Pair{
			Key:    key,
			Vertex: h,
			Edges:  append([]model.Handle(nil), entries...),
		})
	}

	r.log.Debug("cluster pairs resolved",
		zap.Int("pairs", len(res.Pairs)),
		zap.Int("orphans", len(res.Orphans)),
		zap.Int("disabled", len(res.Disabled)),
		zap.Int("issues", len(res.Issues)),
	)
	return res, nil
}

// gather applies the role checks for one input channel and returns the
// collections whose role matches the channel.
func (r *Resolver) gather(res *Resolution, handles []model.Handle, ch model.Channel) []model.Handle {
	want := model.RoleVertex
	if ch == model.ChannelEdges {
		want = model.RoleEdge
	}

	var out []model.Handle
	for _, h := range handles {
		c := r.arena.Get(h)
		if c == nil || !c.Enabled() {
			continue
		}
		switch role := c.Role(); {
		case role == model.RoleAmbiguous:
			r.issue(res, IssueAmbiguousRole, c, "a data is marked as both vtx and edges, it will be ignored")
		case role == model.RoleNone:
			r.issue(res, IssueMissingRole, c, "a data is neither tagged vtx or edges and will be ignored")
		case role != want:
			r.issue(res, IssueMisplacedRole, c, "some "+role.String()+" data made its way to the "+string(ch)+" input, it will be ignored")
		default:
			out = append(out, h)
		}
	}
	return out
}

func (r *Resolver) issue(res *Resolution, kind IssueKind, c *model.Collection, msg string) {
	res.Issues = append(res.Issues, Issue{
		Kind:    kind,
		Channel: c.Source,
		Handle:  c.Handle,
		Name:    c.Name,
		Message: msg,
	})
	r.log.Warn(msg,
		zap.String("kind", string(kind)),
		zap.String("collection", c.Name),
		zap.String("channel", string(c.Source)),
	)
}

func (r *Resolver) disable(res *Resolution, c *model.Collection) {
	c.Disable()
	res.Disabled = append(res.Disabled, c.Handle)
}
