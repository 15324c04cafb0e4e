package cluster

import (
	"strconv"

	"github.com/sells-group/edgeflow/internal/model"
)

// vtx adds a vertex-channel collection tagged with key.
func vtx(a *model.Arena, name string, key int64) model.Handle {
	return a.Add(&model.Collection{
		Name:       name,
		Source:     model.ChannelVertices,
		Tags:       model.ParseTags([]string{model.TagVtx, model.TagCluster + ":" + strconv.FormatInt(key, 10)}),
		Attributes: []string{model.AttrVtxEndpoint},
		Points:     []model.Point{{ID: 1}, {ID: 2}},
	})
}

// edges adds an edge-channel collection tagged with key.
func edges(a *model.Arena, name string, key int64) model.Handle {
	return a.Add(&model.Collection{
		Name:       name,
		Source:     model.ChannelEdges,
		Tags:       model.ParseTags([]string{model.TagEdges, model.TagCluster + ":" + strconv.FormatInt(key, 10)}),
		Attributes: []string{model.AttrEdgeEndpoints},
		Edges:      []model.Edge{{Start: 1, End: 2}},
	})
}

// raw adds a collection with arbitrary tags on ch.
func raw(a *model.Arena, name string, ch model.Channel, tags ...string) model.Handle {
	return a.Add(&model.Collection{
		Name:       name,
		Source:     ch,
		Tags:       model.ParseTags(tags),
		Attributes: []string{model.AttrVtxEndpoint, model.AttrEdgeEndpoints},
	})
}

func names(a *model.Arena, hs []model.Handle) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, a.Get(h).Name)
	}
	return out
}

func issueKinds(issues []Issue) []IssueKind {
	out := make([]IssueKind, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Kind)
	}
	return out
}
