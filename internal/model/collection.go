package model

import (
	"github.com/twpayne/go-geom"
)

// Attribute names that mark a collection as structurally ready for cluster work.
const (
	AttrVtxEndpoint   = "edgeflow/vtx_endpoint"
	AttrEdgeEndpoints = "edgeflow/edge_endpoints"
)

// Channel identifies which input a collection arrived on.
type Channel string

const (
	ChannelVertices Channel = "vtx"
	ChannelEdges    Channel = "edges"
)

// Role is the classification derived from a collection's tags.
type Role int

const (
	RoleNone Role = iota
	RoleVertex
	RoleEdge
	RoleAmbiguous
)

// String returns the human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleVertex:
		return "vertex"
	case RoleEdge:
		return "edge"
	case RoleAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Point is a single vertex record. ID is the endpoint key edges refer to.
type Point struct {
	ID    uint64     `yaml:"id" json:"id"`
	Coord geom.Coord `yaml:"-" json:"coord"`
}

// Edge is a single edge record referencing two vertex endpoint IDs.
type Edge struct {
	Start uint64 `yaml:"start" json:"start"`
	End   uint64 `yaml:"end" json:"end"`
}

// Collection is an ordered set of records plus tags and metadata. It is owned
// by an Arena and addressed everywhere else by its Handle.
type Collection struct {
	Handle     Handle
	Name       string
	Source     Channel
	Tags       *Tags
	Attributes []string
	Points     []Point
	Edges      []Edge

	disabled bool
}

// Role classifies the collection from its tags.
func (c *Collection) Role() Role {
	vtx := c.Tags.IsTagged(TagVtx)
	edges := c.Tags.IsTagged(TagEdges)
	switch {
	case vtx && edges:
		return RoleAmbiguous
	case vtx:
		return RoleVertex
	case edges:
		return RoleEdge
	default:
		return RoleNone
	}
}

// HasAttribute reports whether the collection carries the named metadata attribute.
func (c *Collection) HasAttribute(name string) bool {
	for _, a := range c.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// VtxReady reports whether the collection has the metadata a vertex set needs.
func (c *Collection) VtxReady() bool { return c.HasAttribute(AttrVtxEndpoint) }

// EdgeReady reports whether the collection has the metadata an edge set needs.
func (c *Collection) EdgeReady() bool { return c.HasAttribute(AttrEdgeEndpoints) }

// ClusterKey returns the typed cluster tag value.
func (c *Collection) ClusterKey() (int64, bool) {
	return c.Tags.Value(TagCluster)
}

// Disable excludes the collection from further processing and output. The
// collection stays in its arena.
func (c *Collection) Disable() { c.disabled = true }

// Enabled reports whether the collection is still part of the run.
func (c *Collection) Enabled() bool { return !c.disabled }

// NumRecords returns the number of records the collection holds.
func (c *Collection) NumRecords() int {
	if c.Source == ChannelEdges || c.Role() == RoleEdge {
		return len(c.Edges)
	}
	return len(c.Points)
}
