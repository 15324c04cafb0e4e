package cluster

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgeflow/internal/model"
)

// Fatal configuration errors. Any of these aborts a run before processing.
var (
	ErrMissingEdges        = eris.New("missing edges")
	ErrMissingSortRules    = eris.New("missing valid sorting rules")
	ErrMissingPointFilters = eris.New("missing point filters")
	ErrMissingClusterPair  = eris.New("vertex collection has no associated edges")
)

// IssueKind classifies a recoverable data problem.
type IssueKind string

const (
	IssueAmbiguousRole   IssueKind = "ambiguous_role"
	IssueMisplacedRole   IssueKind = "misplaced_role"
	IssueMissingRole     IssueKind = "missing_role"
	IssueMissingMetadata IssueKind = "missing_metadata"
	IssueDuplicateKey    IssueKind = "duplicate_key"
	IssueOrphanEdges     IssueKind = "orphan_edges"
	IssueUnpairedVertex  IssueKind = "unpaired_vertex"
)

// Issue is a recoverable problem found while resolving cluster pairs. The
// offending collection is excluded from pairing; the run continues.
type Issue struct {
	Kind    IssueKind     `json:"kind"`
	Channel model.Channel `json:"channel"`
	Handle  model.Handle  `json:"handle"`
	Name    string        `json:"name"`
	Message string        `json:"message"`
}

// IsFatal reports whether err is one of the boot-time configuration errors.
func IsFatal(err error) bool {
	return eris.Is(err, ErrMissingEdges) ||
		eris.Is(err, ErrMissingSortRules) ||
		eris.Is(err, ErrMissingPointFilters) ||
		eris.Is(err, ErrMissingClusterPair)
}
