package pipeline

import (
	"strconv"

	"github.com/sells-group/edgeflow/internal/batch"
)

// State is a phase of the pipeline context. Callers may define their own
// states starting at StateUser.
type State int

const (
	StateInitial State = iota
	StateClusterProcessing
	StateClusterCompletingWork
	StateClusterWriting
	StateReadyToCompile
	StateCompiling
	StateDone

	StateUser State = 100
)

var stateNames = map[State]string{
	StateInitial:               "initial",
	StateClusterProcessing:     "cluster_processing",
	StateClusterCompletingWork: "cluster_completing_work",
	StateClusterWriting:        "cluster_writing",
	StateReadyToCompile:        "ready_to_compile",
	StateCompiling:             "compiling",
	StateDone:                  "done",
}

// clusterPhase reports whether s is one of the batch phases driven by
// ProcessClusters.
func (s State) clusterPhase() bool {
	return s == StateClusterProcessing || s == StateClusterCompletingWork || s == StateClusterWriting
}

// String returns the state name used in logs, metrics and phase records.
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	if s >= StateUser {
		return "user_" + strconv.Itoa(int(s-StateUser))
	}
	return "state_" + strconv.Itoa(int(s))
}

// Hooks are called on the orchestrating goroutine when a phase barrier is
// crossed. In inline mode they fire once per batch.
type Hooks struct {
	BatchCreated          func(b *batch.Batch)
	InitialProcessingDone func()
	WorkComplete          func()
	WritingDone           func()
	GraphCompilationDone  func()
	// Transition observes every state change.
	Transition func(from, to State)
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
