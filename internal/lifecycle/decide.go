// Package lifecycle owns the network state carried from one pairing to the
// next: it decides whether topology is rebuilt or restored, injects demand
// nodes, and materializes the graph the computation service reads.
package lifecycle

import (
	"github.com/unaflow/unaflow/internal/constants"
	"github.com/unaflow/unaflow/internal/pairing"
)

// Action is the network transition applied at the start of a pairing.
type Action int

const (
	// Rebuild derives a new snapshot from the street layer and caches it.
	Rebuild Action = iota
	// RestoreClean reseeds the node table from a copy of the cached snapshot.
	RestoreClean
	// KeepAsIs leaves the working network untouched. Decide never returns it.
	KeepAsIs
)

func (a Action) String() string {
	switch a {
	case Rebuild:
		return "rebuild"
	case RestoreClean:
		return "restore_clean"
	case KeepAsIs:
		return "keep_as_is"
	}
	return "unknown"
}

// Rebuild reasons recorded in the decision trace.
const (
	reasonFirstRow       = "first_row"
	reasonCostChanged    = "cost_changed"
	reasonNetworkChanged = "network_file_changed"
	reasonSameNetwork    = "same_network"
)

// Decide picks the transition for row index given the previous row. prev
// is nil for the first row.
func Decide(wf constants.Workflow, index int, prev *pairing.Record, cur pairing.Record) Action {
	a, _ := decide(wf, index, prev, cur)
	return a
}

func decide(wf constants.Workflow, index int, prev *pairing.Record, cur pairing.Record) (Action, string) {
	switch {
	case index == 0 || prev == nil:
		return Rebuild, reasonFirstRow
	case prev.Network.Cost != cur.Network.Cost:
		return Rebuild, reasonCostChanged
	case wf == constants.WorkflowAccessibility && NetworkFileChanged(prev, cur):
		return Rebuild, reasonNetworkChanged
	}
	return RestoreClean, reasonSameNetwork
}

// NetworkFileChanged reports whether cur names a different street file
// than prev. A nil prev counts as a change.
func NetworkFileChanged(prev *pairing.Record, cur pairing.Record) bool {
	return prev == nil || prev.Network.File != cur.Network.File
}
