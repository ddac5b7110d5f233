package constants

// Workflow identifies which batch workflow is driving a run.
type Workflow string

const (
	// WorkflowFlow is the betweenness flow simulation workflow.
	WorkflowFlow Workflow = "flow"

	// WorkflowAccessibility is the KNN accessibility workflow.
	WorkflowAccessibility Workflow = "knn"
)

// Valid returns true if the workflow is a recognized value.
func (w Workflow) Valid() bool {
	switch w {
	case WorkflowFlow, WorkflowAccessibility:
		return true
	}
	return false
}

// String returns the string representation of the workflow.
func (w Workflow) String() string {
	return string(w)
}

// OutputSubdir is the folder under Cities/<city>/ that holds runs of this workflow.
func (w Workflow) OutputSubdir() string {
	if w == WorkflowAccessibility {
		return "KNN_workflow"
	}
	return "Simulations"
}

// DefaultPairingsFile is the pairing table file name looked up in the data
// folder when none is given.
func (w Workflow) DefaultPairingsFile() string {
	if w == WorkflowAccessibility {
		return "pairing.csv"
	}
	return "pairings.csv"
}
