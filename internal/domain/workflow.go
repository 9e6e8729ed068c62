package domain

// Workflow describes the closed set of case states and the legal successors of each.
// An empty Transitions table allows any known state to follow any other.
type Workflow struct {
	Initial     CaseState
	Resolved    CaseState
	States      []CaseState
	Transitions map[CaseState][]CaseState
}

// DefaultWorkflow returns the unconstrained Open/InProgress/Resuelta workflow.
func DefaultWorkflow() Workflow {
	return Workflow{
		Initial:  CaseStateOpen,
		Resolved: CaseStateResolved,
		States:   []CaseState{CaseStateOpen, CaseStateInProgress, CaseStateResolved},
	}
}

// Knows reports whether state belongs to the workflow vocabulary.
// A workflow without a declared vocabulary accepts every state.
func (w Workflow) Knows(state CaseState) bool {
	if len(w.States) == 0 {
		return true
	}
	for _, s := range w.States {
		if s == state {
			return true
		}
	}
	return false
}

// Allows reports whether next may follow current.
func (w Workflow) Allows(current, next CaseState) bool {
	if !w.Knows(next) {
		return false
	}
	if len(w.Transitions) == 0 {
		return true
	}
	for _, candidate := range w.Transitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
