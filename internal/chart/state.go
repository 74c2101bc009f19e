package chart

// State is a stage of a pipeline run.
type State string

const (
	StateIdle       State = "idle"
	StateExtracting State = "extracting"
	StateEnriching  State = "enriching"
	StateAssembling State = "assembling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether a run may move from s to next.
// Failed is reachable only from Extracting and Assembling.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateIdle:
		return next == StateExtracting
	case StateExtracting:
		return next == StateEnriching || next == StateFailed
	case StateEnriching:
		return next == StateAssembling
	case StateAssembling:
		return next == StateCompleted || next == StateFailed
	default:
		return false
	}
}
