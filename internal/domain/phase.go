package domain

// Phase is the stage of the simulation pipeline currently executing.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseBeforeSession
	PhaseOnBar
	PhaseAfterSession
	PhaseScheduled
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseBeforeSession:
		return "BEFORE_SESSION"
	case PhaseOnBar:
		return "ON_BAR"
	case PhaseAfterSession:
		return "AFTER_SESSION"
	case PhaseScheduled:
		return "SCHEDULED"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
