package sync

// CursorState is the mutable position of one stream.
// Only CursorValue survives between syncs; LastSeenID chains the pages of a
// single scan and is cleared whenever a sync starts.
type CursorState struct {
	CursorValue string
	LastSeenID  string
}

// State is the persisted form of a stream's position.
type State struct {
	UpdatedAt string `json:"updatedAt"`
}

// Phase is where a stream is in its sync run.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseValidated
	PhaseRequest
	PhaseDecode
	PhaseContinue
	PhaseDone
	PhaseTerminated
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseValidated:
		return "VALIDATED"
	case PhaseRequest:
		return "REQUEST"
	case PhaseDecode:
		return "DECODE"
	case PhaseContinue:
		return "CONTINUE"
	case PhaseDone:
		return "DONE"
	case PhaseTerminated:
		return "TERMINATED"
	case PhaseFailed:
		return "TERMINATED(failed)"
	default:
		return "UNKNOWN"
	}
}
