package pipeline

// State is the orchestrator phase.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateDetecting
	StateTranslating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateDetecting:
		return "detecting"
	case StateTranslating:
		return "translating"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeTranslated Outcome = "translated"
	OutcomeNoText     Outcome = "no_text"
	OutcomeNoFrame    Outcome = "no_frame"
)
