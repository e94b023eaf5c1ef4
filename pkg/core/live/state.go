package live

import "strings"

// State is the orchestrator lifecycle state.
type State int32

const (
	// StateIdle accepts Start.
	StateIdle State = iota
	// StateStarting is acquiring the microphone and opening the channel.
	StateStarting
	// StateRunning streams audio and interprets events.
	StateRunning
	// StateStopping is tearing down timer, channel and audio.
	StateStopping
	// StateFinalizing is producing and persisting the session record.
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateFinalizing:
		return "FINALIZING"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// canTransition lists the guarded edges of the lifecycle.
func canTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateStarting
	case StateStarting:
		return to == StateRunning || to == StateIdle || to == StateStopping
	case StateRunning:
		return to == StateStopping
	case StateStopping:
		return to == StateFinalizing
	case StateFinalizing:
		return to == StateIdle
	default:
		return false
	}
}

// Stop reasons reported in logs and metrics.
const (
	ReasonManual   = "manual"
	ReasonTimeout  = "timeout"
	ReasonError    = "error"
	ReasonClosed   = "closed"
	ReasonShutdown = "shutdown"
)
