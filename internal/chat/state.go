package chat

import "github.com/soyeahso/querydesk/internal/domain"

// State is the session lifecycle as seen by the user.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateConnected     State = "connected"
	StateAwaitingInput State = "awaiting_input"
	StateProcessing    State = "processing"
	StateError         State = "error"
	StateDisconnected  State = "disconnected"
	StateReconnecting  State = "reconnecting"
)

// nextState applies a server status to the current state. Statuses the
// machine does not know leave it where it is.
func nextState(cur State, st domain.Status) State {
	switch st {
	case domain.StatusConnected, domain.StatusCompleted:
		return StateConnected
	case domain.StatusInitializing, domain.StatusProcessing:
		return StateProcessing
	case domain.StatusWaitingForInput:
		return StateAwaitingInput
	case domain.StatusError:
		return StateError
	case domain.StatusDisconnected:
		return StateDisconnected
	case domain.StatusReconnecting:
		return StateReconnecting
	default:
		return cur
	}
}

// afterSend is the local transition taken when the user answers.
func afterSend(cur State) State {
	if cur == StateAwaitingInput {
		return StateProcessing
	}
	return cur
}
