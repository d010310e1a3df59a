package relay

import "encoding/json"

// Connection states. A connection starts in Connecting and only ever moves
// forward: Connecting -> Authenticated -> Subscribed -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// inbound is one client message; Type selects the variant.
type inbound struct {
	Type         string         `json:"type"`
	SessionToken string         `json:"sessionToken,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// Envelope is one server-to-client message.
type Envelope struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel,omitempty"`
	Error   string         `json:"error,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (e Envelope) encode() []byte {
	b, _ := json.Marshal(e)
	return b
}
