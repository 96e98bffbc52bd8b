package notify

import "time"

// Message is the JSON frame pushed to subscribers.
type Message struct {
	Type       string         `json:"type"`
	TicketID   string         `json:"ticket_id"`
	Status     string         `json:"status,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	Timestamp  float64        `json:"timestamp"`
	Data       map[string]any `json:"data"`
}

// UnixSeconds renders t as fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Welcome is sent once to every new subscriber.
type Welcome struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewWelcome builds the greeting frame.
func NewWelcome(service string) Welcome {
	return Welcome{Type: "connection_established", Message: "Connected to " + service + " live ticket updates"}
}

// Echo mirrors unrecognised client text.
type Echo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewEcho builds an echo frame.
func NewEcho(text string) Echo {
	return Echo{Type: "echo", Message: text}
}
