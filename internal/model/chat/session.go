package chat

import "time"

// Request is the conversational payload a client binds to a session.
type Request struct {
	Message string `json:"message"`
	// Context carries optional caller-supplied hints forwarded verbatim to the model.
	Context string `json:"context,omitempty"`
}

// Session captures a transient server-side conversation record.
type Session struct {
	ID        string    `json:"id"`
	Request   Request   `json:"request"`
	CreatedAt time.Time `json:"createdAt"`
}
