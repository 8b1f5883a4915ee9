package request

import "time"

// Request states. A request starts open and transitions to closed exactly
// once, when its unlock quota is reached or its event date has passed.
// Closed is terminal.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Request is a client's call for a musical performance. Quota bounds how many
// artists may ever unlock the client's contact details.
type Request struct {
	ID          string
	ClientID    string
	Title       string
	Description string
	EventDate   time.Time
	Quota       int
	State       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Open reports whether the request still accepts unlocks.
func (r Request) Open() bool {
	return r.State == StateOpen
}
