package domain

import "time"

// TicketHistory is an immutable audit trail entry written with every
// successful status transition.
type TicketHistory struct {
	ID         string
	TicketID   string
	FromStatus TicketStatus
	ToStatus   TicketStatus
	Attempt    int
	Note       *string
	CreatedAt  time.Time
}

// TicketStats summarizes ticket counts for dashboards.
type TicketStats struct {
	Total     int
	ByStatus  map[TicketStatus]int
	ByUrgency map[TicketUrgency]int
}
