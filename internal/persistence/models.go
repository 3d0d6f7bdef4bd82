package persistence

import (
	"fmt"
	"time"
)

// Priority ranks a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status is the board column a ticket belongs to.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusUpNext     Status = "up-next"
	StatusInProgress Status = "in-progress"
	StatusInReview   Status = "in-review"
	StatusCompleted  Status = "completed"
)

// Statuses lists every status column in board order.
func Statuses() []Status {
	return []Status{StatusBacklog, StatusUpNext, StatusInProgress, StatusInReview, StatusCompleted}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusUpNext, StatusInProgress, StatusInReview, StatusCompleted:
		return true
	}
	return false
}

// Author identifies who wrote a comment.
type Author string

const (
	AuthorDeveloper Author = "developer"
	AuthorAgent     Author = "agent"
)

// Valid reports whether a is a known author.
func (a Author) Valid() bool {
	return a == AuthorDeveloper || a == AuthorAgent
}

// Ticket is a unit of work on the board, merged with its complexity record and
// comments when read back.
type Ticket struct {
	ID           string
	Title        string
	Description  string
	Priority     Priority
	Status       Status
	Created      time.Time
	Updated      time.Time
	AgentContext *string
	// Position ranks the ticket inside its status column, larger first. Values
	// are not unique; ties are broken by Updated, newest first.
	Position   float64
	Complexity Complexity
	Comments   []Comment
}

// Complexity holds retrospective complexity metrics for a ticket.
type Complexity struct {
	FilesTouched            int
	ModulesCrossed          int
	StackLayersInvolved     int
	Dependencies            int
	SharedStateTouches      int
	CascadeImpactZones      int
	SubjectivityRating      int
	LOCAdded                int
	LOCModified             int
	TestCasesWritten        int
	EdgeCases               int
	MocksRequired           int
	CoordinationTouchpoints int
	ReviewRounds            int
	BlockersEncountered     int
	Score                   float64
}

// ComplexityInput is a partial complexity write. Nil fields keep the stored
// value on update and default to zero on create.
type ComplexityInput struct {
	FilesTouched            *int
	ModulesCrossed          *int
	StackLayersInvolved     *int
	Dependencies            *int
	SharedStateTouches      *int
	CascadeImpactZones      *int
	SubjectivityRating      *int
	LOCAdded                *int
	LOCModified             *int
	TestCasesWritten        *int
	EdgeCases               *int
	MocksRequired           *int
	CoordinationTouchpoints *int
	ReviewRounds            *int
	BlockersEncountered     *int
}

// Comment is an append-only note attached to a ticket.
type Comment struct {
	ID        string
	TicketID  string
	Content   string
	Author    Author
	Timestamp time.Time
}

// NewTicket carries the fields for Create. An empty ID is generated. A nil
// Position places the ticket below every sibling in its status column.
type NewTicket struct {
	ID           string
	Title        string
	Description  string
	Priority     Priority
	Status       Status
	AgentContext *string
	Position     *float64
	Complexity   *ComplexityInput
	Comments     []NewComment
}

// NewComment carries the fields for AddComment. An empty ID is generated and a
// zero Timestamp defaults to the store clock.
type NewComment struct {
	ID        string
	Content   string
	Author    Author
	Timestamp time.Time
}

// TicketUpdate fully replaces the editable ticket fields. AgentContext is only
// written when non-nil; Complexity is merged over the stored record.
type TicketUpdate struct {
	ID           string
	Title        string
	Description  string
	Priority     Priority
	Status       Status
	AgentContext *string
	Complexity   *ComplexityInput
}

// SortField names a column tickets can be listed by.
type SortField string

const (
	SortUpdated  SortField = "updated"
	SortCreated  SortField = "created"
	SortTitle    SortField = "title"
	SortPriority SortField = "priority"
	SortStatus   SortField = "status"
	SortPosition SortField = "position"
)

// Valid reports whether f is a sortable field.
func (f SortField) Valid() bool {
	switch f {
	case SortUpdated, SortCreated, SortTitle, SortPriority, SortStatus, SortPosition:
		return true
	}
	return false
}

// SortOrder is the listing direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TicketFilter narrows ticket listings. Zero-valued fields do not filter.
type TicketFilter struct {
	Status   Status
	Priority Priority
	Search   string
	Sort     SortField
	Order    SortOrder
	Limit    int
	Offset   int
}

// String renders the filter for logs.
func (f TicketFilter) String() string {
	return fmt.Sprintf("status=%q priority=%q search=%q sort=%s %s limit=%d offset=%d",
		f.Status, f.Priority, f.Search, f.Sort, f.Order, f.Limit, f.Offset)
}
