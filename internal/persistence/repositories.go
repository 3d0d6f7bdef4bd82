package persistence

import "context"

// TicketRepository exposes CRUD operations over tickets and the complexity and
// comment records they own. Lookups of unknown ids report false rather than an
// error.
type TicketRepository interface {
	CreateTicket(ctx context.Context, ticket NewTicket) (string, error)
	GetTicket(ctx context.Context, id string) (Ticket, bool, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error)
	UpdateTicket(ctx context.Context, update TicketUpdate) (bool, error)
	DeleteTicket(ctx context.Context, id string) (bool, error)
	AddComment(ctx context.Context, ticketID string, comment NewComment) (string, error)
}

// OrderingRepository positions tickets inside their status columns.
type OrderingRepository interface {
	GetNextTicket(ctx context.Context, status Status) (Ticket, bool, error)
	ReorderTicket(ctx context.Context, id string, position float64) (bool, error)
	MoveTicket(ctx context.Context, id string, status Status, position *float64) (bool, error)
	RenormalizeColumn(ctx context.Context, status Status) (int, error)
	NeedsRenormalize(ctx context.Context, status Status) (bool, error)
}

// TicketStore is the full contract consumed by the REST and agent adapters.
type TicketStore interface {
	TicketRepository
	OrderingRepository
}
