package application

import (
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

// TicketInput captures caller provided ticket fields. Empty priority and
// status default to medium and backlog. Position is only honoured on create.
type TicketInput struct {
	Title        string
	Description  string
	Priority     persistence.Priority
	Status       persistence.Status
	AgentContext *string
	Position     *float64
	Complexity   *persistence.ComplexityInput
	Comments     []CommentInput
}

// CommentInput captures caller provided comment fields. An empty author
// defaults to developer.
type CommentInput struct {
	Content string
	Author  persistence.Author
}

// ListParams narrows a ticket listing. Sort fields the store does not know are
// rejected rather than silently replaced.
type ListParams struct {
	Status   persistence.Status
	Priority persistence.Priority
	Search   string
	Sort     persistence.SortField
	Order    persistence.SortOrder
	Limit    int
	Offset   int
}

func (p ListParams) filter() persistence.TicketFilter {
	return persistence.TicketFilter{
		Status:   p.Status,
		Priority: p.Priority,
		Search:   p.Search,
		Sort:     p.Sort,
		Order:    p.Order,
		Limit:    p.Limit,
		Offset:   p.Offset,
	}
}
