package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ownlytics/mcptix-sub000/internal/application"
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

var ticketCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Metric returns a pointer to v for building complexity inputs.
func Metric(v int) *int {
	return &v
}

// ---------------------------- Ticket fixtures ----------------------------

// TicketFixture represents a deterministic ticket that can be materialised for
// application or persistence tests.
type TicketFixture struct {
	ID           string
	Title        string
	Description  string
	Priority     persistence.Priority
	Status       persistence.Status
	AgentContext *string
	Position     *float64
	Complexity   *persistence.ComplexityInput
	Comments     []CommentFixture
}

// CommentFixture is a comment attached to a TicketFixture.
type CommentFixture struct {
	Content string
	Author  persistence.Author
}

// TicketOption configures the generated ticket fixture.
type TicketOption func(*TicketFixture)

// NewTicketFixture returns a deterministic ticket fixture with optional overrides.
func NewTicketFixture(opts ...TicketOption) TicketFixture {
	idx := atomic.AddUint64(&ticketCounter, 1)
	fixture := TicketFixture{
		ID:          fmt.Sprintf("ticket-%03d", idx),
		Title:       fmt.Sprintf("Ticket %03d", idx),
		Description: fmt.Sprintf("Description for ticket %03d", idx),
		Priority:    persistence.PriorityMedium,
		Status:      persistence.StatusBacklog,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTicketID overrides the generated ticket ID. An empty ID lets the store
// generate one.
func WithTicketID(id string) TicketOption {
	return func(f *TicketFixture) {
		f.ID = id
	}
}

// WithTitle overrides the generated title.
func WithTitle(title string) TicketOption {
	return func(f *TicketFixture) {
		f.Title = title
	}
}

// WithDescription overrides the generated description.
func WithDescription(description string) TicketOption {
	return func(f *TicketFixture) {
		f.Description = description
	}
}

// WithPriority sets the ticket priority.
func WithPriority(priority persistence.Priority) TicketOption {
	return func(f *TicketFixture) {
		f.Priority = priority
	}
}

// WithStatus sets the ticket status column.
func WithStatus(status persistence.Status) TicketOption {
	return func(f *TicketFixture) {
		f.Status = status
	}
}

// WithAgentContext sets the agent context markdown.
func WithAgentContext(markdown string) TicketOption {
	return func(f *TicketFixture) {
		f.AgentContext = &markdown
	}
}

// WithPosition sets an explicit column position.
func WithPosition(position float64) TicketOption {
	return func(f *TicketFixture) {
		f.Position = &position
	}
}

// WithComplexity sets the complexity input.
func WithComplexity(in persistence.ComplexityInput) TicketOption {
	return func(f *TicketFixture) {
		f.Complexity = &in
	}
}

// WithComment appends a comment.
func WithComment(content string, author persistence.Author) TicketOption {
	return func(f *TicketFixture) {
		f.Comments = append(f.Comments, CommentFixture{Content: content, Author: author})
	}
}

// Persistence returns the fixture as a persistence.NewTicket value.
func (f TicketFixture) Persistence() persistence.NewTicket {
	comments := make([]persistence.NewComment, 0, len(f.Comments))
	for _, c := range f.Comments {
		comments = append(comments, persistence.NewComment{Content: c.Content, Author: c.Author})
	}
	return persistence.NewTicket{
		ID:           f.ID,
		Title:        f.Title,
		Description:  f.Description,
		Priority:     f.Priority,
		Status:       f.Status,
		AgentContext: copyStringPtr(f.AgentContext),
		Position:     copyFloatPtr(f.Position),
		Complexity:   f.Complexity,
		Comments:     comments,
	}
}

// Input returns the fixture as an application.TicketInput value.
func (f TicketFixture) Input() application.TicketInput {
	comments := make([]application.CommentInput, 0, len(f.Comments))
	for _, c := range f.Comments {
		comments = append(comments, application.CommentInput{Content: c.Content, Author: c.Author})
	}
	return application.TicketInput{
		Title:        f.Title,
		Description:  f.Description,
		Priority:     f.Priority,
		Status:       f.Status,
		AgentContext: copyStringPtr(f.AgentContext),
		Position:     copyFloatPtr(f.Position),
		Complexity:   f.Complexity,
		Comments:     comments,
	}
}

// Insert creates the fixture in store and returns the stored id.
func (f TicketFixture) Insert(tb testing.TB, store persistence.TicketRepository) string {
	tb.Helper()

	id, err := store.CreateTicket(context.Background(), f.Persistence())
	if err != nil {
		tb.Fatalf("failed to insert ticket fixture %q: %v", f.Title, err)
	}
	return id
}

// SeedColumn inserts one ticket per title into status, each below the previous
// one, and returns their ids in column order.
func SeedColumn(tb testing.TB, store persistence.TicketRepository, status persistence.Status, titles ...string) []string {
	tb.Helper()

	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		ids = append(ids, NewTicketFixture(WithTitle(title), WithStatus(status)).Insert(tb, store))
	}
	return ids
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyFloatPtr(src *float64) *float64 {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
