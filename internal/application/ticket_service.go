package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"

	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

const maxTitleLength = 200

// TicketService validates requests, translates store results into application
// errors and logs every operation.
type TicketService struct {
	store  persistence.TicketStore
	logger *slog.Logger
}

// NewTicketService constructs a ticket service over store.
func NewTicketService(store persistence.TicketStore) *TicketService {
	return NewTicketServiceWithLogger(store, nil)
}

// NewTicketServiceWithLogger constructs a ticket service with a specified logger.
func NewTicketServiceWithLogger(store persistence.TicketStore, logger *slog.Logger) *TicketService {
	return &TicketService{store: store, logger: defaultLogger(logger)}
}

func (s *TicketService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TicketService", operation, attrs...)
}

func (s *TicketService) finish(ctx context.Context, logger *slog.Logger, message string, err error, attrs ...any) {
	if err != nil {
		logger.ErrorContext(ctx, "failed: "+message, "error", err, "error_kind", ErrorKind(err))
		return
	}
	logger.With(attrs...).DebugContext(ctx, message)
}

// CreateTicket validates input, persists a new ticket and returns it as stored.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketInput) (ticket persistence.Ticket, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("TicketService is not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateTicket")
	defer func() {
		s.finish(ctx, logger, "ticket created", err, "ticket_id", ticket.ID)
	}()

	input = normalizeTicketInput(input)
	if vErr := validateTicketInput(input, true); vErr.HasErrors() {
		err = vErr
		return
	}

	comments := make([]persistence.NewComment, 0, len(input.Comments))
	for _, c := range input.Comments {
		comments = append(comments, persistence.NewComment{Content: c.Content, Author: c.Author})
	}

	var id string
	id, err = s.store.CreateTicket(ctx, persistence.NewTicket{
		Title:        input.Title,
		Description:  input.Description,
		Priority:     input.Priority,
		Status:       input.Status,
		AgentContext: input.AgentContext,
		Position:     input.Position,
		Complexity:   input.Complexity,
		Comments:     comments,
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}

	ticket, err = s.getTicket(ctx, id)
	return
}

// GetTicket returns a ticket with its complexity and comments.
func (s *TicketService) GetTicket(ctx context.Context, id string) (ticket persistence.Ticket, err error) {
	logger := s.loggerWith(ctx, "GetTicket", "ticket_id", id)
	defer func() {
		s.finish(ctx, logger, "ticket read", err)
	}()

	ticket, err = s.getTicket(ctx, id)
	return
}

func (s *TicketService) getTicket(ctx context.Context, id string) (persistence.Ticket, error) {
	ticket, found, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return persistence.Ticket{}, mapStoreError(err)
	}
	if !found {
		return persistence.Ticket{}, ErrNotFound
	}
	return ticket, nil
}

// ListTickets returns the tickets matching params.
func (s *TicketService) ListTickets(ctx context.Context, params ListParams) (tickets []persistence.Ticket, err error) {
	logger := s.loggerWith(ctx, "ListTickets", "filter", params.filter().String())
	defer func() {
		s.finish(ctx, logger, "tickets listed", err, "result_count", len(tickets))
	}()

	if vErr := validateListParams(params); vErr.HasErrors() {
		err = vErr
		return
	}

	tickets, err = s.store.ListTickets(ctx, params.filter())
	if err != nil {
		err = mapStoreError(err)
	}
	return
}

// UpdateTicket replaces the editable fields of a ticket. Nil complexity fields
// keep their stored values.
func (s *TicketService) UpdateTicket(ctx context.Context, id string, input TicketInput) (ticket persistence.Ticket, err error) {
	logger := s.loggerWith(ctx, "UpdateTicket", "ticket_id", id)
	defer func() {
		s.finish(ctx, logger, "ticket updated", err)
	}()

	input = normalizeTicketInput(input)
	if vErr := validateTicketInput(input, false); vErr.HasErrors() {
		err = vErr
		return
	}

	var found bool
	found, err = s.store.UpdateTicket(ctx, persistence.TicketUpdate{
		ID:           id,
		Title:        input.Title,
		Description:  input.Description,
		Priority:     input.Priority,
		Status:       input.Status,
		AgentContext: input.AgentContext,
		Complexity:   input.Complexity,
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if !found {
		err = ErrNotFound
		return
	}

	ticket, err = s.getTicket(ctx, id)
	return
}

// DeleteTicket removes a ticket together with its complexity and comments.
func (s *TicketService) DeleteTicket(ctx context.Context, id string) (err error) {
	logger := s.loggerWith(ctx, "DeleteTicket", "ticket_id", id)
	defer func() {
		s.finish(ctx, logger, "ticket deleted", err)
	}()

	var deleted bool
	deleted, err = s.store.DeleteTicket(ctx, id)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if !deleted {
		err = ErrNotFound
	}
	return
}

// AddComment appends a comment to a ticket and returns the stored comment.
func (s *TicketService) AddComment(ctx context.Context, ticketID string, input CommentInput) (comment persistence.Comment, err error) {
	logger := s.loggerWith(ctx, "AddComment", "ticket_id", ticketID)
	defer func() {
		s.finish(ctx, logger, "comment added", err, "comment_id", comment.ID)
	}()

	input = normalizeCommentInput(input)
	vErr := &ValidationError{}
	validateComment(vErr, "", input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var id string
	id, err = s.store.AddComment(ctx, ticketID, persistence.NewComment{Content: input.Content, Author: input.Author})
	if err != nil {
		if errors.Is(err, persistence.ErrConstraint) {
			if _, found, getErr := s.store.GetTicket(ctx, ticketID); getErr == nil && !found {
				err = ErrNotFound
				return
			}
		}
		err = mapStoreError(err)
		return
	}

	var ticket persistence.Ticket
	ticket, err = s.getTicket(ctx, ticketID)
	if err != nil {
		return
	}
	for _, c := range ticket.Comments {
		if c.ID == id {
			comment = c
			return
		}
	}
	err = fmt.Errorf("comment %s missing after insert", id)
	return
}

// GetNextTicket returns the top ticket of a status column.
func (s *TicketService) GetNextTicket(ctx context.Context, status persistence.Status) (ticket persistence.Ticket, err error) {
	logger := s.loggerWith(ctx, "GetNextTicket", "status", string(status))
	defer func() {
		s.finish(ctx, logger, "next ticket selected", err, "ticket_id", ticket.ID)
	}()

	if !status.Valid() {
		err = statusError("status", status)
		return
	}

	var found bool
	ticket, found, err = s.store.GetNextTicket(ctx, status)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if !found {
		err = ErrNotFound
	}
	return
}

// ReorderTicket sets the position of a ticket inside its column.
func (s *TicketService) ReorderTicket(ctx context.Context, id string, position float64) (ticket persistence.Ticket, err error) {
	logger := s.loggerWith(ctx, "ReorderTicket", "ticket_id", id, "position", position)
	defer func() {
		s.finish(ctx, logger, "ticket reordered", err)
	}()

	if !finite(position) {
		vErr := &ValidationError{}
		vErr.add("position", "position must be a finite number")
		err = vErr
		return
	}

	var found bool
	found, err = s.store.ReorderTicket(ctx, id, position)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if !found {
		err = ErrNotFound
		return
	}
	ticket, err = s.getTicket(ctx, id)
	return
}

// MoveTicket moves a ticket to another column. A nil position places it at the
// bottom of the destination.
func (s *TicketService) MoveTicket(ctx context.Context, id string, status persistence.Status, position *float64) (ticket persistence.Ticket, err error) {
	logger := s.loggerWith(ctx, "MoveTicket", "ticket_id", id, "status", string(status))
	defer func() {
		s.finish(ctx, logger, "ticket moved", err)
	}()

	vErr := &ValidationError{}
	if !status.Valid() {
		vErr.merge(statusError("status", status))
	}
	if position != nil && !finite(*position) {
		vErr.add("position", "position must be a finite number")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var found bool
	found, err = s.store.MoveTicket(ctx, id, status, position)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if !found {
		err = ErrNotFound
		return
	}
	ticket, err = s.getTicket(ctx, id)
	return
}

// RenormalizeColumn evenly respaces the positions of a column and returns the
// number of tickets rewritten.
func (s *TicketService) RenormalizeColumn(ctx context.Context, status persistence.Status) (count int, err error) {
	logger := s.loggerWith(ctx, "RenormalizeColumn", "status", string(status))
	defer func() {
		if err == nil {
			logger.InfoContext(ctx, "column renormalized", "tickets", count)
			return
		}
		s.finish(ctx, logger, "column renormalized", err)
	}()

	if !status.Valid() {
		err = statusError("status", status)
		return
	}

	count, err = s.store.RenormalizeColumn(ctx, status)
	if err != nil {
		err = mapStoreError(err)
	}
	return
}

func normalizeTicketInput(input TicketInput) TicketInput {
	input.Title = strings.TrimSpace(input.Title)
	if input.Priority == "" {
		input.Priority = persistence.PriorityMedium
	}
	if input.Status == "" {
		input.Status = persistence.StatusBacklog
	}
	for i := range input.Comments {
		input.Comments[i] = normalizeCommentInput(input.Comments[i])
	}
	return input
}

func normalizeCommentInput(input CommentInput) CommentInput {
	input.Content = strings.TrimSpace(input.Content)
	if input.Author == "" {
		input.Author = persistence.AuthorDeveloper
	}
	return input
}

func validateTicketInput(input TicketInput, creating bool) *ValidationError {
	vErr := &ValidationError{}

	switch {
	case input.Title == "":
		vErr.add("title", "title is required")
	case len([]rune(input.Title)) > maxTitleLength:
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if !input.Priority.Valid() {
		vErr.add("priority", fmt.Sprintf("unknown priority %q", input.Priority))
	}
	if !input.Status.Valid() {
		vErr.merge(statusError("status", input.Status))
	}
	if input.Position != nil {
		if !creating {
			vErr.add("position", "position is changed through reorder or move")
		} else if !finite(*input.Position) {
			vErr.add("position", "position must be a finite number")
		}
	}
	if input.Complexity != nil {
		validateComplexity(vErr, *input.Complexity)
	}
	if !creating && len(input.Comments) > 0 {
		vErr.add("comments", "comments are added one at a time")
	}
	for i, c := range input.Comments {
		validateComment(vErr, fmt.Sprintf("comments[%d].", i), c)
	}

	return vErr
}

func validateComment(vErr *ValidationError, prefix string, input CommentInput) {
	if input.Content == "" {
		vErr.add(prefix+"content", "content is required")
	}
	if !input.Author.Valid() {
		vErr.add(prefix+"author", fmt.Sprintf("unknown author %q", input.Author))
	}
}

// validateComplexity rejects negative metrics.
func validateComplexity(vErr *ValidationError, in persistence.ComplexityInput) {
	value := reflect.ValueOf(in)
	for i := 0; i < value.NumField(); i++ {
		field := value.Field(i)
		if field.IsNil() {
			continue
		}
		if field.Elem().Int() < 0 {
			vErr.add("complexity."+value.Type().Field(i).Name, "metric must not be negative")
		}
	}
}

func validateListParams(params ListParams) *ValidationError {
	vErr := &ValidationError{}

	if params.Status != "" && !params.Status.Valid() {
		vErr.merge(statusError("status", params.Status))
	}
	if params.Priority != "" && !params.Priority.Valid() {
		vErr.add("priority", fmt.Sprintf("unknown priority %q", params.Priority))
	}
	if params.Sort != "" && !params.Sort.Valid() {
		vErr.add("sort", fmt.Sprintf("unknown sort field %q", params.Sort))
	}
	if params.Order != "" && params.Order != persistence.SortAsc && params.Order != persistence.SortDesc {
		vErr.add("order", "order must be asc or desc")
	}
	if params.Limit < 0 {
		vErr.add("limit", "limit must not be negative")
	}
	if params.Offset < 0 {
		vErr.add("offset", "offset must not be negative")
	}

	return vErr
}

func statusError(field string, status persistence.Status) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, fmt.Sprintf("unknown status %q", status))
	return vErr
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrInvalidTicket) {
		vErr := &ValidationError{}
		vErr.add("ticket", err.Error())
		return vErr
	}
	return err
}
