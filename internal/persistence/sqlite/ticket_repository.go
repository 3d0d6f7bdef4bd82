package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ownlytics/mcptix-sub000/internal/complexity"
	"github.com/ownlytics/mcptix-sub000/internal/ordering"
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

// RepositoryOption customizes a repository.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	now   func() time.Time
	newID func() string
}

// WithClock sets the time source used for created, updated and comment timestamps.
func WithClock(now func() time.Time) RepositoryOption {
	return func(o *repositoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator sets the generator used for ticket and comment ids.
func WithIDGenerator(newID func() string) RepositoryOption {
	return func(o *repositoryOptions) {
		if newID != nil {
			o.newID = newID
		}
	}
}

func buildRepositoryOptions(opts []RepositoryOption) repositoryOptions {
	o := repositoryOptions{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TicketRepository implements persistence.TicketRepository using SQLite
type TicketRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
	newID  func() string
}

// NewTicketRepository creates a new SQLite ticket repository
func NewTicketRepository(pool *ConnectionPool, opts ...RepositoryOption) *TicketRepository {
	o := buildRepositoryOptions(opts)
	return &TicketRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    o.now,
		newID:  o.newID,
	}
}

// CreateTicket inserts a ticket with its optional complexity record and
// comments in one transaction and returns the ticket id.
func (r *TicketRepository) CreateTicket(ctx context.Context, ticket persistence.NewTicket) (string, error) {
	if ticket.Priority == "" {
		ticket.Priority = persistence.PriorityMedium
	}
	if ticket.Status == "" {
		ticket.Status = persistence.StatusBacklog
	}
	if err := validateTicketFields(ticket.Title, ticket.Priority, ticket.Status); err != nil {
		return "", err
	}
	for _, comment := range ticket.Comments {
		if comment.Author != "" && !comment.Author.Valid() {
			return "", fmt.Errorf("%w: unknown author %q", persistence.ErrInvalidTicket, comment.Author)
		}
	}

	id := ticket.ID
	if id == "" {
		id = r.newID()
	}
	now := r.now()

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var position float64
		if ticket.Position != nil {
			position = *ticket.Position
		} else {
			lowest, ok, err := columnMin(ctx, tx, ticket.Status, id)
			if err != nil {
				return err
			}
			position = ordering.Bottom(lowest, ok)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (id, title, description, priority, status, created, updated, agent_context, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			ticket.Title,
			ticket.Description,
			string(ticket.Priority),
			string(ticket.Status),
			formatTime(now),
			formatTime(now),
			nullableString(ticket.AgentContext),
			position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ticket: %w", r.mapper.MapError(err))
		}

		if ticket.Complexity != nil {
			c := complexity.Merge(persistence.Complexity{}, *ticket.Complexity)
			if err := upsertComplexity(ctx, tx, id, c); err != nil {
				return fmt.Errorf("failed to insert complexity: %w", r.mapper.MapError(err))
			}
		}

		for _, comment := range ticket.Comments {
			if _, err := r.insertComment(ctx, tx, id, comment, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create ticket: %w", err)
	}

	return id, nil
}

// GetTicket retrieves a ticket with its complexity record and comments.
func (r *TicketRepository) GetTicket(ctx context.Context, id string) (persistence.Ticket, bool, error) {
	return loadTicket(ctx, r.pool.DB(), id)
}

// ListTickets returns the tickets matching filter, merged with their complexity
// records. Comments are not loaded.
func (r *TicketRepository) ListTickets(ctx context.Context, filter persistence.TicketFilter) ([]persistence.Ticket, error) {
	query, args := buildListQuery(filter)

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []persistence.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}

	return tickets, nil
}

// UpdateTicket replaces the editable fields of a ticket and merges the given
// complexity fields over the stored record. It reports false when the ticket
// does not exist.
func (r *TicketRepository) UpdateTicket(ctx context.Context, update persistence.TicketUpdate) (bool, error) {
	if err := validateTicketFields(update.Title, update.Priority, update.Status); err != nil {
		return false, err
	}

	var found bool
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE tickets
			SET title = ?, description = ?, priority = ?, status = ?, updated = ?,
				agent_context = COALESCE(?, agent_context)
			WHERE id = ?`,
			update.Title,
			update.Description,
			string(update.Priority),
			string(update.Status),
			formatTime(r.now()),
			nullableString(update.AgentContext),
			update.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil
		}
		found = true

		if update.Complexity == nil {
			return nil
		}
		existing, err := loadComplexity(ctx, tx, update.ID)
		if err != nil {
			return err
		}
		if err := upsertComplexity(ctx, tx, update.ID, complexity.Merge(existing, *update.Complexity)); err != nil {
			return fmt.Errorf("failed to write complexity: %w", r.mapper.MapError(err))
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update ticket: %w", err)
	}

	return found, nil
}

// DeleteTicket removes a ticket; its complexity record and comments go with it.
func (r *TicketRepository) DeleteTicket(ctx context.Context, id string) (bool, error) {
	result, err := r.helper.Exec(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete ticket: %w", r.mapper.MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// AddComment appends a comment and bumps the ticket's updated timestamp. An
// unknown ticket surfaces as a foreign key ConstraintError.
func (r *TicketRepository) AddComment(ctx context.Context, ticketID string, comment persistence.NewComment) (string, error) {
	if comment.Author != "" && !comment.Author.Valid() {
		return "", fmt.Errorf("%w: unknown author %q", persistence.ErrInvalidTicket, comment.Author)
	}

	var id string
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		now := r.now()
		var err error
		if id, err = r.insertComment(ctx, tx, ticketID, comment, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tickets SET updated = ? WHERE id = ?`, formatTime(now), ticketID); err != nil {
			return fmt.Errorf("failed to touch ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to add comment: %w", err)
	}

	return id, nil
}

func (r *TicketRepository) insertComment(ctx context.Context, tx *sql.Tx, ticketID string, comment persistence.NewComment, now time.Time) (string, error) {
	id := comment.ID
	if id == "" {
		id = r.newID()
	}
	author := comment.Author
	if author == "" {
		author = persistence.AuthorDeveloper
	}
	timestamp := comment.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, ticket_id, content, author, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		id, ticketID, comment.Content, string(author), formatTime(timestamp),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert comment: %w", r.mapper.MapError(err))
	}
	return id, nil
}

func validateTicketFields(title string, priority persistence.Priority, status persistence.Status) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", persistence.ErrInvalidTicket)
	}
	if !priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", persistence.ErrInvalidTicket, priority)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", persistence.ErrInvalidTicket, status)
	}
	return nil
}

var sortColumns = map[persistence.SortField]string{
	persistence.SortUpdated:  "t.updated",
	persistence.SortCreated:  "t.created",
	persistence.SortTitle:    "t.title",
	persistence.SortPriority: "CASE t.priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END",
	persistence.SortStatus: "CASE t.status WHEN 'backlog' THEN 1 WHEN 'up-next' THEN 2 WHEN 'in-progress' THEN 3 " +
		"WHEN 'in-review' THEN 4 ELSE 5 END",
	persistence.SortPosition: "t.position",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildListQuery constructs the listing query. Unknown sort fields fall back
// to updated and the default direction is descending.
func buildListQuery(filter persistence.TicketFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if filter.Status != "" {
		conditions = append(conditions, "t.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "t.priority = ?")
		args = append(args, string(filter.Priority))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		conditions = append(conditions, `(t.title LIKE ? ESCAPE '\' OR t.description LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	query := ticketSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	column, ok := sortColumns[filter.Sort]
	if !ok {
		column = sortColumns[persistence.SortUpdated]
	}
	direction := "DESC"
	if filter.Order == persistence.SortAsc {
		direction = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", column, direction)
	if filter.Sort == persistence.SortPosition {
		query += ", t.updated DESC"
	}
	query += ", t.id ASC"

	switch {
	case filter.Limit > 0:
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	case filter.Offset > 0:
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	return query, args
}
