package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ownlytics/mcptix-sub000/internal/complexity"
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

// timeLayout is fixed width so that text comparison in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

var (
	complexityColumns = strings.Join(complexity.Metrics(), ", ")

	ticketSelect = func() string {
		var b strings.Builder
		b.WriteString("SELECT t.id, t.title, t.description, t.priority, t.status, t.created, t.updated, t.agent_context, t.position")
		for _, name := range complexity.Metrics() {
			fmt.Fprintf(&b, ", COALESCE(c.%s, 0)", name)
		}
		b.WriteString(", COALESCE(c.cie_score, 0)")
		b.WriteString(" FROM tickets t LEFT JOIN complexity c ON c.ticket_id = t.id")
		return b.String()
	}()
)

// scanTicket reads one row produced by ticketSelect.
func scanTicket(scanner rowScanner) (persistence.Ticket, error) {
	var (
		ticket       persistence.Ticket
		description  sql.NullString
		agentContext sql.NullString
		priority     string
		status       string
		created      string
		updated      string
	)
	dest := []any{
		&ticket.ID, &ticket.Title, &description, &priority, &status,
		&created, &updated, &agentContext, &ticket.Position,
	}
	dest = append(dest, complexity.Pointers(&ticket.Complexity)...)
	dest = append(dest, &ticket.Complexity.Score)

	if err := scanner.Scan(dest...); err != nil {
		return persistence.Ticket{}, err
	}

	ticket.Description = description.String
	ticket.Priority = persistence.Priority(priority)
	ticket.Status = persistence.Status(status)
	if agentContext.Valid {
		value := agentContext.String
		ticket.AgentContext = &value
	}

	var err error
	if ticket.Created, err = parseTime(created); err != nil {
		return persistence.Ticket{}, fmt.Errorf("failed to parse created: %w", err)
	}
	if ticket.Updated, err = parseTime(updated); err != nil {
		return persistence.Ticket{}, fmt.Errorf("failed to parse updated: %w", err)
	}
	return ticket, nil
}

// loadTicket reads a ticket with its complexity and comments.
func loadTicket(ctx context.Context, q queryer, id string) (persistence.Ticket, bool, error) {
	ticket, err := scanTicket(q.QueryRowContext(ctx, ticketSelect+" WHERE t.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Ticket{}, false, nil
		}
		return persistence.Ticket{}, false, fmt.Errorf("failed to get ticket: %w", err)
	}

	comments, err := listComments(ctx, q, id)
	if err != nil {
		return persistence.Ticket{}, false, err
	}
	ticket.Comments = comments
	return ticket, true, nil
}

func listComments(ctx context.Context, q queryer, ticketID string) ([]persistence.Comment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, ticket_id, content, author, timestamp
		FROM comments
		WHERE ticket_id = ?
		ORDER BY timestamp ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []persistence.Comment{}
	for rows.Next() {
		var (
			comment   persistence.Comment
			author    string
			timestamp string
		)
		if err := rows.Scan(&comment.ID, &comment.TicketID, &comment.Content, &author, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comment.Author = persistence.Author(author)
		if comment.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, fmt.Errorf("failed to parse comment timestamp: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// loadComplexity returns the stored complexity, or a zero record when none exists.
func loadComplexity(ctx context.Context, q queryer, ticketID string) (persistence.Complexity, error) {
	var c persistence.Complexity
	dest := append(complexity.Pointers(&c), &c.Score)
	err := q.QueryRowContext(ctx,
		"SELECT "+complexityColumns+", cie_score FROM complexity WHERE ticket_id = ?", ticketID,
	).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Complexity{}, nil
		}
		return persistence.Complexity{}, fmt.Errorf("failed to load complexity: %w", err)
	}
	return c, nil
}

// upsertComplexity writes the whole complexity row for ticketID.
func upsertComplexity(ctx context.Context, q queryer, ticketID string, c persistence.Complexity) error {
	metrics := complexity.Metrics()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(metrics)+2), ", ")

	assignments := make([]string, 0, len(metrics)+1)
	for _, name := range metrics {
		assignments = append(assignments, fmt.Sprintf("%s = excluded.%s", name, name))
	}
	assignments = append(assignments, "cie_score = excluded.cie_score")

	query := fmt.Sprintf(
		"INSERT INTO complexity (ticket_id, %s, cie_score) VALUES (%s) ON CONFLICT (ticket_id) DO UPDATE SET %s",
		complexityColumns, placeholders, strings.Join(assignments, ", "),
	)

	args := make([]any, 0, len(metrics)+2)
	args = append(args, ticketID)
	for _, v := range complexity.Values(c) {
		args = append(args, v)
	}
	args = append(args, c.Score)

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

// columnMin returns the lowest position in a status column, ignoring excludeID.
func columnMin(ctx context.Context, q queryer, status persistence.Status, excludeID string) (float64, bool, error) {
	var lowest sql.NullFloat64
	err := q.QueryRowContext(ctx,
		`SELECT MIN(position) FROM tickets WHERE status = ? AND id <> ?`, string(status), excludeID,
	).Scan(&lowest)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read column minimum: %w", err)
	}
	return lowest.Float64, lowest.Valid, nil
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
