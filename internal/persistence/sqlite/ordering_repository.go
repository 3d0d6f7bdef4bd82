package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ownlytics/mcptix-sub000/internal/ordering"
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

// OrderingRepository implements persistence.OrderingRepository using SQLite.
// Columns are ranked by position descending, ties broken by updated descending.
type OrderingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewOrderingRepository creates a new SQLite ordering repository
func NewOrderingRepository(pool *ConnectionPool, opts ...RepositoryOption) *OrderingRepository {
	o := buildRepositoryOptions(opts)
	return &OrderingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    o.now,
	}
}

// GetNextTicket returns the top ticket of a status column.
func (r *OrderingRepository) GetNextTicket(ctx context.Context, status persistence.Status) (persistence.Ticket, bool, error) {
	if !status.Valid() {
		return persistence.Ticket{}, false, fmt.Errorf("%w: unknown status %q", persistence.ErrInvalidTicket, status)
	}

	var id string
	err := r.helper.QueryRow(ctx, `
		SELECT id FROM tickets
		WHERE status = ?
		ORDER BY position DESC, updated DESC, id ASC
		LIMIT 1`, string(status)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Ticket{}, false, nil
		}
		return persistence.Ticket{}, false, fmt.Errorf("failed to get next ticket: %w", err)
	}

	return loadTicket(ctx, r.pool.DB(), id)
}

// ReorderTicket sets the position of a ticket within its current column.
func (r *OrderingRepository) ReorderTicket(ctx context.Context, id string, position float64) (bool, error) {
	result, err := r.helper.Exec(ctx,
		`UPDATE tickets SET position = ?, updated = ? WHERE id = ?`,
		position, formatTime(r.now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reorder ticket: %w", r.mapper.MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// MoveTicket changes the status column of a ticket. Without an explicit
// position the ticket lands below every other ticket of the destination.
func (r *OrderingRepository) MoveTicket(ctx context.Context, id string, status persistence.Status, position *float64) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", persistence.ErrInvalidTicket, status)
	}

	var found bool
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tickets WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to check ticket: %w", err)
		}
		found = true

		var target float64
		if position != nil {
			target = *position
		} else {
			lowest, ok, err := columnMin(ctx, tx, status, id)
			if err != nil {
				return err
			}
			target = ordering.Bottom(lowest, ok)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE tickets SET status = ?, position = ?, updated = ? WHERE id = ?`,
			string(status), target, formatTime(r.now()), id,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to move ticket: %w", err)
	}

	return found, nil
}

// RenormalizeColumn rewrites the positions of a column to evenly spaced
// values, keeping the current order. Updated timestamps are left untouched.
// It returns the number of tickets rewritten.
func (r *OrderingRepository) RenormalizeColumn(ctx context.Context, status persistence.Status) (int, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", persistence.ErrInvalidTicket, status)
	}

	var count int
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		ids, err := columnIDs(ctx, tx, status)
		if err != nil {
			return err
		}

		positions := ordering.Respace(len(ids))
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE tickets SET position = ? WHERE id = ?`, positions[i], id); err != nil {
				return fmt.Errorf("failed to rewrite position: %w", err)
			}
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to renormalize column %s: %w", status, err)
	}

	return count, nil
}

// NeedsRenormalize reports whether two neighbours of a column sit too close
// for a midpoint to be inserted between them.
func (r *OrderingRepository) NeedsRenormalize(ctx context.Context, status persistence.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", persistence.ErrInvalidTicket, status)
	}

	rows, err := r.helper.Query(ctx,
		`SELECT position FROM tickets WHERE status = ? ORDER BY position DESC`, string(status))
	if err != nil {
		return false, fmt.Errorf("failed to read positions: %w", err)
	}
	defer rows.Close()

	var (
		previous float64
		first    = true
	)
	for rows.Next() {
		var position float64
		if err := rows.Scan(&position); err != nil {
			return false, fmt.Errorf("failed to scan position: %w", err)
		}
		if !first && ordering.NeedsRespacing(previous, position) {
			return true, nil
		}
		previous, first = position, false
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return false, nil
}

func columnIDs(ctx context.Context, q queryer, status persistence.Status) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM tickets
		WHERE status = ?
		ORDER BY position DESC, updated DESC, id ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list column: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
