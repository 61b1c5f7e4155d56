package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pickup"
)

const (
	windowColumns = `id, point_id, start_time, end_time, capacity, reserved`

	// The insert and the overlap check run in one statement so that two
	// concurrent creates cannot both pass a separate pre-check.
	createWindowSQL = `INSERT INTO pickup_windows (id, point_id, start_time, end_time, capacity, reserved)
		SELECT $1, $2, $3, $4, $5, 0
		WHERE NOT EXISTS (
			SELECT 1 FROM pickup_windows w
			WHERE w.point_id = $2 AND w.start_time < $4 AND $3 < w.end_time
		)`

	updateWindowSQL = `UPDATE pickup_windows
		SET start_time = $2, end_time = $3, capacity = $4, updated_at = now()
		WHERE id = $1 AND reserved <= $4
		AND NOT EXISTS (
			SELECT 1 FROM pickup_windows w
			WHERE w.point_id = pickup_windows.point_id AND w.id <> $1
			AND w.start_time < $3 AND $2 < w.end_time
		)`

	// Any referencing order blocks deletion regardless of status: cancelled
	// orders keep their window_id for history, and dropping the window would
	// break that foreign key anyway.
	deleteWindowSQL = `DELETE FROM pickup_windows
		WHERE id = $1
		AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.window_id = $1)
		AND NOT EXISTS (SELECT 1 FROM window_holds h WHERE h.window_id = $1)`

	getWindowByIDSQL = `SELECT ` + windowColumns + ` FROM pickup_windows WHERE id = $1`

	listWindowsByPointSQL = `SELECT ` + windowColumns + ` FROM pickup_windows
		WHERE point_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time`

	findCoveringWindowSQL = `SELECT ` + windowColumns + ` FROM pickup_windows
		WHERE point_id = $1 AND start_time <= $2 AND $2 < end_time`

	reserveWindowSQL = `UPDATE pickup_windows
		SET reserved = reserved + 1, updated_at = now()
		WHERE id = $1 AND reserved < capacity
		RETURNING ` + windowColumns

	releaseWindowSQL = `UPDATE pickup_windows
		SET reserved = reserved - 1, updated_at = now()
		WHERE id = $1 AND reserved > 0
		RETURNING ` + windowColumns

	// The hold row and the counter increment commit together, so an external
	// reservation is either fully recorded or not taken at all.
	holdWindowSQL = `WITH bumped AS (
			UPDATE pickup_windows
			SET reserved = reserved + 1, updated_at = now()
			WHERE id = $2 AND reserved < capacity
			RETURNING ` + windowColumns + `
		), hold AS (
			INSERT INTO window_holds (id, window_id)
			SELECT $1, id FROM bumped
		)
		SELECT ` + windowColumns + ` FROM bumped`

	releaseHoldSQL = `WITH removed AS (
			DELETE FROM window_holds
			WHERE id = (
				SELECT id FROM window_holds
				WHERE window_id = $1
				ORDER BY created_at
				LIMIT 1
			)
			RETURNING window_id
		)
		UPDATE pickup_windows AS w
		SET reserved = reserved - 1, updated_at = now()
		FROM removed
		WHERE w.id = removed.window_id AND w.reserved > 0
		RETURNING w.id, w.point_id, w.start_time, w.end_time, w.capacity, w.reserved`

	// Reserved realigns to committed orders plus live external holds, so the
	// reaper reclaims only counts held by checkout runs that died between
	// reserve and commit.
	reconcileReservedSQL = `UPDATE pickup_windows AS w
		SET reserved = LEAST(c.cnt, w.capacity), updated_at = now()
		FROM (
			SELECT w2.id,
				(SELECT COUNT(*) FROM orders o
					WHERE o.window_id = w2.id AND o.status <> 'CANCELLED')::int
				+ (SELECT COUNT(*) FROM window_holds h
					WHERE h.window_id = w2.id)::int AS cnt
			FROM pickup_windows w2
			WHERE w2.end_time > now() AND w2.updated_at < now() - make_interval(secs => $1)
		) AS c
		WHERE w.id = c.id AND w.reserved <> LEAST(c.cnt, w.capacity)`
)

const foreignKeyViolationCode = "23503"

var _ pickup.Repository = (*WindowRepository)(nil)

// WindowRepository implements pickup.Repository backed by PostgreSQL. All
// counter changes are single conditional updates; the guards live in the SQL,
// not in application code.
type WindowRepository struct {
	pool *pgxpool.Pool
}

// NewWindowRepository returns a WindowRepository that uses the given pool.
func NewWindowRepository(pool *pgxpool.Pool) *WindowRepository {
	return &WindowRepository{pool: pool}
}

// Create inserts a new window with zero reservations. The overlap check runs
// inside the insert statement; a colliding sibling yields *pickup.OverlapError.
func (r *WindowRepository) Create(ctx context.Context, w *pickup.Window) error {
	tag, err := r.pool.Exec(ctx, createWindowSQL,
		w.ID, w.PointID, w.StartTime, w.EndTime, w.Capacity,
	)
	if err != nil {
		return fmt.Errorf("creating window %q: %w", w.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &pickup.OverlapError{PointID: w.PointID, Start: w.StartTime, End: w.EndTime}
	}
	return nil
}

// Update rewrites the window's time range and capacity. The statement refuses
// to shrink capacity below the reserved count and to move the range onto a
// sibling window; on zero rows affected the current row state decides which
// error to surface.
func (r *WindowRepository) Update(ctx context.Context, w *pickup.Window) error {
	tag, err := r.pool.Exec(ctx, updateWindowSQL,
		w.ID, w.StartTime, w.EndTime, w.Capacity,
	)
	if err != nil {
		return fmt.Errorf("updating window %q: %w", w.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, w.ID)
	if err != nil {
		return err
	}
	if current.Reserved > w.Capacity {
		return pickup.ErrCapacityBelowReserved
	}
	return &pickup.OverlapError{PointID: current.PointID, Start: w.StartTime, End: w.EndTime}
}

// Delete removes the window unless an order or an external hold references
// it. A reference committed between the guard and the delete trips the
// foreign key instead; both paths surface as ErrWindowReferenced.
func (r *WindowRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteWindowSQL, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return pickup.ErrWindowReferenced
		}
		return fmt.Errorf("deleting window %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return pickup.ErrWindowReferenced
}

// GetByID returns a single window, or pickup.ErrWindowNotFound.
func (r *WindowRepository) GetByID(ctx context.Context, id string) (*pickup.Window, error) {
	rows, err := r.pool.Query(ctx, getWindowByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting window %q: %w", id, err)
	}

	w, err := pgx.CollectExactlyOneRow(rows, scanWindow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pickup.ErrWindowNotFound
		}
		return nil, fmt.Errorf("getting window %q: %w", id, err)
	}
	return &w, nil
}

// ListByPoint returns all windows of a point intersecting [from, to),
// ordered by start time.
func (r *WindowRepository) ListByPoint(ctx context.Context, pointID string, from, to time.Time) ([]pickup.Window, error) {
	rows, err := r.pool.Query(ctx, listWindowsByPointSQL, pointID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing windows for point %q: %w", pointID, err)
	}

	windows, err := pgx.CollectRows(rows, scanWindow)
	if err != nil {
		return nil, fmt.Errorf("listing windows for point %q: %w", pointID, err)
	}
	return windows, nil
}

// FindCovering returns the window of a point whose range contains the given
// time. The exclusion constraint guarantees at most one such window.
func (r *WindowRepository) FindCovering(ctx context.Context, pointID string, at time.Time) (*pickup.Window, error) {
	rows, err := r.pool.Query(ctx, findCoveringWindowSQL, pointID, at)
	if err != nil {
		return nil, fmt.Errorf("finding window covering %s at point %q: %w", at, pointID, err)
	}

	w, err := pgx.CollectExactlyOneRow(rows, scanWindow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pickup.ErrWindowNotFound
		}
		return nil, fmt.Errorf("finding window covering %s at point %q: %w", at, pointID, err)
	}
	return &w, nil
}

// Reserve increments the reserved counter while it is below capacity. The
// guard and the increment are one statement, so concurrent reservations can
// never oversell a window.
func (r *WindowRepository) Reserve(ctx context.Context, id string) (*pickup.Window, error) {
	rows, err := r.pool.Query(ctx, reserveWindowSQL, id)
	if err != nil {
		return nil, fmt.Errorf("reserving window %q: %w", id, err)
	}

	w, err := pgx.CollectExactlyOneRow(rows, scanWindow)
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reserving window %q: %w", id, err)
	}

	// The guard failed: either the window is full or it does not exist.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, pickup.ErrWindowFull
}

// Release decrements the reserved counter while it is above zero.
func (r *WindowRepository) Release(ctx context.Context, id string) (*pickup.Window, error) {
	rows, err := r.pool.Query(ctx, releaseWindowSQL, id)
	if err != nil {
		return nil, fmt.Errorf("releasing window %q: %w", id, err)
	}

	w, err := pgx.CollectExactlyOneRow(rows, scanWindow)
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("releasing window %q: %w", id, err)
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, pickup.ErrNoReservations
}

// Hold reserves one unit on behalf of an external collaborator, recording a
// hold row in the same statement as the counter increment.
func (r *WindowRepository) Hold(ctx context.Context, holdID, windowID string) (*pickup.Window, error) {
	rows, err := r.pool.Query(ctx, holdWindowSQL, holdID, windowID)
	if err != nil {
		return nil, fmt.Errorf("holding window %q: %w", windowID, err)
	}

	w, err := pgx.CollectExactlyOneRow(rows, scanWindow)
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("holding window %q: %w", windowID, err)
	}

	if _, err := r.GetByID(ctx, windowID); err != nil {
		return nil, err
	}
	return nil, pickup.ErrWindowFull
}

// ReleaseHold removes the oldest hold on the window and gives its unit back.
// Without a live hold there is nothing an external caller may release, so the
// order-held remainder of the counter stays untouched.
func (r *WindowRepository) ReleaseHold(ctx context.Context, windowID string) (*pickup.Window, error) {
	rows, err := r.pool.Query(ctx, releaseHoldSQL, windowID)
	if err != nil {
		return nil, fmt.Errorf("releasing hold on window %q: %w", windowID, err)
	}

	w, err := pgx.CollectExactlyOneRow(rows, scanWindow)
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("releasing hold on window %q: %w", windowID, err)
	}

	if _, err := r.GetByID(ctx, windowID); err != nil {
		return nil, err
	}
	return nil, pickup.ErrNoReservations
}

// ReconcileReserved realigns reserved counters of future windows with the
// count of non-cancelled orders plus external holds referencing them,
// skipping rows updated within the grace period.
func (r *WindowRepository) ReconcileReserved(ctx context.Context, grace time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, reconcileReservedSQL, grace.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reconciling reserved counters: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanWindow(row pgx.CollectableRow) (pickup.Window, error) {
	var (
		w        pickup.Window
		capacity int32
		reserved int32
	)
	err := row.Scan(&w.ID, &w.PointID, &w.StartTime, &w.EndTime, &capacity, &reserved)
	w.Capacity = int(capacity)
	w.Reserved = int(reserved)
	return w, err
}
