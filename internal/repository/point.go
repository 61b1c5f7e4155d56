package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pickup"
)

const (
	getPointByIDSQL = `SELECT id, address, latitude, longitude, schedule, active
		FROM pickup_points WHERE id = $1`

	upsertPointSQL = `INSERT INTO pickup_points (id, address, latitude, longitude, schedule, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			address = EXCLUDED.address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			schedule = EXCLUDED.schedule,
			active = EXCLUDED.active,
			updated_at = now()`
)

var _ pickup.PointRepository = (*PointRepository)(nil)

// PointRepository implements pickup.PointRepository backed by PostgreSQL.
// The weekly schedule is stored in a JSONB column.
type PointRepository struct {
	pool *pgxpool.Pool
}

// NewPointRepository returns a PointRepository that uses the given pool.
func NewPointRepository(pool *pgxpool.Pool) *PointRepository {
	return &PointRepository{pool: pool}
}

// GetByID returns a single pickup point, or pickup.ErrPointNotFound.
func (r *PointRepository) GetByID(ctx context.Context, id string) (*pickup.Point, error) {
	rows, err := r.pool.Query(ctx, getPointByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting pickup point %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPoint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pickup.ErrPointNotFound
		}
		return nil, fmt.Errorf("getting pickup point %q: %w", id, err)
	}
	return &p, nil
}

// Upsert inserts or fully replaces a pickup point.
func (r *PointRepository) Upsert(ctx context.Context, p *pickup.Point) error {
	scheduleJSON, err := json.Marshal(p.Schedule)
	if err != nil {
		return fmt.Errorf("marshaling schedule for point %q: %w", p.ID, err)
	}

	_, err = r.pool.Exec(ctx, upsertPointSQL,
		p.ID, p.Address, p.Latitude, p.Longitude, scheduleJSON, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting pickup point %q: %w", p.ID, err)
	}
	return nil
}

func scanPoint(row pgx.CollectableRow) (pickup.Point, error) {
	var (
		p            pickup.Point
		scheduleJSON []byte
	)
	err := row.Scan(&p.ID, &p.Address, &p.Latitude, &p.Longitude, &scheduleJSON, &p.Active)
	if err != nil {
		return p, err
	}
	if len(scheduleJSON) > 0 {
		if err := json.Unmarshal(scheduleJSON, &p.Schedule); err != nil {
			return p, fmt.Errorf("unmarshaling schedule for point %q: %w", p.ID, err)
		}
	}
	return p, nil
}
