package pickup

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/cache"
)

// listCacheTTL bounds how long an availability listing may be served without
// a write invalidating it.
const listCacheTTL = time.Hour

// CreateWindowRequest holds the input for creating a pickup window.
type CreateWindowRequest struct {
	PointID   string
	StartTime time.Time
	EndTime   time.Time
	Capacity  int
}

// WindowPatch holds the optional fields of an update. Nil fields keep the
// stored value.
type WindowPatch struct {
	StartTime *time.Time
	EndTime   *time.Time
	Capacity  *int
}

// Catalog manages pickup window definitions: creation with overlap
// validation, updates, deletion guarded by order references, and cache-first
// availability listings. It never mutates the reserved counter; that is the
// Ledger's job.
type Catalog struct {
	windows Repository
	points  PointRepository
	cache   cache.Cache
	lg      *zap.Logger
}

// NewCatalog creates a Catalog with the required dependencies.
func NewCatalog(windows Repository, points PointRepository, c cache.Cache, lg *zap.Logger) *Catalog {
	return &Catalog{
		windows: windows,
		points:  points,
		cache:   c,
		lg:      lg.Named("catalog"),
	}
}

// CreateWindow validates the time range and capacity, checks the owning
// point, and persists the window with reserved = 0. Overlap with a sibling
// window surfaces as an *OverlapError from the repository, which performs the
// check inside the insert statement.
func (c *Catalog) CreateWindow(ctx context.Context, req CreateWindowRequest) (*Window, error) {
	if !req.StartTime.Before(req.EndTime) {
		return nil, ErrInvalidTimeRange
	}
	if req.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	if _, err := c.points.GetByID(ctx, req.PointID); err != nil {
		return nil, errors.Wrap(err, "lookup point")
	}

	w := &Window{
		ID:        uuid.New().String(),
		PointID:   req.PointID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Capacity:  req.Capacity,
		Reserved:  0,
	}
	if err := c.windows.Create(ctx, w); err != nil {
		return nil, err
	}

	c.invalidatePoint(ctx, req.PointID)
	return w, nil
}

// UpdateWindow applies a patch to an existing window. Time-range ordering is
// re-validated when either bound changes, and a capacity below the current
// reserved count is rejected.
func (c *Catalog) UpdateWindow(ctx context.Context, id string, patch WindowPatch) (*Window, error) {
	w, err := c.windows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.StartTime != nil {
		w.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		w.EndTime = *patch.EndTime
	}
	if patch.Capacity != nil {
		w.Capacity = *patch.Capacity
	}

	if !w.StartTime.Before(w.EndTime) {
		return nil, ErrInvalidTimeRange
	}
	if w.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if w.Capacity < w.Reserved {
		return nil, ErrCapacityBelowReserved
	}

	// The repository re-checks the reserved guard inside the update statement;
	// the check above only produces a friendlier fast-path error.
	if err := c.windows.Update(ctx, w); err != nil {
		return nil, err
	}

	c.invalidateWindow(ctx, w)
	return w, nil
}

// DeleteWindow removes a window unless an order references it.
func (c *Catalog) DeleteWindow(ctx context.Context, id string) error {
	w, err := c.windows.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := c.windows.Delete(ctx, id); err != nil {
		return err
	}

	c.invalidateWindow(ctx, w)
	return nil
}

// GetWindow returns a single window by ID. Reads are cache-first under
// cache.WindowKey; every write to the window, including reservations, drops
// that entry.
func (c *Catalog) GetWindow(ctx context.Context, id string) (*Window, error) {
	key := cache.WindowKey(id)

	if data, err := c.cache.Get(ctx, key); err == nil {
		w, derr := decodeWindow(data)
		if derr == nil {
			return w, nil
		}
		c.lg.Warn("corrupt cached window", zap.String("key", key), zap.Error(derr))
	} else if !errors.Is(err, cache.ErrMiss) {
		c.lg.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	w, err := c.windows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, encodeWindow(*w), listCacheTTL); err != nil {
		c.lg.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return w, nil
}

// ListAvailable returns the availability rows for a point over a date range.
// Reads are cache-first with a one hour TTL; every window write invalidates
// the point's listings, so a hit is never staler than the last mutation.
func (c *Catalog) ListAvailable(ctx context.Context, pointID string, from, to time.Time) ([]Availability, error) {
	key := cache.WindowListKey(pointID, from, to)

	if data, err := c.cache.Get(ctx, key); err == nil {
		list, derr := decodeAvailabilityList(data)
		if derr == nil {
			return list, nil
		}
		c.lg.Warn("corrupt cached availability list", zap.String("key", key), zap.Error(derr))
	} else if !errors.Is(err, cache.ErrMiss) {
		c.lg.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	windows, err := c.windows.ListByPoint(ctx, pointID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "list windows")
	}

	list := make([]Availability, len(windows))
	for i, w := range windows {
		list[i] = AvailabilityOf(w)
	}

	if err := c.cache.Set(ctx, key, encodeAvailabilityList(list), listCacheTTL); err != nil {
		c.lg.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return list, nil
}

// ResolveWindow finds the window at pointID covering the given pickup time.
func (c *Catalog) ResolveWindow(ctx context.Context, pointID string, at time.Time) (*Window, error) {
	return c.windows.FindCovering(ctx, pointID, at)
}

// invalidateWindow drops the window's own entry and its point's listings.
// Cache failures are logged, never surfaced: stale entries expire by TTL.
func (c *Catalog) invalidateWindow(ctx context.Context, w *Window) {
	if err := c.cache.InvalidateByPattern(ctx, cache.WindowKey(w.ID)); err != nil {
		c.lg.Warn("window cache invalidation failed", zap.String("window_id", w.ID), zap.Error(err))
	}
	c.invalidatePoint(ctx, w.PointID)
}

func (c *Catalog) invalidatePoint(ctx context.Context, pointID string) {
	if err := c.cache.InvalidateByPattern(ctx, cache.PointWindowsPattern(pointID)); err != nil {
		c.lg.Warn("point cache invalidation failed", zap.String("point_id", pointID), zap.Error(err))
	}
}
