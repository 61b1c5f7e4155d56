package pickup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/cache"
)

// Ledger owns the reserved counters. It is the only component permitted to
// mutate them, and every mutation delegates to one of the repository's
// conditional updates so that capacity can never be exceeded under
// concurrent checkouts. TryReserve/Release back the checkout flow;
// Hold/ReleaseHold back the reserve endpoints external collaborators call.
type Ledger struct {
	windows Repository
	cache   cache.Cache
	lg      *zap.Logger
}

// NewLedger creates a Ledger over the given window repository.
func NewLedger(windows Repository, c cache.Cache, lg *zap.Logger) *Ledger {
	return &Ledger{
		windows: windows,
		cache:   c,
		lg:      lg.Named("ledger"),
	}
}

// TryReserve takes one unit of capacity in the window. Returns ErrWindowFull
// when the window is at capacity and ErrWindowNotFound for unknown IDs. N
// concurrent calls against remaining capacity k succeed exactly min(N, k)
// times; the repository's single conditional update is what closes the race.
func (l *Ledger) TryReserve(ctx context.Context, windowID string) error {
	w, err := l.windows.Reserve(ctx, windowID)
	if err != nil {
		return err
	}

	l.lg.Debug("reserved",
		zap.String("window_id", w.ID),
		zap.Int("reserved", w.Reserved),
		zap.Int("capacity", w.Capacity),
	)
	l.invalidate(ctx, w)
	return nil
}

// Release returns one unit of capacity to the window. ErrNoReservations
// signals a call-discipline bug in the caller: every release must pair with
// an earlier successful reserve.
func (l *Ledger) Release(ctx context.Context, windowID string) error {
	w, err := l.windows.Release(ctx, windowID)
	if err != nil {
		return err
	}

	l.lg.Debug("released",
		zap.String("window_id", w.ID),
		zap.Int("reserved", w.Reserved),
	)
	l.invalidate(ctx, w)
	return nil
}

// Hold reserves one unit on behalf of an external collaborator and returns
// the updated window. Unlike TryReserve, the unit is backed by a persisted
// hold row, so the reaper never reclaims it; it stays taken until
// ReleaseHold.
func (l *Ledger) Hold(ctx context.Context, windowID string) (*Window, error) {
	w, err := l.windows.Hold(ctx, uuid.New().String(), windowID)
	if err != nil {
		return nil, err
	}

	l.lg.Debug("held",
		zap.String("window_id", w.ID),
		zap.Int("reserved", w.Reserved),
		zap.Int("capacity", w.Capacity),
	)
	l.invalidate(ctx, w)
	return w, nil
}

// ReleaseHold gives back one externally held unit and returns the updated
// window. ErrNoReservations means the window has no live holds; units held
// by orders are not releasable this way.
func (l *Ledger) ReleaseHold(ctx context.Context, windowID string) (*Window, error) {
	w, err := l.windows.ReleaseHold(ctx, windowID)
	if err != nil {
		return nil, err
	}

	l.lg.Debug("hold released",
		zap.String("window_id", w.ID),
		zap.Int("reserved", w.Reserved),
	)
	l.invalidate(ctx, w)
	return w, nil
}

// ReapExpired realigns reserved counters with committed orders and live
// external holds for future windows, releasing counts held by checkout runs
// that died between reserve and commit. Windows touched within the grace
// period are left alone so that in-flight checkouts are not clobbered.
func (l *Ledger) ReapExpired(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := l.windows.ReconcileReserved(ctx, grace)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.lg.Info("reaped abandoned reservations", zap.Int64("windows", n))
		if cerr := l.cache.InvalidateByPattern(ctx, "windows:*"); cerr != nil {
			l.lg.Warn("listing cache invalidation failed after reap", zap.Error(cerr))
		}
	}
	return n, nil
}

// invalidate drops the window's entry and its point's listings. Best effort:
// a cache failure must never fail a reservation.
func (l *Ledger) invalidate(ctx context.Context, w *Window) {
	if err := l.cache.InvalidateByPattern(ctx, cache.WindowKey(w.ID)); err != nil {
		l.lg.Warn("window cache invalidation failed", zap.String("window_id", w.ID), zap.Error(err))
	}
	if err := l.cache.InvalidateByPattern(ctx, cache.PointWindowsPattern(w.PointID)); err != nil {
		l.lg.Warn("point cache invalidation failed", zap.String("point_id", w.PointID), zap.Error(err))
	}
}
