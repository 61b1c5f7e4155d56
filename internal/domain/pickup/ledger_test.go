package pickup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/cache"
)

func newTestLedger(t *testing.T, capacity int) (*Ledger, *fakeWindowRepo, string) {
	t.Helper()
	repo := newFakeWindowRepo()
	w := &Window{
		ID:        "win-1",
		PointID:   "point-1",
		StartTime: baseTime,
		EndTime:   baseTime.Add(2 * time.Hour),
		Capacity:  capacity,
	}
	require.NoError(t, repo.Create(context.Background(), w))
	return NewLedger(repo, cache.NewMemory(), zaptest.NewLogger(t)), repo, w.ID
}

func TestTryReserve_UpToCapacity(t *testing.T) {
	ledger, repo, id := newTestLedger(t, 2)

	require.NoError(t, ledger.TryReserve(context.Background(), id))
	require.NoError(t, ledger.TryReserve(context.Background(), id))
	require.ErrorIs(t, ledger.TryReserve(context.Background(), id), ErrWindowFull)

	w, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Reserved)
}

func TestTryReserve_UnknownWindow(t *testing.T) {
	ledger, _, _ := newTestLedger(t, 1)

	require.ErrorIs(t, ledger.TryReserve(context.Background(), "nope"), ErrWindowNotFound)
}

func TestRelease_Underflow(t *testing.T) {
	ledger, _, id := newTestLedger(t, 2)

	require.ErrorIs(t, ledger.Release(context.Background(), id), ErrNoReservations)

	require.NoError(t, ledger.TryReserve(context.Background(), id))
	require.NoError(t, ledger.Release(context.Background(), id))
	require.ErrorIs(t, ledger.Release(context.Background(), id), ErrNoReservations)
}

// With N concurrent attempts against remaining capacity k, exactly min(N, k)
// succeed and the rest fail with ErrWindowFull.
func TestTryReserve_Concurrent(t *testing.T) {
	const (
		capacity = 7
		attempts = 50
	)
	ledger, repo, id := newTestLedger(t, capacity)

	var succeeded, full atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	for range attempts {
		g.Go(func() error {
			switch err := ledger.TryReserve(ctx, id); {
			case err == nil:
				succeeded.Add(1)
				return nil
			case errors.Is(err, ErrWindowFull):
				full.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(capacity), succeeded.Load())
	assert.Equal(t, int64(attempts-capacity), full.Load())

	w, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, capacity, w.Reserved, "reserved must equal capacity, never exceed it")
}

func TestHold_UpToCapacity(t *testing.T) {
	ledger, _, id := newTestLedger(t, 2)

	w, err := ledger.Hold(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Reserved)

	w, err = ledger.Hold(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Reserved)

	_, err = ledger.Hold(context.Background(), id)
	require.ErrorIs(t, err, ErrWindowFull)
}

func TestReleaseHold(t *testing.T) {
	ledger, _, id := newTestLedger(t, 2)

	_, err := ledger.ReleaseHold(context.Background(), id)
	require.ErrorIs(t, err, ErrNoReservations)

	_, err = ledger.Hold(context.Background(), id)
	require.NoError(t, err)

	w, err := ledger.ReleaseHold(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Reserved)
}

// A checkout reservation is not releasable through the hold endpoint: only
// units held by external collaborators can be given back that way.
func TestReleaseHold_OnlyReleasesHolds(t *testing.T) {
	ledger, repo, id := newTestLedger(t, 3)

	require.NoError(t, ledger.TryReserve(context.Background(), id))
	_, err := ledger.ReleaseHold(context.Background(), id)
	require.ErrorIs(t, err, ErrNoReservations)

	w, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Reserved)
}

func TestReapExpired(t *testing.T) {
	ledger, repo, id := newTestLedger(t, 5)

	// Three reservations, but only one order made it to commit.
	for range 3 {
		require.NoError(t, ledger.TryReserve(context.Background(), id))
	}
	repo.orderRefs[id] = 1

	fixed, err := ledger.ReapExpired(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fixed)

	w, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Reserved, "orphaned reservations must return to sale")
}

// An external hold has no order row; reconciliation must count it alongside
// committed orders instead of reverting the collaborator's capacity.
func TestReapExpired_KeepsExternalHolds(t *testing.T) {
	ledger, repo, id := newTestLedger(t, 5)

	_, err := ledger.Hold(context.Background(), id)
	require.NoError(t, err)

	// One committed order and one checkout reservation that never committed.
	require.NoError(t, ledger.TryReserve(context.Background(), id))
	require.NoError(t, ledger.TryReserve(context.Background(), id))
	repo.orderRefs[id] = 1

	fixed, err := ledger.ReapExpired(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fixed)

	w, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Reserved, "the order and the hold must both survive the reap")
}
