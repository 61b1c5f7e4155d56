package pickup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/cache"
)

// fakeWindowRepo mimics the conditional-update semantics of the SQL
// repository under a mutex, so concurrency tests exercise the same guard
// behaviour the database provides.
type fakeWindowRepo struct {
	mu            sync.Mutex
	windows       map[string]*Window
	orderRefs     map[string]int // non-cancelled orders per window
	cancelledRefs map[string]int // cancelled orders per window
	holds         map[string][]string
}

func newFakeWindowRepo() *fakeWindowRepo {
	return &fakeWindowRepo{
		windows:       make(map[string]*Window),
		orderRefs:     make(map[string]int),
		cancelledRefs: make(map[string]int),
		holds:         make(map[string][]string),
	}
}

func (r *fakeWindowRepo) Create(_ context.Context, w *Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.windows {
		if other.PointID == w.PointID && Overlaps(w.StartTime, w.EndTime, other.StartTime, other.EndTime) {
			return &OverlapError{PointID: w.PointID, Start: w.StartTime, End: w.EndTime}
		}
	}
	cp := *w
	r.windows[w.ID] = &cp
	return nil
}

func (r *fakeWindowRepo) Update(_ context.Context, w *Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.windows[w.ID]
	if !ok {
		return ErrWindowNotFound
	}
	if current.Reserved > w.Capacity {
		return ErrCapacityBelowReserved
	}
	for id, other := range r.windows {
		if id != w.ID && other.PointID == current.PointID && Overlaps(w.StartTime, w.EndTime, other.StartTime, other.EndTime) {
			return &OverlapError{PointID: current.PointID, Start: w.StartTime, End: w.EndTime}
		}
	}
	current.StartTime = w.StartTime
	current.EndTime = w.EndTime
	current.Capacity = w.Capacity
	return nil
}

func (r *fakeWindowRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[id]; !ok {
		return ErrWindowNotFound
	}
	if r.orderRefs[id]+r.cancelledRefs[id] > 0 || len(r.holds[id]) > 0 {
		return ErrWindowReferenced
	}
	delete(r.windows, id)
	return nil
}

func (r *fakeWindowRepo) GetByID(_ context.Context, id string) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *fakeWindowRepo) ListByPoint(_ context.Context, pointID string, from, to time.Time) ([]Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Window
	for _, w := range r.windows {
		if w.PointID == pointID && Overlaps(from, to, w.StartTime, w.EndTime) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *fakeWindowRepo) FindCovering(_ context.Context, pointID string, at time.Time) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.windows {
		if w.PointID == pointID && w.Covers(at) {
			cp := *w
			return &cp, nil
		}
	}
	return nil, ErrWindowNotFound
}

func (r *fakeWindowRepo) Reserve(_ context.Context, id string) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	if w.Reserved >= w.Capacity {
		return nil, ErrWindowFull
	}
	w.Reserved++
	cp := *w
	return &cp, nil
}

func (r *fakeWindowRepo) Release(_ context.Context, id string) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	if w.Reserved <= 0 {
		return nil, ErrNoReservations
	}
	w.Reserved--
	cp := *w
	return &cp, nil
}

func (r *fakeWindowRepo) Hold(_ context.Context, holdID, windowID string) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[windowID]
	if !ok {
		return nil, ErrWindowNotFound
	}
	if w.Reserved >= w.Capacity {
		return nil, ErrWindowFull
	}
	w.Reserved++
	r.holds[windowID] = append(r.holds[windowID], holdID)
	cp := *w
	return &cp, nil
}

func (r *fakeWindowRepo) ReleaseHold(_ context.Context, windowID string) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[windowID]
	if !ok {
		return nil, ErrWindowNotFound
	}
	if len(r.holds[windowID]) == 0 {
		return nil, ErrNoReservations
	}
	r.holds[windowID] = r.holds[windowID][1:]
	w.Reserved--
	cp := *w
	return &cp, nil
}

func (r *fakeWindowRepo) ReconcileReserved(_ context.Context, _ time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var fixed int64
	for id, w := range r.windows {
		target := r.orderRefs[id] + len(r.holds[id])
		if target > w.Capacity {
			target = w.Capacity
		}
		if w.Reserved != target {
			w.Reserved = target
			fixed++
		}
	}
	return fixed, nil
}

type fakePointRepo struct {
	points map[string]*Point
}

func (r *fakePointRepo) GetByID(_ context.Context, id string) (*Point, error) {
	p, ok := r.points[id]
	if !ok {
		return nil, ErrPointNotFound
	}
	return p, nil
}

func (r *fakePointRepo) Upsert(_ context.Context, p *Point) error {
	r.points[p.ID] = p
	return nil
}

func newTestCatalog(t *testing.T) (*Catalog, *fakeWindowRepo, *cache.Memory) {
	t.Helper()
	repo := newFakeWindowRepo()
	points := &fakePointRepo{points: map[string]*Point{
		"point-1": {ID: "point-1", Address: "1 Test Street", Active: true},
	}}
	c := cache.NewMemory()
	return NewCatalog(repo, points, c, zaptest.NewLogger(t)), repo, c
}

var baseTime = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func TestCreateWindow_InvalidRange(t *testing.T) {
	catalog, _, _ := newTestCatalog(t)

	_, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID:   "point-1",
		StartTime: baseTime.Add(2 * time.Hour),
		EndTime:   baseTime,
		Capacity:  5,
	})
	require.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID:   "point-1",
		StartTime: baseTime,
		EndTime:   baseTime,
		Capacity:  5,
	})
	require.ErrorIs(t, err, ErrInvalidTimeRange, "zero-length window must be rejected")
}

func TestCreateWindow_InvalidCapacity(t *testing.T) {
	catalog, _, _ := newTestCatalog(t)

	_, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID:   "point-1",
		StartTime: baseTime,
		EndTime:   baseTime.Add(2 * time.Hour),
		Capacity:  0,
	})
	require.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestCreateWindow_UnknownPoint(t *testing.T) {
	catalog, _, _ := newTestCatalog(t)

	_, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID:   "nope",
		StartTime: baseTime,
		EndTime:   baseTime.Add(2 * time.Hour),
		Capacity:  5,
	})
	require.ErrorIs(t, err, ErrPointNotFound)
}

func TestCreateWindow_Overlap(t *testing.T) {
	catalog, _, _ := newTestCatalog(t)

	_, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 5,
	})
	require.NoError(t, err)

	// Shares only the boundary instant: not an overlap.
	_, err = catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime.Add(2 * time.Hour), EndTime: baseTime.Add(4 * time.Hour), Capacity: 5,
	})
	require.NoError(t, err, "touching windows must be allowed")

	_, err = catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime.Add(time.Hour), EndTime: baseTime.Add(3 * time.Hour), Capacity: 5,
	})
	var overlapErr *OverlapError
	require.ErrorAs(t, err, &overlapErr)
	assert.Equal(t, "point-1", overlapErr.PointID)
}

func TestUpdateWindow_CapacityBelowReserved(t *testing.T) {
	catalog, repo, _ := newTestCatalog(t)

	w, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 5,
	})
	require.NoError(t, err)

	for range 3 {
		_, err := repo.Reserve(context.Background(), w.ID)
		require.NoError(t, err)
	}

	two := 2
	_, err = catalog.UpdateWindow(context.Background(), w.ID, WindowPatch{Capacity: &two})
	require.ErrorIs(t, err, ErrCapacityBelowReserved)

	four := 4
	updated, err := catalog.UpdateWindow(context.Background(), w.ID, WindowPatch{Capacity: &four})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Capacity)
	assert.Equal(t, 3, updated.Reserved, "reserved count must survive capacity changes")
}

func TestListAvailable_RoundTrip(t *testing.T) {
	catalog, _, memCache := newTestCatalog(t)

	w, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 7,
	})
	require.NoError(t, err)

	from, to := baseTime.Add(-time.Hour), baseTime.Add(24*time.Hour)

	// Cold read fills the cache.
	list, err := catalog.ListAvailable(context.Background(), "point-1", from, to)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, w.ID, list[0].WindowID)
	assert.Equal(t, 7, list[0].Available, "fresh window must be fully available")
	assert.False(t, list[0].IsFull)
	require.Equal(t, 1, memCache.Len())

	// Warm read serves the cached listing.
	cached, err := catalog.ListAvailable(context.Background(), "point-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, list, cached)
}

func TestListAvailable_InvalidatedOnWrite(t *testing.T) {
	catalog, _, memCache := newTestCatalog(t)

	w, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 7,
	})
	require.NoError(t, err)

	from, to := baseTime.Add(-time.Hour), baseTime.Add(24*time.Hour)
	_, err = catalog.ListAvailable(context.Background(), "point-1", from, to)
	require.NoError(t, err)
	require.Equal(t, 1, memCache.Len())

	nine := 9
	_, err = catalog.UpdateWindow(context.Background(), w.ID, WindowPatch{Capacity: &nine})
	require.NoError(t, err)
	assert.Equal(t, 0, memCache.Len(), "writes must drop the point's listings")

	list, err := catalog.ListAvailable(context.Background(), "point-1", from, to)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 9, list[0].Capacity)
}

func TestDeleteWindow_Referenced(t *testing.T) {
	catalog, repo, _ := newTestCatalog(t)

	w, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 5,
	})
	require.NoError(t, err)

	repo.orderRefs[w.ID] = 1
	require.ErrorIs(t, catalog.DeleteWindow(context.Background(), w.ID), ErrWindowReferenced)

	repo.orderRefs[w.ID] = 0
	require.NoError(t, catalog.DeleteWindow(context.Background(), w.ID))

	_, err = catalog.GetWindow(context.Background(), w.ID)
	require.ErrorIs(t, err, ErrWindowNotFound)
}

// A cancelled order keeps pointing at its window for history, so the window
// must stay undeletable: the client gets a conflict, never a storage error.
func TestDeleteWindow_ReferencedByCancelledOrder(t *testing.T) {
	catalog, repo, _ := newTestCatalog(t)

	w, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 5,
	})
	require.NoError(t, err)

	repo.cancelledRefs[w.ID] = 1
	require.ErrorIs(t, catalog.DeleteWindow(context.Background(), w.ID), ErrWindowReferenced)
}

func TestDeleteWindow_ReferencedByHold(t *testing.T) {
	catalog, repo, _ := newTestCatalog(t)

	w, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 5,
	})
	require.NoError(t, err)

	_, err = repo.Hold(context.Background(), "hold-1", w.ID)
	require.NoError(t, err)
	require.ErrorIs(t, catalog.DeleteWindow(context.Background(), w.ID), ErrWindowReferenced)

	_, err = repo.ReleaseHold(context.Background(), w.ID)
	require.NoError(t, err)
	require.NoError(t, catalog.DeleteWindow(context.Background(), w.ID))
}

func TestGetWindow_Cached(t *testing.T) {
	catalog, repo, _ := newTestCatalog(t)

	w, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 5,
	})
	require.NoError(t, err)

	// Cold read fills the entry; a direct repo write is invisible to the
	// warm read until a catalog write invalidates.
	got, err := catalog.GetWindow(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	_, err = repo.Reserve(context.Background(), w.ID)
	require.NoError(t, err)

	cached, err := catalog.GetWindow(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cached.Reserved, "warm read must come from the cache")

	nine := 9
	_, err = catalog.UpdateWindow(context.Background(), w.ID, WindowPatch{Capacity: &nine})
	require.NoError(t, err)

	fresh, err := catalog.GetWindow(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, fresh.Capacity)
	assert.Equal(t, 1, fresh.Reserved)
}

func TestResolveWindow(t *testing.T) {
	catalog, _, _ := newTestCatalog(t)

	w, err := catalog.CreateWindow(context.Background(), CreateWindowRequest{
		PointID: "point-1", StartTime: baseTime, EndTime: baseTime.Add(2 * time.Hour), Capacity: 5,
	})
	require.NoError(t, err)

	found, err := catalog.ResolveWindow(context.Background(), "point-1", baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, w.ID, found.ID)

	// End bound is exclusive.
	_, err = catalog.ResolveWindow(context.Background(), "point-1", baseTime.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrWindowNotFound)
}
