package pickup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for window validation and reservation.
var (
	ErrInvalidTimeRange      = errors.New("start time must be before end time")
	ErrInvalidCapacity       = errors.New("capacity must be greater than 0")
	ErrWindowNotFound        = errors.New("pickup window not found")
	ErrWindowFull            = errors.New("pickup window is full")
	ErrNoReservations        = errors.New("pickup window has no reservations to release")
	ErrWindowReferenced      = errors.New("pickup window is referenced by existing orders")
	ErrCapacityBelowReserved = errors.New("capacity cannot be lower than reserved count")
)

// OverlapError indicates a window's time range collides with an existing
// window at the same point. Two ranges overlap iff
// newStart < existingEnd && existingStart < newEnd.
type OverlapError struct {
	PointID string
	Start   time.Time
	End     time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("window [%s, %s) overlaps an existing window at point %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.PointID)
}

// Window is a bounded time slot at one pickup point. The reserved counter is
// mutated only through Repository.Reserve and Repository.Release.
type Window struct {
	ID        string
	PointID   string
	StartTime time.Time
	EndTime   time.Time
	Capacity  int
	Reserved  int
}

// Available returns the remaining capacity, floored at zero.
func (w Window) Available() int {
	if a := w.Capacity - w.Reserved; a > 0 {
		return a
	}
	return 0
}

// IsFull reports whether the window has no remaining capacity.
func (w Window) IsFull() bool {
	return w.Reserved >= w.Capacity
}

// Covers reports whether t falls inside the window's [start, end) range.
func (w Window) Covers(t time.Time) bool {
	return !t.Before(w.StartTime) && t.Before(w.EndTime)
}

// Overlaps reports whether two half-open time ranges intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Availability is the read-model row returned by listing endpoints and kept
// in the cache.
type Availability struct {
	WindowID  string
	PointID   string
	StartTime time.Time
	EndTime   time.Time
	Capacity  int
	Reserved  int
	Available int
	IsFull    bool
}

// AvailabilityOf derives the read-model row for a window.
func AvailabilityOf(w Window) Availability {
	return Availability{
		WindowID:  w.ID,
		PointID:   w.PointID,
		StartTime: w.StartTime,
		EndTime:   w.EndTime,
		Capacity:  w.Capacity,
		Reserved:  w.Reserved,
		Available: w.Available(),
		IsFull:    w.IsFull(),
	}
}

// Repository defines persistence operations for pickup windows. Reserve and
// Release must be implemented as single conditional updates: a read-check-
// then-write sequence admits a lost-update race between concurrent checkouts.
type Repository interface {
	// Create persists a new window with reserved = 0. It returns an
	// *OverlapError when another window for the same point intersects the new
	// time range, checked inside the same statement as the insert.
	Create(ctx context.Context, w *Window) error

	// Update rewrites a window's time range and capacity. It fails with
	// ErrCapacityBelowReserved when the new capacity is below the current
	// reserved count, and with *OverlapError when the new range collides with
	// a sibling window.
	Update(ctx context.Context, w *Window) error

	// Delete removes a window unless any order (whatever its status) or any
	// external hold references it, in which case it returns
	// ErrWindowReferenced.
	Delete(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (*Window, error)
	ListByPoint(ctx context.Context, pointID string, from, to time.Time) ([]Window, error)

	// FindCovering returns the window at pointID whose [start, end) range
	// contains the given time, or ErrWindowNotFound.
	FindCovering(ctx context.Context, pointID string, at time.Time) (*Window, error)

	// Reserve atomically increments the reserved counter while it is below
	// capacity and returns the updated window. Returns ErrWindowFull when the
	// guard fails.
	Reserve(ctx context.Context, id string) (*Window, error)

	// Release atomically decrements the reserved counter while it is above
	// zero and returns the updated window. Returns ErrNoReservations when the
	// guard fails.
	Release(ctx context.Context, id string) (*Window, error)

	// Hold reserves one unit for an external collaborator, persisting a hold
	// row atomically with the increment. Held units are exempt from
	// reconciliation until released.
	Hold(ctx context.Context, holdID, windowID string) (*Window, error)

	// ReleaseHold removes the oldest external hold and decrements the
	// counter. Returns ErrNoReservations when the window has no live holds.
	ReleaseHold(ctx context.Context, windowID string) (*Window, error)

	// ReconcileReserved realigns reserved counters with the count of
	// non-cancelled orders plus external holds referencing each future
	// window, skipping windows touched within the grace period. Returns the
	// number of corrected rows.
	ReconcileReserved(ctx context.Context, grace time.Duration) (int64, error)
}
