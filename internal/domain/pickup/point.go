package pickup

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrPointNotFound is returned when a requested pickup point does not exist.
var ErrPointNotFound = errors.New("pickup point not found")

// Point represents a physical pickup location.
type Point struct {
	ID        string
	Address   string
	Latitude  float64
	Longitude float64
	Schedule  WeekSchedule
	Active    bool
}

// DaySchedule holds the working hours for one weekday, "HH:MM" local time.
type DaySchedule struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed,omitempty"`
}

// WeekSchedule is the weekly working schedule, indexed by time.Weekday.
type WeekSchedule [7]DaySchedule

// PointRepository provides pickup point lookups. Points are created and
// edited by operators; they are never deleted while referenced by an order,
// which the orders foreign key enforces.
type PointRepository interface {
	GetByID(ctx context.Context, id string) (*Point, error)
	Upsert(ctx context.Context, p *Point) error
}

// IsOpenAt reports whether the point's weekly schedule covers the given
// local time.
func (s WeekSchedule) IsOpenAt(t time.Time) bool {
	day := s[t.Weekday()]
	if day.Closed || day.Open == "" || day.Close == "" {
		return false
	}
	hhmm := t.Format("15:04")
	return day.Open <= hhmm && hhmm < day.Close
}
