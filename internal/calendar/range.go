package calendar

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Range is a half-open [Start, End) span of whole UTC days.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func NewRange(start, end time.Time) (Range, error) {
	r := Range{Start: Day(start), End: Day(end)}
	return r, r.Validate()
}

func (r Range) Validate() error {
	if !r.Start.Before(r.End) {
		return fmt.Errorf("%w: %s", ErrInvalidRange, r)
	}
	return nil
}

// Overlaps: [s1,e1) dan [s2,e2) bentrok jika s1 < e2 && s2 < e1.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Days counts whole days in the range.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start) / day)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}
