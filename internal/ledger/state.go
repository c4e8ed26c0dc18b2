package ledger

import (
	"sort"
	"time"

	"parking-access-backend/internal/model"
)

// Presence is the derived state of a vehicle.
type Presence string

const (
	Inside  Presence = "DENTRO"
	Outside Presence = "FUERA"
)

// Stay is a whole-second duration with floored minute and hour breakdowns.
type Stay struct {
	Seconds int64
	Minutes int64
	Hours   int64
}

// NewStay builds the breakdown for s non-negative seconds.
func NewStay(s int64) Stay {
	return Stay{Seconds: s, Minutes: s / 60, Hours: s / 3600}
}

// Instant returns t as the ledger stores it: UTC at microsecond precision,
// the resolution of a PostgreSQL timestamptz.
func Instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FloorSeconds returns d in whole seconds rounded toward negative infinity.
func FloorSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if d%time.Second < 0 {
		s--
	}
	return s
}

// RecentFirst reports whether a sorts before b in most-recent-first order.
func RecentFirst(a, b model.AccessEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

// SortRecentFirst orders events by timestamp desc then id desc, in place.
func SortRecentFirst(events []model.AccessEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return RecentFirst(events[i], events[j])
	})
}

// Latest returns the most recent event, or nil for an empty sequence.
func Latest(events []model.AccessEvent) *model.AccessEvent {
	var latest *model.AccessEvent
	for i := range events {
		if latest == nil || RecentFirst(events[i], *latest) {
			latest = &events[i]
		}
	}
	return latest
}

// OpenAfter reports whether a vehicle whose events are exactly events is
// inside the facility.
func OpenAfter(events []model.AccessEvent) bool {
	return isOpen(Latest(events))
}

func isOpen(latest *model.AccessEvent) bool {
	return latest != nil && latest.Movement == model.MovementEntry
}
