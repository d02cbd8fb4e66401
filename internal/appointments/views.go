package appointments

import "time"

// View selects a calendar window.
type View string

const (
	ViewDaily   View = "daily"
	ViewWeekly  View = "weekly"
	ViewMonthly View = "monthly"
)

// Window returns the inclusive-start, exclusive-end range of view around ref
// in loc. Weeks run Sunday to Saturday. Unknown views are daily.
func Window(view View, ref time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	ref = ref.In(loc)
	day := startOfDay(ref)
	switch view {
	case ViewWeekly:
		sunday := day.AddDate(0, 0, -int(day.Weekday()))
		return sunday, sunday.AddDate(0, 0, 7)
	case ViewMonthly:
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
		return first, first.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
