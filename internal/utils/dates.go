package contextutils

import "time"

// DateKeyLayout is the calendar-date key format used for daily stats.
// Dates are taken from wall-clock local time at call time; no timezone
// normalization is attempted.
const DateKeyLayout = "2006-01-02"

// DateKey formats t as a YYYY-MM-DD stats key in t's location.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// DaysAgoKey returns the stats key for n days before t.
func DaysAgoKey(t time.Time, n int) string {
	return t.AddDate(0, 0, -n).Format(DateKeyLayout)
}
