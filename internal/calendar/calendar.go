package calendar

import (
	"fmt"
	"time"
)

// SecondsPerDay is the length of a settlement day. Leap seconds are ignored.
const SecondsPerDay = 86400

// Day counts whole days elapsed since the Unix epoch.
type Day uint32

// Clock supplies the current settlement day.
type Clock interface {
	Today() Day
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Today returns the current day derived from the system time.
func (SystemClock) Today() Day {
	return DayOf(time.Now())
}

// FixedClock always reports the same day. Useful for tests and replay tooling.
type FixedClock Day

// Today returns the fixed day.
func (c FixedClock) Today() Day {
	return Day(c)
}

// DayOf converts a point in time into its settlement day. Instants before the
// epoch map to day 0.
func DayOf(t time.Time) Day {
	sec := t.Unix()
	if sec < 0 {
		return 0
	}
	return Day(sec / SecondsPerDay)
}

// String renders the day as DD-MM-YYYY.
func (d Day) String() string {
	return Format(int64(d))
}

// Format converts a day count since 1970-01-01 into a DD-MM-YYYY string using
// the proleptic Gregorian calendar. Negative counts are valid and fall before
// the epoch.
func Format(days int64) string {
	y, m, d := civil(days)
	return fmt.Sprintf("%02d-%02d-%d", d, m, y)
}

// civil splits a day count into year, month and day of month. The computation
// works in eras of 400 years starting on March 1st so leap days fall at the
// end of each shifted year.
func civil(days int64) (year int64, month, day int) {
	days += 719468
	era := days
	if era < 0 {
		era -= 146096
	}
	era /= 146097
	doe := days - era*146097                               // [0, 146096]
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365 // [0, 399]
	doy := doe - (365*yoe + yoe/4 - yoe/100)               // [0, 365]
	mp := (5*doy + 2) / 153                                // [0, 11]
	day = int(doy - (153*mp+2)/5 + 1)
	if mp < 10 {
		month = int(mp + 3)
	} else {
		month = int(mp - 9)
	}
	year = yoe + era*400
	if month <= 2 {
		year++
	}
	return year, month, day
}
