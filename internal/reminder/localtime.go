package reminder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var ErrInvalidLocalTime = errors.New("invalid local reminder time")

// Matches "YYYY-MM-DDTHH:MM" and "YYYY-MM-DD HH:MM". Seconds, fractions and
// a zone designator may follow and are ignored; any other suffix (" BC")
// is rejected.
var localTimePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2})(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}(?::?\d{2})?)?$`)

// LocalTime is a wall-clock time with no zone attached.
type LocalTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// ParseLocalTime reads the date and time of s.
func ParseLocalTime(s string) (LocalTime, error) {
	m := localTimePattern.FindStringSubmatch(s)
	if m == nil {
		return LocalTime{}, fmt.Errorf("%w: %q", ErrInvalidLocalTime, s)
	}

	n := make([]int, 5)
	for i := range n {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return LocalTime{}, fmt.Errorf("%w: %q", ErrInvalidLocalTime, s)
		}
		n[i] = v
	}

	lt := LocalTime{Year: n[0], Month: time.Month(n[1]), Day: n[2], Hour: n[3], Minute: n[4]}
	if !lt.valid() {
		return LocalTime{}, fmt.Errorf("%w: %q", ErrInvalidLocalTime, s)
	}
	return lt, nil
}

// valid rejects fields that time.Date would silently normalise.
func (l LocalTime) valid() bool {
	if l.Hour > 23 || l.Minute > 59 {
		return false
	}
	t := l.asUTC()
	return t.Year() == l.Year && t.Month() == l.Month && t.Day() == l.Day
}

func (l LocalTime) asUTC() time.Time {
	return time.Date(l.Year, l.Month, l.Day, l.Hour, l.Minute, 0, 0, time.UTC)
}

func (l LocalTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d", l.Year, int(l.Month), l.Day, l.Hour, l.Minute)
}

// Reminder pairs a local time with the offset the client reported when it
// was set. OffsetMinutes follows the JavaScript getTimezoneOffset sign:
// minutes to add to local time to reach UTC (UTC+8 is -480).
type Reminder struct {
	At            LocalTime
	OffsetMinutes int
}

// DueUTC is the absolute instant the reminder fires.
func (r Reminder) DueUTC() time.Time {
	return r.At.asUTC().Add(time.Duration(r.OffsetMinutes) * time.Minute)
}

// IsDue reports whether the reminder has fired by now.
func (r Reminder) IsDue(now time.Time) bool {
	return !r.DueUTC().After(now)
}
