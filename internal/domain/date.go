package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the ISO-8601 form accepted and printed for dates.
const DateFormat = "2006-01-02"

// Date is a calendar day encoded as YYYYMMDD, the on-disk bar key.
type Date uint64

// NewDate returns a normalized Date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date(uint64(y)*10000 + uint64(m)*100 + uint64(d))
}

// ParseDate accepts "2006-01-02" or "20060102".
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) == 8 && !strings.Contains(s, "-") {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid date %q: %w", s, err)
		}
		d := Date(v)
		if !d.Valid() {
			return 0, fmt.Errorf("invalid date %q", s)
		}
		return d, nil
	}
	t, err := time.Parse("2006-1-2", s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q want format %q: %w", s, DateFormat, err)
	}
	return DateOf(t), nil
}

// MustParseDate is like ParseDate but panics on error.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

func (d Date) Year() int         { return int(d / 10000) }
func (d Date) Month() time.Month { return time.Month(d / 100 % 100) }
func (d Date) Day() int          { return int(d % 100) }

// Valid reports whether d round-trips through time.Time unchanged.
func (d Date) Valid() bool {
	if d == 0 {
		return false
	}
	return DateOf(d.Time()) == d
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days away from d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) Before(x Date) bool { return d < x }
func (d Date) After(x Date) bool  { return d > x }

func (d Date) String() string {
	if d == 0 {
		return ""
	}
	return d.Time().Format(DateFormat)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It is used by the yaml config.
func (d *Date) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
