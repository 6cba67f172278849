// Package calendar generates trading sessions for markets that trade every day.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"crypto_backtest/internal/domain"
)

var (
	// DefaultStart and DefaultEnd bound the generated calendar when none is configured.
	DefaultStart = domain.NewDate(2017, time.January, 1)
	DefaultEnd   = domain.NewDate(2030, time.December, 31)
)

// MinutesPerSession is the number of one-minute stamps in a 24h session.
const MinutesPerSession = 24 * 60

// Calendar is the 24/7 trading calendar: every calendar day is a session.
type Calendar struct {
	start    domain.Date
	end      domain.Date
	sessions []domain.Date
}

// New generates every day in [start, end].
func New(start, end domain.Date) (*Calendar, error) {
	if !start.Valid() || !end.Valid() {
		return nil, fmt.Errorf("%w: calendar bounds %d..%d", domain.ErrInvalidArgument, start, end)
	}
	if end < start {
		return nil, fmt.Errorf("%w: calendar end %s before start %s", domain.ErrInvalidArgument, end, start)
	}
	return &Calendar{start: start, end: end, sessions: generate(start, end)}, nil
}

// Default returns the 2017-01-01..2030-12-31 calendar.
func Default() *Calendar {
	c, err := New(DefaultStart, DefaultEnd)
	if err != nil {
		panic(err)
	}
	return c
}

func generate(start, end domain.Date) []domain.Date {
	first, last := start.Time(), end.Time()
	days := int(last.Sub(first).Hours()/24) + 1
	out := make([]domain.Date, 0, days)
	for t := first; !t.After(last); t = t.AddDate(0, 0, 1) {
		out = append(out, domain.DateOf(t))
	}
	return out
}

// Start returns the first session.
func (c *Calendar) Start() domain.Date { return c.start }

// End returns the last session.
func (c *Calendar) End() domain.Date { return c.end }

// All returns a copy of every session.
func (c *Calendar) All() []domain.Date {
	return append([]domain.Date(nil), c.sessions...)
}

// Sessions returns every calendar day in [start, end]. The range is clipped
// to the calendar bounds, so days before Start or after End are never returned.
func (c *Calendar) Sessions(start, end domain.Date) []domain.Date {
	if end < start {
		return nil
	}
	lo := sort.Search(len(c.sessions), func(i int) bool { return c.sessions[i] >= start })
	hi := sort.Search(len(c.sessions), func(i int) bool { return c.sessions[i] > end })
	return append([]domain.Date(nil), c.sessions[lo:hi]...)
}

// IsSession reports whether d is a trading day.
func (c *Calendar) IsSession(d domain.Date) bool {
	return d.Valid() && d >= c.start && d <= c.end
}

// Next returns the session after d.
func (c *Calendar) Next(d domain.Date) (domain.Date, bool) {
	n := d.AddDays(1)
	if n < c.start {
		return c.start, true
	}
	if n > c.end {
		return 0, false
	}
	return n, true
}

// Previous returns the session before d.
func (c *Calendar) Previous(d domain.Date) (domain.Date, bool) {
	p := d.AddDays(-1)
	if p > c.end {
		return c.end, true
	}
	if p < c.start {
		return 0, false
	}
	return p, true
}

// Minutes returns the 1440 minute stamps of a session, starting at midnight UTC.
func (c *Calendar) Minutes(d domain.Date) []time.Time {
	if !c.IsSession(d) {
		return nil
	}
	start := d.Time()
	out := make([]time.Time, MinutesPerSession)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Minute)
	}
	return out
}
