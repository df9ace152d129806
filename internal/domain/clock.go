package domain

import (
	"time"
	_ "time/tzdata"
)

// instantLayouts are tried in order when parsing backend instants. Naive
// layouts are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseInstant parses an ISO-8601 style instant.
func ParseInstant(s string) (time.Time, bool) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Clock formats instants into the display clock used on messages.
type Clock struct {
	loc    *time.Location
	layout string
	now    func() time.Time
}

// NewClock builds a Clock for the named zone and Go layout. An unknown zone
// falls back to UTC.
func NewClock(zone, layout string) *Clock {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	if layout == "" {
		layout = "15:04:05"
	}
	return &Clock{loc: loc, layout: layout, now: time.Now}
}

// WithNow overrides the clock source. Used by tests.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	cp := *c
	cp.now = now
	return &cp
}

// Now returns the current instant.
func (c *Clock) Now() time.Time { return c.now() }

// Format renders an instant as a display clock.
func (c *Clock) Format(t time.Time) string {
	return t.In(c.loc).Format(c.layout)
}

// FormatNow renders the current instant.
func (c *Clock) FormatNow() string { return c.Format(c.now()) }

// FormatInstant renders a backend instant, or now when it cannot be parsed.
func (c *Clock) FormatInstant(s string) string {
	if t, ok := ParseInstant(s); ok {
		return c.Format(t)
	}
	return c.FormatNow()
}

// ISO returns s normalised to RFC 3339 in UTC, or now when s is not a valid
// instant.
func (c *Clock) ISO(s string) string {
	t, ok := ParseInstant(s)
	if !ok {
		t = c.now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
