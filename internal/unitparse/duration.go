// Package unitparse parses the two grammars the sppmon core needs to
// normalize heterogeneous vendor payloads onto canonical seconds and
// bytes: time-literal durations (retention policies, RP-bounded catch-up
// windows) and size/throughput literals (job log message parameters).
//
// Neither grammar is standard: the duration grammar adds day/week units
// on top of Go's time.Duration suffixes and a distinguished "INF" token,
// and the size grammar mixes binary and decimal multipliers depending on
// whether the unit carries an "i". Both parsers refuse to guess: an
// unrecognized unit or a missing numeric portion is always a ParseError.
package unitparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// durationUnit is one (suffix, magnitude) pair recognized by ParseDuration.
// Longer suffixes are listed first so greedy matching never mistakes "ms"
// for "m" followed by a stray "s".
type durationUnit struct {
	suffix string
	unit   time.Duration
}

var durationUnits = []durationUnit{
	{"ns", time.Nanosecond},
	{"µs", time.Microsecond},
	{"us", time.Microsecond},
	{"ms", time.Millisecond},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
	{"w", 7 * 24 * time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// Duration is a parsed time-literal. Infinite durations (the "INF" token)
// carry no numeric value and must never be rendered as the bare word
// "inf", which the TSDB's grammar rejects as a numeric literal.
type Duration struct {
	Infinite bool
	Value    time.Duration

	// literalUnit/literalCount remember a single-token input ("14d",
	// "1w", "0s") so String() can reproduce it exactly, satisfying the
	// parse-then-render identity law for canonical inputs. They are
	// empty/zero for multi-token inputs such as "1h30m", which fall
	// back to magnitude-based rendering.
	literalUnit  string
	literalCount int64
}

// ParseDuration parses a duration literal: either the case-insensitive
// token "INF", or one or more concatenated (integer)(unit) pairs drawn
// from {ns, µs/us, ms, s, m, h, d, w}.
func ParseDuration(s string) (Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Duration{}, errNoNumber(s)
	}
	if strings.EqualFold(trimmed, "INF") {
		return Duration{Infinite: true}, nil
	}

	var total time.Duration
	pos := 0
	pairs := 0
	var lastUnit string
	var lastCount int64

	for pos < len(trimmed) {
		digitStart := pos
		for pos < len(trimmed) && trimmed[pos] >= '0' && trimmed[pos] <= '9' {
			pos++
		}
		if pos == digitStart {
			return Duration{}, errNoNumber(s)
		}
		count, err := strconv.ParseInt(trimmed[digitStart:pos], 10, 64)
		if err != nil {
			return Duration{}, &ParseError{Input: s, Reason: err.Error()}
		}

		unit, unitLen := matchDurationUnit(trimmed[pos:])
		if unitLen == 0 {
			return Duration{}, errUnknownUnit(s, trimmed[pos:])
		}
		total += time.Duration(count) * unit.unit
		pos += unitLen
		pairs++
		lastUnit, lastCount = unit.suffix, count
	}

	d := Duration{Value: total}
	if pairs == 1 {
		d.literalUnit, d.literalCount = lastUnit, lastCount
	}
	return d, nil
}

func matchDurationUnit(remainder string) (durationUnit, int) {
	for _, u := range durationUnits {
		if strings.HasPrefix(remainder, u.suffix) {
			return u, len(u.suffix)
		}
	}
	return durationUnit{}, 0
}

// String renders the duration back to its literal form. "INF" is always
// rendered as the upper-case token; canonical single-unit inputs such as
// "14d" round-trip exactly.
func (d Duration) String() string {
	if d.Infinite {
		return "INF"
	}
	if d.literalUnit != "" {
		return fmt.Sprintf("%d%s", d.literalCount, d.literalUnit)
	}
	return formatDuration(d.Value)
}

// formatDuration picks the largest of {d, h, m, s, ms, µs, ns} that
// divides the value evenly. Weeks are deliberately excluded from this
// fallback: promoting "14d" to "2w" would break the identity law for the
// much more common day-denominated literal, and nothing in the spec
// requires week-rendering outside of a literal single-token "1w" input
// (handled above via literalUnit).
func formatDuration(v time.Duration) string {
	if v == 0 {
		return "0s"
	}
	ordered := []durationUnit{
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
		{"ms", time.Millisecond},
		{"µs", time.Microsecond},
		{"ns", time.Nanosecond},
	}
	for _, u := range ordered {
		if v%u.unit == 0 {
			return fmt.Sprintf("%d%s", v/u.unit, u.suffix)
		}
	}
	return fmt.Sprintf("%dns", v)
}

// Seconds returns the duration truncated to whole seconds. Infinite
// durations return 0; callers must check Infinite separately.
func (d Duration) Seconds() int64 {
	if d.Infinite {
		return 0
	}
	return int64(d.Value / time.Second)
}

// HMS decomposes the duration into hours, minutes, and seconds.
func (d Duration) HMS() (hours, minutes, seconds int64) {
	total := d.Seconds()
	hours = total / 3600
	minutes = (total % 3600) / 60
	seconds = total % 60
	return
}
