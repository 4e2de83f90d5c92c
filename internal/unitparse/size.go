package unitparse

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Kind classifies what a parsed size/throughput literal actually means:
// some message-parameter fields are genuinely byte counts, some are
// percentages that must pass through unchanged, and some are durations
// spelled with the size grammar's dual-purpose time units.
type Kind int

const (
	// KindBytes is a byte count (or a throughput in bytes/s; the
	// multiplier is identical, only the field's semantics differ).
	KindBytes Kind = iota
	// KindPercent is a bare percentage value, passed through unchanged.
	KindPercent
	// KindSeconds is a dual-purpose time-like unit normalized to seconds.
	KindSeconds
)

// SizeValue is the result of parsing a size/throughput/percentage literal.
type SizeValue struct {
	Kind    Kind
	Bytes   int64
	Percent float64
	Seconds int64
}

type sizeUnit struct {
	suffix     string
	multiplier int64
	kind       Kind
}

// sizeUnits lists every suffix before any shorter suffix it begins with,
// so greedy prefix matching never mistakes "mins" for "min" or "min" for
// "m".
var sizeUnits = []sizeUnit{
	{"seconds", 1, KindSeconds},
	{"second", 1, KindSeconds},
	{"minutes", 60, KindSeconds},
	{"minute", 60, KindSeconds},
	{"hours", 3600, KindSeconds},
	{"hour", 3600, KindSeconds},
	{"mins", 60, KindSeconds},
	{"min", 60, KindSeconds},
	{"KiB", 1024, KindBytes},
	{"MiB", 1024 * 1024, KindBytes},
	{"GiB", 1024 * 1024 * 1024, KindBytes},
	{"TiB", 1024 * 1024 * 1024 * 1024, KindBytes},
	{"KB", 1000, KindBytes},
	{"MB", 1000 * 1000, KindBytes},
	{"GB", 1000 * 1000 * 1000, KindBytes},
	{"TB", 1000 * 1000 * 1000 * 1000, KindBytes},
	{"B", 1, KindBytes},
	{"k", 1024, KindBytes},
	{"m", 1024 * 1024, KindBytes},
	{"g", 1024 * 1024 * 1024, KindBytes},
	{"t", 1024 * 1024 * 1024 * 1024, KindBytes},
	{"b", 1024, KindBytes},
	{"d", 86400, KindSeconds},
	{"w", 604800, KindSeconds},
}

// ParseSize parses the size/throughput/percentage grammar of §4.A.
// Percentages pass through unchanged; a trailing "/s" throughput marker
// is stripped before unit matching since it carries the same multiplier
// as its storage counterpart.
func ParseSize(s string) (SizeValue, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return SizeValue{}, errNoNumber(s)
	}

	if strings.HasSuffix(trimmed, "%") {
		numPart := strings.TrimSuffix(trimmed, "%")
		f, err := strconv.ParseFloat(numPart, 64)
		if err != nil {
			return SizeValue{}, &ParseError{Input: s, Reason: "invalid percentage: " + err.Error()}
		}
		return SizeValue{Kind: KindPercent, Percent: f}, nil
	}

	digitEnd := 0
	for digitEnd < len(trimmed) && (trimmed[digitEnd] >= '0' && trimmed[digitEnd] <= '9' || trimmed[digitEnd] == '.') {
		digitEnd++
	}
	if digitEnd == 0 {
		return SizeValue{}, errNoNumber(s)
	}
	value, err := strconv.ParseFloat(trimmed[:digitEnd], 64)
	if err != nil {
		return SizeValue{}, &ParseError{Input: s, Reason: err.Error()}
	}

	remainder := strings.TrimSpace(trimmed[digitEnd:])
	remainder = strings.TrimSuffix(remainder, "/s")

	unit, unitLen := matchSizeUnit(remainder)
	if unitLen == 0 {
		return SizeValue{}, errUnknownUnit(s, remainder)
	}
	if unitLen != len(remainder) {
		return SizeValue{}, errUnknownUnit(s, remainder)
	}

	switch unit.kind {
	case KindSeconds:
		return SizeValue{Kind: KindSeconds, Seconds: int64(value * float64(unit.multiplier))}, nil
	default:
		return SizeValue{Kind: KindBytes, Bytes: int64(value * float64(unit.multiplier))}, nil
	}
}

func matchSizeUnit(remainder string) (sizeUnit, int) {
	for _, u := range sizeUnits {
		if strings.HasPrefix(remainder, u.suffix) {
			return u, len(u.suffix)
		}
	}
	return sizeUnit{}, 0
}

// FormatBytes renders a byte count for human-readable log and report
// output, reusing the teacher's go-humanize dependency rather than
// hand-rolling another size formatter.
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}
