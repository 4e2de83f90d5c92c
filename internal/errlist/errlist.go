// Package errlist accumulates non-fatal collector errors across a single
// invocation, per the propagation policy of the sppmon core: a collector
// catches everything at its own boundary, records it here, and continues
// with the next item. At shutdown the list's Summary line is logged and
// returned as the run's error; the list is not written to a self-metrics
// row.
package errlist

import (
	"fmt"
	"sync"
)

// Entry is one recorded failure, tagged with the collector that observed
// it so the shutdown summary can attribute counts per collector.
type Entry struct {
	Collector string
	Err       error
}

// List is a single-invocation error accumulator. The core runs collectors
// sequentially (see the concurrency model), so List does not need to be
// safe for concurrent use; the mutex exists only because logrus hooks and
// deferred cleanup can append to it from outside the main call stack.
type List struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty error list.
func New() *List {
	return &List{}
}

// Add records a failure against the named collector. A nil err is a no-op.
func (l *List) Add(collector string, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Collector: collector, Err: err})
}

// Addf is a convenience wrapper that formats the error first.
func (l *List) Addf(collector, format string, args ...interface{}) {
	l.Add(collector, fmt.Errorf(format, args...))
}

// Len returns the number of recorded entries.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the recorded entries.
func (l *List) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Empty reports whether no errors have been recorded.
func (l *List) Empty() bool {
	return l.Len() == 0
}

// Summary renders a one-line count-and-pointer message for the run
// summary line the CLI prints at shutdown.
func (l *List) Summary(logPath string) string {
	n := l.Len()
	if n == 0 {
		return "run completed with no errors"
	}
	return fmt.Sprintf("run completed with %d error(s); see %s for details", n, logPath)
}
