package harvester

import "sync"

// MonotonicStamper nudges a timestamp forward by one second per key when
// it collides with the last timestamp seen for that key, so two VM
// backups finishing in the same wall-clock second never collide on the
// TSDB's (measurement, tag set, time) point identity — the TSDB has no
// concept of "insert, don't overwrite," so a silent collision would
// simply drop the earlier point.
type MonotonicStamper struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewMonotonicStamper builds an empty stamper.
func NewMonotonicStamper() *MonotonicStamper {
	return &MonotonicStamper{last: map[string]int64{}}
}

// Stamp returns a timestamp guaranteed to be strictly greater than the
// last one returned for key, advancing ts by one second at a time when
// the requested value has already been used.
func (s *MonotonicStamper) Stamp(key string, ts int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, seen := s.last[key]
	if seen && ts <= last {
		ts = last + 1
	}
	s.last[key] = ts
	return ts
}
