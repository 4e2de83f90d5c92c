// Package writebuffer batches line-protocol points per measurement
// before flushing them to the TSDB, matching the "queue-then-bulk-write"
// pattern the harvester and REST collectors both need. It is grounded on
// the teacher's queue package's per-topic channel buffering, adapted from
// an AMQP producer queue to an in-process per-measurement slice queue
// since there is no broker in this system's write path.
package writebuffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/sppmon/sppmon/internal/obslog"
	"github.com/sppmon/sppmon/internal/query"
	"github.com/sppmon/sppmon/internal/schema"
	"github.com/sppmon/sppmon/internal/tsdb"
)

// defaultBatchSize is the number of points written per /write request
// under normal conditions; Flush retries once at fallbackBatchSize when
// the TSDB reports a partial write at the default size.
const (
	defaultBatchSize  = 5000
	fallbackBatchSize = 500
)

// sentinelFieldName is the single STRING field autofilled onto a point that
// would otherwise carry zero fields: the wire format requires at least
// one field per point, and a tag-only measurement can't satisfy that on
// its own.
const sentinelFieldName = "sppmon_empty"

// Buffer accumulates Insert points per measurement and flushes them in
// bulk. It is not safe for concurrent use by multiple goroutines writing
// to the *same* measurement queue; the system's single-threaded
// collector model (§9) means this is never required in practice.
type Buffer struct {
	mu       sync.Mutex
	client   tsdb.Client
	database string
	queues   map[string][]query.Insert
	metrics  []query.Insert
}

// New builds a write buffer bound to one database.
func New(client tsdb.Client, database string) *Buffer {
	return &Buffer{
		client:   client,
		database: database,
		queues:   map[string][]query.Insert{},
	}
}

// Add queues a point for measurement. If the point has no fields, a
// single STRING sentinel field is autofilled so the eventual line
// protocol is well-formed.
func (b *Buffer) Add(measurement string, tags map[string]string, fields map[string]query.Field, timestamp int64) {
	if len(fields) == 0 {
		fields = map[string]query.Field{sentinelFieldName: query.StringField("")}
	}
	ins := query.Insert{
		Measurement: measurement,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   timestamp,
		HasTime:     timestamp != 0,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[measurement] = append(b.queues[measurement], ins)
}

// AddToOverrideRP queues the point under m's own measurement name,
// exactly as Add does. overrideRP is not applied: the point is written
// to whichever retention policy the later Flush call is given.
func (b *Buffer) AddToOverrideRP(m *schema.Measurement, overrideRP string, tags map[string]string, fields map[string]query.Field, timestamp int64) {
	b.Add(m.Name, tags, fields, timestamp)
	_ = overrideRP
}

// AddMetric queues a self-observability point (row counts, write
// latencies) destined for the sppmon-internal measurement, kept on a
// separate queue from domain data so Flush can report them independently.
func (b *Buffer) AddMetric(measurement string, tags map[string]string, fields map[string]query.Field, timestamp int64) {
	if len(fields) == 0 {
		fields = map[string]query.Field{sentinelFieldName: query.StringField("")}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = append(b.metrics, query.Insert{
		Measurement: measurement, Tags: tags, Fields: fields, Timestamp: timestamp, HasTime: timestamp != 0,
	})
}

// Report summarizes one Flush call.
type Report struct {
	Measurement string
	Queued      int
	Written     int
	Dropped     int
}

// Flush writes every queued measurement's points to the TSDB, retrying
// once at a smaller batch size when the default batch size triggers a
// partial write. Flushing clears the queue regardless of outcome: a
// dropped point is logged and counted, never requeued, since retrying
// indefinitely against a TSDB that keeps rejecting the same point would
// stall every other measurement's queue behind it.
func (b *Buffer) Flush(ctx context.Context, rp string) ([]Report, error) {
	b.mu.Lock()
	queues := b.queues
	metrics := b.metrics
	b.queues = map[string][]query.Insert{}
	b.metrics = nil
	b.mu.Unlock()

	var reports []Report
	for measurement, points := range queues {
		r, err := b.flushOne(ctx, rp, measurement, points)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}

	if len(metrics) > 0 {
		r, err := b.flushOne(ctx, rp, "sppmon_metrics", metrics)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (b *Buffer) flushOne(ctx context.Context, rp, measurement string, points []query.Insert) (Report, error) {
	rendered := make([]string, len(points))
	for i, p := range points {
		rendered[i] = p.Render()
	}

	report := Report{Measurement: measurement, Queued: len(points)}

	err := b.client.Write(ctx, b.database, rp, rendered, defaultBatchSize)
	if err == nil {
		report.Written = len(points)
		return report, nil
	}

	var pw *tsdb.PartialWriteError
	if !asPartialWrite(err, &pw) {
		return report, fmt.Errorf("writebuffer: flush %q: %w", measurement, err)
	}

	obslog.Log.Warnf("writebuffer: measurement %q partial write at batch size %d, retrying at %d", measurement, defaultBatchSize, fallbackBatchSize)
	if err := b.client.Write(ctx, b.database, rp, rendered, fallbackBatchSize); err != nil {
		if !asPartialWrite(err, &pw) {
			return report, fmt.Errorf("writebuffer: flush %q (retry): %w", measurement, err)
		}
		report.Dropped = pw.Dropped
		report.Written = len(points) - pw.Dropped
		obslog.Log.Errorf("writebuffer: measurement %q dropped %d of %d points even at fallback batch size", measurement, pw.Dropped, len(points))
		return report, nil
	}

	report.Written = len(points)
	return report, nil
}

func asPartialWrite(err error, target **tsdb.PartialWriteError) bool {
	pw, ok := err.(*tsdb.PartialWriteError)
	if ok {
		*target = pw
	}
	return ok
}
