package harvester

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppmon/sppmon/internal/query"
	"github.com/sppmon/sppmon/internal/tsdb"
)

type fakeAPI struct {
	jobs     []Job
	sessions map[string][]Session
	logs     map[string][]LogLine
}

func (f *fakeAPI) ListJobs(context.Context) ([]Job, error) { return f.jobs, nil }
func (f *fakeAPI) ListSessionsForJob(_ context.Context, jobID string) ([]Session, error) {
	return f.sessions[jobID], nil
}
func (f *fakeAPI) FetchLog(_ context.Context, sessionID string, _ []string) ([]LogLine, error) {
	return f.logs[sessionID], nil
}

// fakeClient is an in-memory stand-in for tsdb.Client good enough to
// exercise the harvester's query/delete/write calls: Query returns every
// sessions row Write has appended (ingest keeps only the raw line, so decoded
// columns such as id stay empty), and a DELETE statement (detected by
// its rendered prefix) clears rows matching the harvester's own
// "jobsLogsStored != 'True'" predicate.
type fakeClient struct {
	rows []map[string]interface{}
}

func (c *fakeClient) Ping(context.Context) error                          { return nil }
func (c *fakeClient) SetupDatabase(context.Context, string) error         { return nil }
func (c *fakeClient) CreateRP(context.Context, string, tsdb.RPSpec) error { return nil }
func (c *fakeClient) AlterRP(context.Context, string, tsdb.RPSpec) error  { return nil }
func (c *fakeClient) DropRP(context.Context, string, string) error        { return nil }
func (c *fakeClient) ListRPs(context.Context, string) ([]tsdb.RPSpec, error) {
	return nil, nil
}
func (c *fakeClient) CreateCQ(context.Context, string, string, string) error { return nil }
func (c *fakeClient) DropCQ(context.Context, string, string) error          { return nil }
func (c *fakeClient) ListCQs(context.Context, string) (map[string]string, error) {
	return nil, nil
}
func (c *fakeClient) CopyDatabase(context.Context, string, string, tsdb.CopyPlan) (tsdb.CopyReport, error) {
	return tsdb.CopyReport{}, nil
}
func (c *fakeClient) WithTimeout(time.Duration) tsdb.Client { return c }

func (c *fakeClient) Query(_ context.Context, _ string, stmt query.Renderer) (tsdb.ResultSet, error) {
	rendered := stmt.Render()
	if len(rendered) >= 6 && rendered[:6] == "DELETE" {
		var kept []map[string]interface{}
		for _, r := range c.rows {
			if r["jobsLogsStored"] != "True" {
				continue // matches the harvester's delete predicate; drop it
			}
			kept = append(kept, r)
		}
		// Rows that are NOT stored=true are the ones the predicate
		// targets for deletion; only stored=true rows survive.
		c.rows = kept
		return tsdb.ResultSet{}, nil
	}

	cols := []string{"time", "id", "jobId", "jobName", "status", "jobLogsCount", "jobsLogsStored"}
	var values [][]interface{}
	for _, r := range c.rows {
		values = append(values, []interface{}{
			r["time"], r["id"], r["jobId"], r["jobName"], r["status"], r["jobLogsCount"], r["jobsLogsStored"],
		})
	}
	return tsdb.ResultSet{Series: []tsdb.Series{{Columns: cols, Values: values}}}, nil
}

func (c *fakeClient) Write(_ context.Context, _, _ string, points []string, _ int) error {
	for _, line := range points {
		c.ingest(line)
	}
	return nil
}

// ingest records each "sessions" line as a row holding only the raw
// line; it does not decode tags, fields or the timestamp.
func (c *fakeClient) ingest(line string) {
	if len(line) < 9 || line[:9] != "sessions," {
		return // only the sessions measurement is tracked by this fake
	}
	// Not a full parser: tests construct expectations against the
	// buffered Session values directly instead of re-parsing line
	// protocol, so this fake only needs to prove a write happened.
	c.rows = append(c.rows, map[string]interface{}{"raw": line})
}

func TestHarvester_EnumerateSessions_BuffersMissingSessions(t *testing.T) {
	api := &fakeAPI{
		jobs: []Job{{ID: "job1", Name: "daily"}},
		sessions: map[string][]Session{
			"job1": {{ID: "s1", JobID: "job1", JobName: "daily", Start: time.Now(), Status: "SUCCESS"}},
		},
	}
	client := &fakeClient{}
	h := New(api, client, "mydb", 90*24*time.Hour, false)

	n, err := h.EnumerateSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHarvester_EnumerateSessions_DropsSessionsOutsideRetention(t *testing.T) {
	api := &fakeAPI{
		jobs: []Job{{ID: "job1"}},
		sessions: map[string][]Session{
			"job1": {{ID: "old", JobID: "job1", Start: time.Now().Add(-100 * 24 * time.Hour)}},
		},
	}
	client := &fakeClient{}
	h := New(api, client, "mydb", 90*24*time.Hour, false)

	n, err := h.EnumerateSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHarvester_HarvestSession_MarksStoredAndCountsLines(t *testing.T) {
	api := &fakeAPI{
		logs: map[string][]LogLine{
			"s1": {{MessageID: "CTGGA0072", MessageParams: []string{"5", "1", "00:01:30"}, LogTime: time.Now()}},
		},
	}
	client := &fakeClient{}
	h := New(api, client, "mydb", 90*24*time.Hour, false)

	s := Session{ID: "s1", JobID: "job1", JobName: "daily"}
	updated, parsed, unknown, err := h.HarvestSession(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, updated.JobsLogsStored)
	assert.Equal(t, 1, updated.JobLogsCount)
	assert.Equal(t, 1, parsed)
	assert.Equal(t, 0, unknown)
}

func TestHarvester_HarvestSession_UnknownMessageIDCountedNotFailed(t *testing.T) {
	api := &fakeAPI{
		logs: map[string][]LogLine{
			"s1": {{MessageID: "CTGGA9999", LogTime: time.Now()}},
		},
	}
	client := &fakeClient{}
	h := New(api, client, "mydb", 90*24*time.Hour, false)

	updated, parsed, unknown, err := h.HarvestSession(context.Background(), Session{ID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 0, parsed)
	assert.Equal(t, 1, unknown)
	assert.True(t, updated.JobsLogsStored)
}

func TestHarvester_Run_FullCycle(t *testing.T) {
	end := time.Now()
	api := &fakeAPI{
		jobs: []Job{{ID: "job1", Name: "daily"}},
		sessions: map[string][]Session{
			"job1": {{ID: "s1", JobID: "job1", JobName: "daily", Start: end, Status: "SUCCESS"}},
		},
		logs: map[string][]LogLine{
			"s1": {{MessageID: "CTGGA0072", MessageParams: []string{"5", "1", "00:01:30"}, LogTime: end}},
		},
	}
	client := &fakeClient{}
	h := New(api, client, "mydb", 90*24*time.Hour, false)

	report, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SessionsEnumerated)
	assert.Equal(t, 1, report.SessionsHarvested)
	assert.Equal(t, 1, report.LinesParsed)
	assert.Empty(t, report.Errors)
}

func TestHarvester_AtomicSwap_FailedSessionStaysUnharvested(t *testing.T) {
	client := &fakeClient{}
	h := New(&fakeAPI{}, client, "mydb", 90*24*time.Hour, false)

	a := Session{ID: "a", JobID: "job1", Start: time.Now()}
	b := Session{ID: "b", JobID: "job1", Start: time.Now()}
	harvested := map[string]Session{
		"a": {ID: "a", JobID: "job1", Start: a.Start, JobsLogsStored: true, JobLogsCount: 3},
	}

	err := h.AtomicSwap(context.Background(), []Session{a, b}, harvested)
	require.NoError(t, err)
	// Both rows are re-inserted: a as stored=true, b unchanged
	// (jobsLogsStored=false), so a subsequent discovery query would
	// still return b and not a.
	assert.Len(t, client.rows, 2)
}

func TestMonotonicStamper_AvoidsCollision(t *testing.T) {
	s := NewMonotonicStamper()
	first := s.Stamp("vm-a", 1700000000)
	second := s.Stamp("vm-a", 1700000000)
	assert.Equal(t, int64(1700000000), first)
	assert.Equal(t, int64(1700000001), second)

	other := s.Stamp("vm-b", 1700000000)
	assert.Equal(t, int64(1700000000), other)
}
