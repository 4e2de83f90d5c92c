package writebuffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppmon/sppmon/internal/query"
	"github.com/sppmon/sppmon/internal/tsdb"
)

type recordingClient struct {
	writes        [][]string
	alwaysPartial bool
	dropped       int
}

func (c *recordingClient) Ping(context.Context) error             { return nil }
func (c *recordingClient) SetupDatabase(context.Context, string) error { return nil }
func (c *recordingClient) CreateRP(context.Context, string, tsdb.RPSpec) error { return nil }
func (c *recordingClient) AlterRP(context.Context, string, tsdb.RPSpec) error  { return nil }
func (c *recordingClient) DropRP(context.Context, string, string) error       { return nil }
func (c *recordingClient) ListRPs(context.Context, string) ([]tsdb.RPSpec, error) { return nil, nil }
func (c *recordingClient) CreateCQ(context.Context, string, string, string) error { return nil }
func (c *recordingClient) DropCQ(context.Context, string, string) error          { return nil }
func (c *recordingClient) ListCQs(context.Context, string) (map[string]string, error) {
	return nil, nil
}
func (c *recordingClient) Query(context.Context, string, query.Renderer) (tsdb.ResultSet, error) {
	return tsdb.ResultSet{}, nil
}
func (c *recordingClient) CopyDatabase(context.Context, string, string, tsdb.CopyPlan) (tsdb.CopyReport, error) {
	return tsdb.CopyReport{}, nil
}
func (c *recordingClient) WithTimeout(time.Duration) tsdb.Client { return c }

func (c *recordingClient) Write(_ context.Context, _, _ string, points []string, _ int) error {
	c.writes = append(c.writes, points)
	if c.alwaysPartial {
		return &tsdb.PartialWriteError{Dropped: c.dropped, Total: len(points)}
	}
	return nil
}

func TestBuffer_Add_AutofillsSentinelField(t *testing.T) {
	client := &recordingClient{}
	b := New(client, "mydb")
	b.Add("tagonly", map[string]string{"host": "a"}, nil, 1700000000)

	_, err := b.Flush(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, client.writes, 1)
	assert.Contains(t, client.writes[0][0], "sppmon_empty=")
}

func TestBuffer_Flush_RetriesAtFallbackBatchSize(t *testing.T) {
	client := &recordingClient{alwaysPartial: true, dropped: 2}
	b := New(client, "mydb")
	b.Add("jobs", nil, map[string]query.Field{"duration": query.IntField(5)}, 1700000000)

	reports, err := b.Flush(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Dropped)
	require.Len(t, client.writes, 2) // default attempt then fallback attempt
}

func TestBuffer_Flush_ClearsQueueRegardlessOfOutcome(t *testing.T) {
	client := &recordingClient{}
	b := New(client, "mydb")
	b.Add("jobs", nil, map[string]query.Field{"duration": query.IntField(1)}, 1700000000)

	_, err := b.Flush(context.Background(), "")
	require.NoError(t, err)

	reports, err := b.Flush(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestBuffer_AddMetric_FlushesSeparately(t *testing.T) {
	client := &recordingClient{}
	b := New(client, "mydb")
	b.AddMetric("sppmon_metrics", map[string]string{"collector": "jobs"}, map[string]query.Field{"runtime": query.FloatField(1.2)}, 1700000000)

	reports, err := b.Flush(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "sppmon_metrics", reports[0].Measurement)
}
