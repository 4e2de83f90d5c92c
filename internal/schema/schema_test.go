package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppmon/sppmon/internal/query"
	"github.com/sppmon/sppmon/internal/tsdb"
)

// fakeClient is an in-memory tsdb.Client stand-in, grounded on the same
// "fake implementation of an interface" pattern the teacher's repository
// tests use for its store interfaces.
type fakeClient struct {
	dbs  map[string]bool
	rps  map[string]map[string]tsdb.RPSpec
	cqs  map[string]map[string]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		dbs: map[string]bool{},
		rps: map[string]map[string]tsdb.RPSpec{},
		cqs: map[string]map[string]string{},
	}
}

func (f *fakeClient) Ping(context.Context) error { return nil }
func (f *fakeClient) SetupDatabase(_ context.Context, name string) error {
	f.dbs[name] = true
	if f.rps[name] == nil {
		f.rps[name] = map[string]tsdb.RPSpec{}
	}
	if f.cqs[name] == nil {
		f.cqs[name] = map[string]string{}
	}
	return nil
}
func (f *fakeClient) CreateRP(_ context.Context, db string, rp tsdb.RPSpec) error {
	f.rps[db][rp.Name] = rp
	return nil
}
func (f *fakeClient) AlterRP(_ context.Context, db string, rp tsdb.RPSpec) error {
	f.rps[db][rp.Name] = rp
	return nil
}
func (f *fakeClient) DropRP(_ context.Context, db, name string) error {
	delete(f.rps[db], name)
	return nil
}
func (f *fakeClient) ListRPs(_ context.Context, db string) ([]tsdb.RPSpec, error) {
	var out []tsdb.RPSpec
	for _, rp := range f.rps[db] {
		out = append(out, rp)
	}
	return out, nil
}
func (f *fakeClient) CreateCQ(_ context.Context, db, name, statement string) error {
	f.cqs[db][name] = statement
	return nil
}
func (f *fakeClient) DropCQ(_ context.Context, db, name string) error {
	delete(f.cqs[db], name)
	return nil
}
func (f *fakeClient) ListCQs(_ context.Context, db string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range f.cqs[db] {
		out[k] = v
	}
	return out, nil
}
func (f *fakeClient) Write(context.Context, string, string, []string, int) error { return nil }
func (f *fakeClient) Query(context.Context, string, query.Renderer) (tsdb.ResultSet, error) {
	return tsdb.ResultSet{}, nil
}
func (f *fakeClient) CopyDatabase(context.Context, string, string, tsdb.CopyPlan) (tsdb.CopyReport, error) {
	return tsdb.CopyReport{}, nil
}
func (f *fakeClient) WithTimeout(_ time.Duration) tsdb.Client { return f }

func TestCatalog_DeclareMeasurement_DefaultRP(t *testing.T) {
	cat := NewCatalog("mydb")
	err := cat.DeclareMeasurement("jobs", []FieldDef{{Name: "duration", Type: query.FieldInt}}, nil, "", nil, nil)
	require.NoError(t, err)

	m, ok := cat.Measurement("jobs")
	require.True(t, ok)
	assert.Equal(t, "autogen", m.RP.Name)
}

func TestCatalog_DeclareMeasurement_DuplicateDefaultRP(t *testing.T) {
	cat := NewCatalog("mydb")
	rp1, err := NewRP("rp_custom_default", "mydb", "90d", 1, true)
	require.NoError(t, err)
	err = cat.DeclareMeasurement("jobs", nil, nil, "", rp1, nil)
	require.NoError(t, err)

	rp2, err := NewRP("rp_another_default", "mydb", "30d", 1, true)
	require.NoError(t, err)
	err = cat.DeclareMeasurement("sessions", nil, nil, "", rp2, nil)
	require.Error(t, err)
	var violation *SchemaViolationError
	require.ErrorAs(t, err, &violation)
}

func TestCatalog_DeclareMeasurement_WithCQTemplate(t *testing.T) {
	cat := NewCatalog("mydb")
	rp90 := RP90Day("mydb")
	rpInf := RPInfinite("mydb")

	downsample := func(m *Measurement, generatedName string) (*query.ContinuousQuery, error) {
		inner, err := query.NewSelect(query.Select{
			Keyword: query.KeywordSelect,
			Fields:  []string{"mean(duration) AS duration"},
			Into:    query.Qualify(rpInf.Name, "mydb", m.Name),
			From:    query.Qualify(rp90.Name, "mydb", m.Name),
			GroupBy: []string{"time(1w)", "*"},
		})
		if err != nil {
			return nil, err
		}
		return query.NewContinuousQuery(query.ContinuousQuery{
			Name: generatedName, Database: "mydb", Inner: inner,
		})
	}

	err := cat.DeclareMeasurement("jobs", nil, nil, "", rp90, []CQTemplate{downsample})
	require.NoError(t, err)

	m, _ := cat.Measurement("jobs")
	require.Len(t, m.CQs, 1)
	assert.Equal(t, "cq_jobs_0", m.CQs[0].Name)
}

func TestReconcile_CreatesMissingRPsAndCQs(t *testing.T) {
	cat := NewCatalog("mydb")
	require.NoError(t, cat.DeclareMeasurement("jobs", nil, nil, "", RP90Day("mydb"), nil))

	client := newFakeClient()
	plan, err := cat.Reconcile(context.Background(), client)
	require.NoError(t, err)
	assert.Len(t, plan.CreateRPs, 2) // autogen + rp_90d
}

func TestReconcile_IsIdempotent(t *testing.T) {
	cat := NewCatalog("mydb")
	require.NoError(t, cat.DeclareMeasurement("jobs", nil, nil, "", RP90Day("mydb"), nil))

	client := newFakeClient()
	_, err := cat.Reconcile(context.Background(), client)
	require.NoError(t, err)

	plan2, err := cat.Reconcile(context.Background(), client)
	require.NoError(t, err)
	assert.Empty(t, plan2.CreateRPs)
	assert.Empty(t, plan2.AlterRPs)
	assert.Empty(t, plan2.CreateCQs)
	assert.Empty(t, plan2.DropCQs)
}
