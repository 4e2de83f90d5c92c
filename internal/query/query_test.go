package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRender(t *testing.T) {
	ins := Insert{
		Measurement: "vm backup",
		Tags:        map[string]string{"proxy": "prox,y=1", "status": "OK"},
		Fields: map[string]Field{
			"bytes":  IntField(1024),
			"name":   StringField(`vm "one"` + "\n" + "two"),
			"ok":     BoolField(true),
			"ratio":  FloatField(0.5),
		},
		Timestamp: 1700000000,
		HasTime:   true,
	}
	rendered := ins.Render()
	assert.Equal(t, `vm\ backup,proxy=prox\,y\=1,status=OK bytes=1024i,name="vm \"one\"\ntwo",ok=true,ratio=0.5 1700000000`, rendered)
}

func TestInsertRender_NoTimestamp(t *testing.T) {
	ins := Insert{
		Measurement: "jobs",
		Fields:      map[string]Field{"count": IntField(3)},
	}
	assert.Equal(t, "jobs count=3i", ins.Render())
}

func TestSelect_DeleteForbidsExtras(t *testing.T) {
	_, err := NewSelect(Select{Keyword: KeywordDelete, Into: "x"})
	require.Error(t, err)

	_, err = NewSelect(Select{Keyword: KeywordDelete, From: "sessions", Where: "time > 0"})
	require.NoError(t, err)
}

func TestSelect_NestedRequiresSelect(t *testing.T) {
	inner, err := NewSelect(Select{Keyword: KeywordSelect, From: "jobs"})
	require.NoError(t, err)

	_, err = NewSelect(Select{Keyword: KeywordDelete, FromNested: inner})
	require.Error(t, err)

	outer, err := NewSelect(Select{Keyword: KeywordSelect, FromNested: inner})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT * FROM jobs)", outer.Render())
}

func TestSelect_RenderWhitespaceCollapsed(t *testing.T) {
	sel, err := NewSelect(Select{
		Keyword: KeywordSelect,
		Fields:  []string{"mean(duration) AS duration", "count(id) AS count"},
		Into:    "rp_inf.mydb.jobs",
		From:    "rp_days_90.mydb.jobs",
		GroupBy: []string{"time(1w)", "*"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT mean(duration) AS duration, count(id) AS count INTO rp_inf.mydb.jobs FROM rp_days_90.mydb.jobs GROUP BY time(1w), *",
		sel.Render())
}

func TestContinuousQuery_Render_Scenario1(t *testing.T) {
	inner, err := NewSelect(Select{
		Keyword: KeywordSelect,
		Fields:  []string{"mean(duration) AS duration", "count(id) AS count"},
		Into:    "rp_inf.mydb.jobs",
		From:    "rp_days_90.mydb.jobs",
		GroupBy: []string{"time(1w)", "*"},
	})
	require.NoError(t, err)

	cq, err := NewContinuousQuery(ContinuousQuery{
		Name:     "cq_jobs_0",
		Database: "mydb",
		Inner:    inner,
	})
	require.NoError(t, err)

	want := "CREATE CONTINUOUS QUERY cq_jobs_0 ON mydb BEGIN " +
		"SELECT mean(duration) AS duration, count(id) AS count INTO rp_inf.mydb.jobs " +
		"FROM rp_days_90.mydb.jobs GROUP BY time(1w), * END"
	assert.Equal(t, want, cq.Render())
}

func TestContinuousQuery_RequiresInto(t *testing.T) {
	inner, err := NewSelect(Select{Keyword: KeywordSelect, From: "jobs"})
	require.NoError(t, err)
	_, err = NewContinuousQuery(ContinuousQuery{Name: "cq", Database: "db", Inner: inner})
	require.Error(t, err)
}

func TestContinuousQuery_EqualByRenderedText(t *testing.T) {
	inner, _ := NewSelect(Select{Keyword: KeywordSelect, Into: "rp_inf.mydb.jobs", From: "jobs"})
	cq1, _ := NewContinuousQuery(ContinuousQuery{Name: "cq", Database: "db", Inner: inner})
	cq2, _ := NewContinuousQuery(ContinuousQuery{Name: "cq", Database: "db", Inner: inner})
	assert.True(t, cq1.Equal(cq2))
	assert.Equal(t, cq1.Hash(), cq2.Hash())
	assert.True(t, cq1.EqualText("  CREATE   CONTINUOUS  QUERY cq ON db BEGIN SELECT * INTO rp_inf.mydb.jobs FROM jobs END  "))
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "db.rp.measurement", Qualify("db", "rp", "measurement"))
	assert.Equal(t, "measurement", Qualify("", "", "measurement"))
}
