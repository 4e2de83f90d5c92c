package errlist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestList_AddNilIsNoOp(t *testing.T) {
	l := New()
	l.Add("constant", nil)
	assert.True(t, l.Empty())
}

func TestList_AddAndSummary(t *testing.T) {
	l := New()
	l.Add("constant", errors.New("boom"))
	l.Addf("hourly", "pool %q unreachable", "tank0")

	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Empty())

	entries := l.Entries()
	assert.Equal(t, "constant", entries[0].Collector)
	assert.Equal(t, "hourly", entries[1].Collector)

	summary := l.Summary("/var/log/sppmon.log")
	assert.Contains(t, summary, "2 error")
	assert.Contains(t, summary, "/var/log/sppmon.log")
}

func TestList_SummaryNoErrors(t *testing.T) {
	l := New()
	assert.Equal(t, "run completed with no errors", l.Summary("/var/log/sppmon.log"))
}
