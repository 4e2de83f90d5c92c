package sizingref

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRow_InRange(t *testing.T) {
	row := &Row{ExpectedMinMBps: 100, ExpectedMaxMBps: 500}
	assert.True(t, row.InRange(250))
	assert.False(t, row.InRange(50))
	assert.False(t, row.InRange(600))
	assert.True(t, row.InRange(100))
	assert.True(t, row.InRange(500))
}
