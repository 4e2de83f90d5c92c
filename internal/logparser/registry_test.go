package logparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_VMBackupSummaryA(t *testing.T) {
	r := DefaultRegistry()
	entry, known, err := r.Parse("CTGGA2384",
		[]string{"vm-one", "proxy01", "2", "full", "hotadd", "10GB", "125MB", "30s", "4", "4", "SUCCESS"},
		map[string]string{"session_id": "s1"})
	require.NoError(t, err)
	require.True(t, known)
	assert.Equal(t, "vmBackupSummary", entry.Measurement)
	assert.Equal(t, "proxy01", entry.Tags["proxy"])
	assert.Equal(t, "vm-one", entry.Tags["vm_name"])
	assert.Equal(t, "s1", entry.Tags["session_id"])
	assert.Equal(t, "SUCCESS", entry.Fields["status"].StringValue)
	assert.Equal(t, "CTGGA2384", entry.Fields["messageId"].StringValue)
}

func TestDefaultRegistry_VMBackupSummaryB(t *testing.T) {
	r := DefaultRegistry()
	entry, known, err := r.Parse("CTGGA0071", []string{"3", "1", "10GB", "125MB", "1h30m"}, map[string]string{"session_id": "s1"})
	require.NoError(t, err)
	require.True(t, known)
	assert.Equal(t, "vmBackupSummary", entry.Measurement)
	assert.Equal(t, int64(3), entry.Fields["protectedVMDKs"].IntValue)
	assert.Equal(t, int64(4), entry.Fields["totalVMDKs"].IntValue)
}

func TestDefaultRegistry_ReplicateSummary(t *testing.T) {
	r := DefaultRegistry()
	entry, known, err := r.Parse("CTGGA0072", []string{"5", "1", "01:30:00"}, nil)
	require.NoError(t, err)
	require.True(t, known)
	assert.Equal(t, "vmReplicateSummary", entry.Measurement)
	assert.Equal(t, int64(5400), entry.Fields["duration"].IntValue)
}

func TestDefaultRegistry_ReplicateStats(t *testing.T) {
	r := DefaultRegistry()
	entry, known, err := r.Parse("CTGGA0398", []string{"10GB", "125MB", "00:10:00"}, nil)
	require.NoError(t, err)
	require.True(t, known)
	assert.Equal(t, "vmReplicateStats", entry.Measurement)
	assert.Equal(t, int64(600), entry.Fields["duration"].IntValue)
}

func TestDefaultRegistry_O365Users(t *testing.T) {
	r := DefaultRegistry()
	entry, known, err := r.Parse("CTGGR0003", []string{"42"}, nil)
	require.NoError(t, err)
	require.True(t, known)
	assert.Equal(t, "office365Stats", entry.Measurement)
	assert.Equal(t, int64(42), entry.Fields["imported365Users"].IntValue)
}

func TestDefaultRegistry_O365Items(t *testing.T) {
	r := DefaultRegistry()
	entry, known, err := r.Parse("CTGGA2444", []string{"17"}, nil)
	require.NoError(t, err)
	require.True(t, known)
	assert.Equal(t, "office365Stats", entry.Measurement)
	assert.Equal(t, int64(17), entry.Fields["protectedItems"].IntValue)
	assert.Equal(t, int64(17), entry.Fields["selectedItems"].IntValue)
}

// TestDefaultRegistry_O365Bytes exercises the mandatory literal scenario:
// messageParams[0]="Inbox", messageParams[1]="Folder (Server: mail01,
// Transfer Size: 12.5 MB)" must yield itemName=Inbox, itemType=Folder,
// serverName=mail01, transferredBytes=13107200 (12.5 * 2^20).
func TestDefaultRegistry_O365Bytes(t *testing.T) {
	r := DefaultRegistry()
	entry, known, err := r.Parse("CTGGA2402", []string{"Inbox", "Folder (Server: mail01, Transfer Size: 12.5 MB)"}, nil)
	require.NoError(t, err)
	require.True(t, known)
	assert.Equal(t, "office365TransfBytes", entry.Measurement)
	assert.Equal(t, "Inbox", entry.Fields["itemName"].StringValue)
	assert.Equal(t, "Folder", entry.Tags["itemType"])
	assert.Equal(t, "mail01", entry.Tags["serverName"])
	assert.Equal(t, int64(13107200), entry.Fields["transferredBytes"].IntValue)
}

func TestDefaultRegistry_UnknownMessageID(t *testing.T) {
	r := DefaultRegistry()
	_, known, err := r.Parse("CTGGA9999", nil, nil)
	require.NoError(t, err)
	assert.False(t, known)
}

func TestO365Bytes_UsesBase2(t *testing.T) {
	got, err := o365Bytes("12.5 MB")
	require.NoError(t, err)
	assert.Equal(t, int64(13107200), got)
}

func TestO365Bytes_UnknownUnit(t *testing.T) {
	_, err := o365Bytes("5 XB")
	require.Error(t, err)
}

func TestParseO365Transfer_NoMatch(t *testing.T) {
	_, err := parseO365Transfer("not a transfer string")
	require.Error(t, err)
}
