package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoverDrive/internal/model"
)

func openJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	return j, path
}

func TestJournalScanReports(t *testing.T) {
	j, _ := openJournal(t)
	defer j.Close()

	none, err := j.ScanReports(5)
	require.NoError(t, err)
	assert.Empty(t, none)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.RecordScan(model.ScanReport{Heading: float64(i * 10), Resolved: i%2 == 0, At: time.Now()}))
	}
	all, err := j.ScanReports(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 0.0, all[0].Heading)

	last, err := j.ScanReports(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 30.0, last[0].Heading)
	assert.Equal(t, 40.0, last[1].Heading)

	more, err := j.ScanReports(50)
	require.NoError(t, err)
	assert.Len(t, more, 5)
}

func TestJournalSurvivesReopen(t *testing.T) {
	j, path := openJournal(t)
	require.NoError(t, j.RecordDestination(model.Destination{Lat: 1, Lng: 2}, "base"))
	require.NoError(t, j.RecordDestination(model.Destination{Lat: 3, Lng: 4}, "scan"))
	_, ok, err := j.LatestTelemetry()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, j.RecordTelemetry(model.Telemetry{Mag: 10}))
	require.NoError(t, j.RecordTelemetry(model.Telemetry{Mag: 20}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	dests, err := j.Destinations()
	require.NoError(t, err)
	assert.Equal(t, []model.Destination{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}, dests)

	tel, ok, err := j.LatestTelemetry()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, tel.Mag)
}
