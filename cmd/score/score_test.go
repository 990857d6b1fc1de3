package score

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/devices/sim"
)

func previewSettings() *conf.Settings {
	s := conf.Defaults()
	s.Cameras.Exposure = time.Millisecond
	s.SignalGenerator.SampleInterval = 100 * time.Microsecond
	s.SignalGenerator.ChunkSize = 7
	s.SignalGenerator.Channels = 4
	return s
}

func TestCompilePreview(t *testing.T) {
	t.Parallel()

	cs, err := compile(previewSettings(), 3)
	require.NoError(t, err)
	assert.Equal(t, 4, cs.NumberOfMeasures(), "trigger wait plus three planes")
	require.Len(t, cs.SyncMarks(), 1)
	assert.Zero(t, cs.SyncMarks()[0].Measure)
	assert.Equal(t, int64(30), cs.NumberOfTimePoints(), "1ms exposure at 100µs per plane")

	var out bytes.Buffer
	printLayout(&out, cs)
	assert.Contains(t, out.String(), "Channels         4")
	assert.Contains(t, out.String(), "Sync before time point")
}

func TestWriteChannelCSV(t *testing.T) {
	t.Parallel()

	cs, err := compile(previewSettings(), 2)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeChannelCSV(&out, cs, sim.StaveCameraTrigger))

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, int(cs.NumberOfTimePoints())+1)
	assert.Equal(t, []string{"time_point", "seconds", "value"}, records[0])
	assert.Equal(t, "0", records[1][0])

	err = writeChannelCSV(&out, cs, cs.NumberOfChannels())
	require.Error(t, err)
}
