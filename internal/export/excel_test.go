package export

import (
	"bytes"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"calendly/internal/availability"
)

func TestWriteSlots(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	start := time.Date(2026, 1, 12, 14, 0, 0, 0, time.UTC)
	res := &availability.Result{
		OwnerID:  "owner-1",
		EventID:  "event-1",
		Timezone: "Asia/Tokyo",
		Duration: 30,
		Slots: []availability.Slot{
			{Start: start, Local: start.In(tokyo)},
			{Start: start.Add(30 * time.Minute), Local: start.Add(30 * time.Minute).In(tokyo)},
		},
		Resolved: start,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSlots(&buf, res))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Slots", "Summary"}, f.GetSheetList())

	rows, err := f.GetRows("Slots")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, slotColumns, rows[0])
	assert.Equal(t, []string{"2026-01-12", "23:00", "23:30", "2026-01-12T14:00:00Z", "Asia/Tokyo"}, rows[1])
	assert.Equal(t, []string{"2026-01-12", "23:30", "00:00", "2026-01-12T14:30:00Z", "Asia/Tokyo"}, rows[2])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, summary, 6)
	assert.Equal(t, []string{"Slots", "2"}, summary[3])
}

func TestWriteSlotsEmpty(t *testing.T) {
	res := &availability.Result{OwnerID: "o", EventID: "e", Reason: availability.ReasonConflictSourceUnavailable}

	var buf bytes.Buffer
	require.NoError(t, WriteSlots(&buf, res))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Slots")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"Reason", "conflict_source_unavailable"}, summary[4])
}

func TestWriterRequiresSheet(t *testing.T) {
	w := NewWriter()
	defer w.Close()
	assert.Error(t, w.WriteRow("x"))
}

func TestFilename(t *testing.T) {
	dates, err := availability.ParseDateRange("2026-01-12", "2026-01-18")
	require.NoError(t, err)
	assert.Equal(t, "availability_event-1_20260112_20260118.xlsx", Filename(&availability.Result{EventID: "event-1"}, dates))
}
