package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterDataset() Dataset {
	return Dataset{
		Columns: []Column{{Title: "Date", Width: 1}, {Title: "Subject", Width: 2}, {Title: "Invigilators", Width: 3}},
		Rows: [][]string{
			{"2024-01-10", "Mathematics, Paper 1", "Ada Lovelace; Grace Hopper"},
			{"2024-01-11", "Biology", ""},
		},
	}
}

func TestCSVRendererQuotesCells(t *testing.T) {
	out, err := NewCSVRenderer().Render(rosterDataset())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Subject", "Invigilators"}, records[0])
	assert.Equal(t, "Mathematics, Paper 1", records[1][1])
	assert.Equal(t, "", records[2][2])
}

func TestRenderersRejectMalformedDatasets(t *testing.T) {
	_, err := NewCSVRenderer().Render(Dataset{})
	assert.Error(t, err)

	ragged := rosterDataset()
	ragged.Rows = append(ragged.Rows, []string{"only one"})
	_, err = NewPDFRenderer().Render(ragged, "Roster")
	assert.Error(t, err)
}

func TestPDFRendererPaginates(t *testing.T) {
	data := rosterDataset()
	for i := 0; i < 80; i++ {
		data.Rows = append(data.Rows, []string{"2024-01-12", "A very long subject name that will not fit in its column at all", "Someone"})
	}
	renderer := NewPDFRenderer()
	renderer.now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }

	out, err := renderer.Render(data, "Invigilation Roster")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	empty, err := renderer.Render(Dataset{Columns: data.Columns}, "")
	require.NoError(t, err)
	assert.Less(t, len(empty), len(out))
}

func TestColumnWidthsFillPage(t *testing.T) {
	widths := columnWidths([]Column{{Title: "a", Width: 1}, {Title: "b"}, {Title: "c", Width: 2}})
	assert.InDelta(t, pdfPageWidth/4, widths[0], 0.001)
	assert.InDelta(t, pdfPageWidth/4, widths[1], 0.001)
	assert.InDelta(t, pdfPageWidth/2, widths[2], 0.001)
}
