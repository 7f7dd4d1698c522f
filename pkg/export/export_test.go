package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title: "Allocation recommendations",
		Columns: []Column{
			{Key: "student", Label: "Student"},
			{Key: "lecturer", Label: "Lecturer"},
		},
		Rows: []map[string]string{
			{"student": "stu-1", "lecturer": "lec-1"},
			{"student": "stu-2"},
		},
	}
}

func TestCSVExporterUsesLabelsAndKeys(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Lecturer", lines[0])
	assert.Equal(t, "stu-1,lec-1", lines[1])
	assert.Equal(t, "stu-2,", lines[2])
}

func TestExportersRejectEmptyColumns(t *testing.T) {
	renderers := []Renderer{NewCSVExporter(), NewPDFExporter(), NewXLSXExporter()}
	for _, renderer := range renderers {
		_, err := renderer.Render(Dataset{})
		assert.Error(t, err, renderer.Extension())
	}
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterWritesRows(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer book.Close() //nolint:errcheck

	sheet := book.GetSheetName(0)
	assert.Equal(t, "Allocation recommendations", sheet)
	header, err := book.GetCellValue(sheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Student", header)
	value, err := book.GetCellValue(sheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "lec-1", value)
}

func TestColumnWidthsSplitsRemainder(t *testing.T) {
	widths := columnWidths([]Column{{Key: "a", Width: 77}, {Key: "b"}, {Key: "c"}})
	assert.Equal(t, []float64{77, 100, 100}, widths)
}
