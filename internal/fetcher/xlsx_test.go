package fetcher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseXLSX_Basic(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{
		"Scores": {
			{"ticker", "timestamp", "total_score"},
			{"AAPL", "2024-01-11", "12"},
			{"", "", ""},
			{"MSFT", "2024-02-01", "31"},
		},
	})

	rows, err := ParseXLSX(data, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "AAPL", rows[0]["ticker"])
	assert.Equal(t, "31", rows[1]["total_score"])
}

func TestParseXLSX_SheetByName(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{
		"Scores": {{"ticker"}, {"AAPL"}},
	})

	rows, err := ParseXLSX(data, XLSXOptions{SheetName: "Scores"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = ParseXLSX(data, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestParseXLSX_SheetIndexOutOfRange(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{"Scores": {{"ticker"}}})
	_, err := ParseXLSX(data, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
