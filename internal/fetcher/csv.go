package fetcher

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// CSVOptions configures CSV decoding.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // 0 = none
}

// ParseRows decodes a blob into raw rows keyed by header name.
// Keys ending in .xlsx are read as spreadsheets, everything else as delimited text.
func ParseRows(key string, data []byte) ([]model.RawRow, error) {
	if strings.HasSuffix(strings.ToLower(key), ".xlsx") {
		return ParseXLSX(data, XLSXOptions{})
	}
	return ParseCSV(data, CSVOptions{})
}

// ParseCSV decodes UTF-8 delimited text with a header row. A leading byte-order
// mark is stripped. Short rows omit the trailing columns; extra cells are dropped.
func ParseCSV(data []byte, opts CSVOptions) ([]model.RawRow, error) {
	decoded := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("csv: empty input, no header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	var rows []model.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", len(rows)+1)
		}
		rows = append(rows, zipRow(header, record))
	}
	return rows, nil
}

// zipRow pairs normalized header names with cells. Blank header names are
// ignored; when two headers normalize to the same name the first column wins.
func zipRow(header, cells []string) model.RawRow {
	row := make(model.RawRow, len(header))
	for i, name := range header {
		name = model.NormalizeHeader(name)
		if name == "" || i >= len(cells) {
			continue
		}
		if _, dup := row[name]; dup {
			continue
		}
		row[name] = cells[i]
	}
	return row
}
