package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported table format")
	ErrEmptyTable        = errors.New("table has no data rows")
)

// Row maps every declared column name to a display string. Cells the source
// file omits are present with an empty value, never a missing key.
type Row map[string]string

type RecipientTable struct {
	Columns []string
	Rows    []Row
}

func (t *RecipientTable) TotalRows() int { return len(t.Rows) }

func (t *RecipientTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Preview returns up to n leading rows without copying the table.
func (t *RecipientTable) Preview(n int) []Row {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// Parse reads a spreadsheet or CSV into a RecipientTable. The first row is
// the header; every later row is data regardless of cell types.
func Parse(data []byte, format Format) (*RecipientTable, error) {
	var (
		grid [][]string
		err  error
	)
	switch format {
	case FormatCSV:
		grid, err = readCSV(data)
	case FormatXLSX:
		grid, err = readXLSX(data)
	case FormatXLS:
		grid, err = readXLS(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return fromGrid(grid)
}

func fromGrid(grid [][]string) (*RecipientTable, error) {
	if len(grid) == 0 {
		return nil, ErrEmptyTable
	}
	columns := dedupeColumns(grid[0])
	rows := make([]Row, 0, len(grid)-1)
	for _, raw := range grid[1:] {
		if isBlankRow(raw) {
			continue
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(raw) {
				row[col] = raw[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}
	return &RecipientTable{Columns: columns, Rows: rows}, nil
}

// dedupeColumns keeps the first occurrence of a header as-is and renames
// later collisions "Name (2)", "Name (3)". Blank headers become "Column N"
// before deduplication, so the result is deterministic for any input.
func dedupeColumns(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			// a literal "Name (2)" header could collide with our rename,
			// so bump the counter until the candidate is free
			candidate := fmt.Sprintf("%s (%d)", name, n)
			for seen[candidate] > 0 {
				n++
				candidate = fmt.Sprintf("%s (%d)", name, n)
			}
			name = candidate
			seen[name]++
		}
		out[i] = name
	}
	return out
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var grid [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv parse: %v", ErrUnsupportedFormat, err)
		}
		grid = append(grid, record)
	}
	return grid, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx open: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyTable
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx rows: %v", ErrUnsupportedFormat, err)
	}
	return rows, nil
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: xls open: %v", ErrUnsupportedFormat, err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyTable
	}
	var grid [][]string
	for r := 0; r <= int(sheet.MaxRow); r++ {
		row := sheet.Row(r)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		// FirstCol leaves leading empty cells implicit; reify them so
		// column positions line up with the header.
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, normalizeNumeric(row.Col(c)))
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

var trailingZeroFloat = regexp.MustCompile(`^-?\d+\.0+$`)

// normalizeNumeric trims the ".0" artifacts BIFF readers produce for integer
// cells so value fidelity matches the CSV/XLSX paths.
func normalizeNumeric(s string) string {
	if trailingZeroFloat.MatchString(s) {
		return s[:strings.IndexByte(s, '.')]
	}
	return s
}
