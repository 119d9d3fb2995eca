// Package workbook reads spreadsheet sheets as header-keyed tables.
package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jonathan/filing-validator/internal/types"
	"github.com/xuri/excelize/v2"
)

// ErrSheetNotFound is returned by Sheet when the workbook has no sheet of that name
var ErrSheetNotFound = errors.New("worksheet not found")

// Workbook is an opened spreadsheet
type Workbook struct {
	file *excelize.File
}

// Open parses workbook bytes
func Open(data []byte) (*Workbook, error) {
	if isLegacyWorkbook(data) {
		return nil, fmt.Errorf("failed to open workbook: %w", ErrLegacyFormat)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return &Workbook{file: f}, nil
}

// Close releases the workbook's temporary resources
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames lists the sheets in workbook order
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// HasSheet reports whether a sheet exists
func (w *Workbook) HasSheet(name string) bool {
	idx, err := w.file.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// Table is a sheet read with its first row as the header.
// Cells are nil when empty, int or float64 for numeric cells, otherwise the displayed string.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]any
}

// Sheet reads the named sheet as a Table
func (w *Workbook) Sheet(name string) (*Table, error) {
	if !w.HasSheet(name) {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}

	shown, err := w.file.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}
	raw, err := w.file.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}

	t := &Table{Name: name}
	if len(shown) == 0 {
		return t, nil
	}
	t.Headers = headerNames(shown[0])

	for r := 1; r < len(shown); r++ {
		width := len(t.Headers)
		if len(shown[r]) > width {
			width = len(shown[r])
			t.Headers = extendHeaders(t.Headers, width)
		}
		row := make([]any, len(t.Headers))
		for c := 0; c < len(shown[r]); c++ {
			row[c] = w.cellValue(name, r, c, shown[r][c], at(raw, r, c))
		}
		t.Rows = append(t.Rows, row)
	}
	for i := range t.Rows {
		for len(t.Rows[i]) < len(t.Headers) {
			t.Rows[i] = append(t.Rows[i], nil)
		}
	}
	return t, nil
}

// Column returns the index of a header
func (t *Table) Column(name string) (int, bool) {
	for i, h := range t.Headers {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

// MissingColumns returns the names absent from the header, in the order given
func (t *Table) MissingColumns(names ...string) []string {
	var missing []string
	for _, n := range names {
		if _, ok := t.Column(n); !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Records converts every data row to a types.Row keyed by the given columns.
// With no columns, all headers are used in sheet order.
func (t *Table) Records(columns ...string) []types.Row {
	if len(columns) == 0 {
		columns = t.Headers
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i], _ = t.Column(c)
	}

	out := make([]types.Row, 0, len(t.Rows))
	for _, cells := range t.Rows {
		row := types.NewRow()
		for i, c := range columns {
			var v any
			if idx[i] >= 0 && idx[i] < len(cells) {
				v = cells[idx[i]]
			}
			row.Set(c, v)
		}
		out = append(out, row)
	}
	return out
}

// Strings returns the non-empty displayed values of one column
func (t *Table) Strings(column string) []string {
	i, ok := t.Column(column)
	if !ok {
		return nil
	}
	var out []string
	for _, cells := range t.Rows {
		if s := CellString(cells[i]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CellString renders a cell value as text; nil is ""
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// cellValue types one cell. Numeric cells yield their stored value whatever
// their number format, so "1,000" reads as 1000; cells stored as text and
// date or time formatted numbers keep the displayed string.
func (w *Workbook) cellValue(sheet string, r, c int, shown, raw string) any {
	if shown == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return shown
	}
	cell, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return shown
	}
	typ, err := w.file.GetCellType(sheet, cell)
	if err != nil {
		return shown
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeBool, excelize.CellTypeError:
		return shown
	case excelize.CellTypeFormula:
		if _, err := strconv.ParseFloat(strings.TrimSpace(shown), 64); err != nil {
			return shown
		}
	}
	if w.dateFormatted(sheet, cell) {
		return shown
	}

	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

func (w *Workbook) dateFormatted(sheet, cell string) bool {
	idx, err := w.file.GetCellStyle(sheet, cell)
	if err != nil {
		return false
	}
	style, err := w.file.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormatCode(*style.CustomNumFmt)
	}
	return isBuiltInDateFormat(style.NumFmt)
}

// isBuiltInDateFormat reports the built-in number format IDs that render dates or times
func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom format code has date or time tokens
// outside quoted literals and escapes. Bracketed sections only count as
// elapsed time ([h], [mm], [ss]).
func isDateFormatCode(code string) bool {
	runes := []rune(strings.ToLower(code))
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '"':
			for i++; i < len(runes) && runes[i] != '"'; i++ {
			}
		case '\\', '_', '*':
			i++
		case '[':
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if i+1 < len(runes) && strings.ContainsRune("hms", runes[i+1]) {
				return true
			}
			i = j
		case 'y', 'd', 'h', 's':
			return true
		}
	}
	return false
}

func at(rows [][]string, r, c int) string {
	if r < len(rows) && c < len(rows[r]) {
		return rows[r][c]
	}
	return ""
}

// headerNames fills blank headers with "Unnamed: <index>" and suffixes repeats with ".<n>"
func headerNames(cells []string) []string {
	out := make([]string, 0, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		name := strings.TrimSpace(c)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out = append(out, name)
	}
	return out
}

func extendHeaders(headers []string, width int) []string {
	for i := len(headers); i < width; i++ {
		headers = append(headers, fmt.Sprintf("Unnamed: %d", i))
	}
	return headers
}
