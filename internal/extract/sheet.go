package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// sheet is one worksheet as rows of cell strings.
type sheet struct {
	name string
	rows [][]string
}

// flattenRows renders rows as tab-separated lines. Short rows are padded to
// the widest row so columns stay aligned.
func flattenRows(rows [][]string) string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		if len(r) < width {
			padded := make([]string, width)
			copy(padded, r)
			r = padded
		}
		lines[i] = strings.Join(r, "\t")
	}
	return strings.Join(lines, "\n")
}

// flattenSheets emits a marker line before every sheet's rows, in workbook order.
func flattenSheets(sheets []sheet) string {
	parts := make([]string, 0, 2*len(sheets))
	for _, s := range sheets {
		parts = append(parts, fmt.Sprintf("-- Sheet: %s --", s.name), flattenRows(s.rows))
	}
	return strings.Join(parts, "\n")
}

func decodeXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", parseErr("open xlsx", err)
	}
	defer func() { _ = f.Close() }()

	names := f.GetSheetList()
	sheets := make([]sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", parseErr(fmt.Sprintf("read sheet %q", name), err)
		}
		sheets = append(sheets, sheet{name: name, rows: rows})
	}
	return flattenSheets(sheets), nil
}

func decodeXLS(data []byte) (string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return "", parseErr("open xls", err)
	}

	sheets := make([]sheet, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := sheetRow(ws, r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			var cells []string
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, sheet{name: ws.Name, rows: trimTrailingEmpty(rows)})
	}
	return flattenSheets(sheets), nil
}

// sheetRow returns nil for a row the sheet never declared; xls.WorkSheet.Row
// dereferences the missing entry.
func sheetRow(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

func trimTrailingEmpty(rows [][]string) [][]string {
	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}
	return rows
}

// decodeCSV flattens delimited text like a single worksheet without a marker.
func decodeCSV(data []byte) (string, error) {
	text, err := decodeText(data)
	if err != nil {
		return "", err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", parseErr("read csv", err)
		}
		rows = append(rows, rec)
	}
	return flattenRows(rows), nil
}
