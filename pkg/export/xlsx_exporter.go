package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct {
	Sheet string
}

// NewXLSXExporter constructs an exporter writing to the named sheet.
func NewXLSXExporter(sheet string) *XLSXExporter {
	if sheet == "" {
		sheet = "Plan"
	}
	return &XLSXExporter{Sheet: sheet}
}

// Render writes an optional merged title row, a styled header row and the data rows.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName(defaultSheet, e.Sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(data.Headers))
	if err != nil {
		return nil, err
	}
	if err := f.SetColWidth(e.Sheet, "A", lastCol, 18); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	row := 1
	if data.Title != "" {
		if err := f.SetCellValue(e.Sheet, "A1", data.Title); err != nil {
			return nil, err
		}
		if err := f.MergeCell(e.Sheet, "A1", lastCol+"1"); err != nil {
			return nil, fmt.Errorf("merge title: %w", err)
		}
		row++
	}

	for i, h := range data.Headers {
		if err := f.SetCellValue(e.Sheet, cellName(i, row), h); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(e.Sheet, cellName(0, row), cellName(len(data.Headers)-1, row), headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for _, r := range data.Rows {
		row++
		for i, value := range data.record(r) {
			if err := f.SetCellValue(e.Sheet, cellName(i, row), value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}
