package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var errNoHeaders = errors.New("csv requires at least one header")

// CSVExporter writes a Dataset as a header line followed by one record per row. The title is
// not part of the output.
type CSVExporter struct {
	// Comma overrides the field separator; zero means ','.
	Comma rune
}

// NewCSVExporter builds a comma-separated exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render returns the encoded dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the dataset to w.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return errNoHeaders
	}
	cw := csv.NewWriter(w)
	if e.Comma != 0 {
		cw.Comma = e.Comma
	}
	if err := cw.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for i, row := range data.Rows {
		if err := cw.Write(data.record(row)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
