package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is the tabular shape shared by the CSV and PDF renderers.
// Rows are keyed by header name; missing keys render as empty cells.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders a Dataset as CSV bytes.
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes the header row followed by one record per dataset row.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}

	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
