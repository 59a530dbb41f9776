package render

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
)

// utf8BOM prefixes CSV output so spreadsheet applications detect the
// encoding and render CJK column names correctly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVRenderer writes rows as UTF-8 CSV with a byte order mark and a
// display-name header row.
type CSVRenderer struct {
	opts Options
}

var _ Renderer = (*CSVRenderer)(nil)

func (r *CSVRenderer) Render(columns []Column, rows []datasource.Row) ([]byte, error) {
	if r.opts.DropZeroColumns {
		columns = pruneZeroColumns(columns, rows)
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.DisplayName
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = formatValue(row[col.FieldKey])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv output: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *CSVRenderer) ContentType() string {
	return "text/csv; charset=utf-8"
}

func (r *CSVRenderer) Extension() string {
	return "csv"
}
