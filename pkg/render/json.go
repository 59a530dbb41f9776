package render

import (
	"encoding/json"
	"fmt"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
)

// JSONRenderer writes rows as a JSON array of objects keyed by display
// name, in template column order within each object's source row.
type JSONRenderer struct {
	opts Options
}

var _ Renderer = (*JSONRenderer)(nil)

func (r *JSONRenderer) Render(columns []Column, rows []datasource.Row) ([]byte, error) {
	if r.opts.DropZeroColumns {
		columns = pruneZeroColumns(columns, rows)
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]any, len(columns))
		for _, col := range columns {
			record[col.DisplayName] = row[col.FieldKey]
		}
		out = append(out, record)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json output: %w", err)
	}
	return data, nil
}

func (r *JSONRenderer) ContentType() string {
	return "application/json"
}

func (r *JSONRenderer) Extension() string {
	return "json"
}
