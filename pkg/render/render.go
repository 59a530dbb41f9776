package render

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

// Column is one output column of a rendered report, resolved from the
// template's field mappings.
type Column struct {
	FieldKey    string
	DisplayName string
}

// Options controls rendering behavior shared by all formats.
type Options struct {
	// DropZeroColumns removes numeric columns whose value is zero (or
	// empty) in every fetched row. Non-numeric columns are always kept.
	DropZeroColumns bool
}

// Renderer turns fetched rows into a report file body.
type Renderer interface {
	// Render produces the file bytes for the given columns and rows.
	Render(columns []Column, rows []datasource.Row) ([]byte, error)

	// ContentType returns the MIME type of the rendered output.
	ContentType() string

	// Extension returns the file extension without a leading dot.
	Extension() string
}

// ForFormat returns the renderer for an output format.
func ForFormat(format models.OutputFormat, opts Options) (Renderer, error) {
	switch format {
	case models.FormatCSV:
		return &CSVRenderer{opts: opts}, nil
	case models.FormatJSON:
		return &JSONRenderer{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// ColumnsFor resolves the output columns of a template: visible mappings
// only, ordered by sort order then field key for stability.
func ColumnsFor(tmpl *models.ReportTemplate) []Column {
	mappings := make([]models.FieldMapping, 0, len(tmpl.FieldMappings))
	for _, fm := range tmpl.FieldMappings {
		if fm.Visible {
			mappings = append(mappings, fm)
		}
	}
	sort.SliceStable(mappings, func(i, j int) bool {
		if mappings[i].SortOrder != mappings[j].SortOrder {
			return mappings[i].SortOrder < mappings[j].SortOrder
		}
		return mappings[i].FieldKey < mappings[j].FieldKey
	})

	columns := make([]Column, 0, len(mappings))
	for _, fm := range mappings {
		name := fm.DisplayName
		if name == "" {
			name = fm.FieldKey
		}
		columns = append(columns, Column{FieldKey: fm.FieldKey, DisplayName: name})
	}
	return columns
}

// pruneZeroColumns drops columns whose value is numerically zero or absent
// in every row. Columns containing any non-numeric value are kept.
func pruneZeroColumns(columns []Column, rows []datasource.Row) []Column {
	if len(rows) == 0 {
		return columns
	}

	kept := make([]Column, 0, len(columns))
	for _, col := range columns {
		allZero := true
		for _, row := range rows {
			val, ok := row[col.FieldKey]
			if !ok || val == nil {
				continue
			}
			num, isNumeric := asFloat(val)
			if !isNumeric || num != 0 {
				allZero = false
				break
			}
		}
		if !allZero {
			kept = append(kept, col)
		}
	}
	return kept
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// formatValue renders a cell value as text. Times use RFC 3339 date or
// timestamp form; nil becomes the empty string.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
