package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

// Config holds connection parameters for a SQL Server backing store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func buildConnectionString(cfg *Config) string {
	query := url.Values{}
	query.Set("database", cfg.Database)
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// quoteIdentifier brackets an identifier, escaping closing brackets.
func quoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// qualifiedRelation quotes each segment of a possibly schema-qualified name.
func qualifiedRelation(relation string) string {
	parts := strings.Split(relation, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = quoteIdentifier(p)
	}
	return strings.Join(quoted, ".")
}

// Client is the SQL Server implementation of datasource.QueryClient.
type Client struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ datasource.QueryClient = (*Client)(nil)

// NewClient connects to SQL Server and returns a query client.
func NewClient(ctx context.Context, cfg *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}

	return &Client{db: db, logger: logger.Named("mssql_client")}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Probe checks existence, counts rows, and samples up to sampleLimit rows.
func (c *Client) Probe(ctx context.Context, relation string, sampleLimit int) (*datasource.ProbeResult, error) {
	rel := qualifiedRelation(relation)

	var count int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+rel).Scan(&count); err != nil {
		return nil, fmt.Errorf("count %s: %w", relation, err)
	}

	result := &datasource.ProbeResult{Exists: true, RowCount: count}
	if sampleLimit <= 0 || count == 0 {
		return result, nil
	}

	sampleLimit = datasource.ClampSampleLimit(sampleLimit)
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT TOP (%d) * FROM %s", sampleLimit, rel))
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", relation, err)
	}
	defer rows.Close()

	sample, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", relation, err)
	}
	result.SampleRows = sample
	return result, nil
}

// RunQuery fetches rows with the predicate applied via TOP (n).
func (c *Client) RunQuery(ctx context.Context, relation string, pred datasource.Predicate, limit int) ([]datasource.Row, error) {
	limit = datasource.ClampLimit(limit)

	where, args, err := compilePredicate(pred)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT TOP (%d) * FROM %s", limit, qualifiedRelation(relation))
	if where != "" {
		query += " WHERE " + where
	}

	c.logger.Debug("running report query",
		zap.String("relation", relation),
		zap.Int("conditions", len(pred.Conds)),
		zap.Int("limit", limit))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", relation, err)
	}
	defer rows.Close()

	return collectRows(rows)
}

// collectRows materializes database/sql rows into name-keyed maps.
func collectRows(rows *sql.Rows) ([]datasource.Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	out := make([]datasource.Row, 0)
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(datasource.Row, len(names))
		for i, name := range names {
			// Normalize byte slices to strings for uniform downstream handling
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// compilePredicate translates a predicate into a WHERE fragment with @pN
// placeholders. LIKE comparisons are lowercased on both sides since SQL
// Server collation-sensitivity is not under our control.
func compilePredicate(pred datasource.Predicate) (string, []any, error) {
	var clauses []string
	var args []any

	next := func(arg any) string {
		args = append(args, sql.Named(fmt.Sprintf("p%d", len(args)+1), arg))
		return fmt.Sprintf("@p%d", len(args))
	}

	for _, cond := range pred.Conds {
		col := quoteIdentifier(cond.Column)

		switch cond.Op {
		case models.OpEq, models.OpNe, models.OpGt, models.OpGte, models.OpLt, models.OpLte:
			if len(cond.Args) != 1 {
				return "", nil, fmt.Errorf("operator %s on %q needs one operand", cond.Op, cond.Column)
			}
			clauses = append(clauses, fmt.Sprintf("%s %s %s", col, comparisonSymbol(cond.Op), next(cond.Args[0])))
		case models.OpLike, models.OpNotLike:
			if len(cond.Args) != 1 {
				return "", nil, fmt.Errorf("operator %s on %q needs one operand", cond.Op, cond.Column)
			}
			kw := "LIKE"
			if cond.Op == models.OpNotLike {
				kw = "NOT LIKE"
			}
			clauses = append(clauses, fmt.Sprintf("LOWER(%s) %s LOWER(%s) ESCAPE '\\'", col, kw, next(substringPattern(cond.Args[0]))))
		case models.OpIn, models.OpNotIn:
			if len(cond.Args) == 0 {
				return "", nil, fmt.Errorf("operator %s on %q needs at least one operand", cond.Op, cond.Column)
			}
			placeholders := make([]string, len(cond.Args))
			for i, a := range cond.Args {
				placeholders[i] = next(a)
			}
			kw := "IN"
			if cond.Op == models.OpNotIn {
				kw = "NOT IN"
			}
			clauses = append(clauses, fmt.Sprintf("%s %s (%s)", col, kw, strings.Join(placeholders, ", ")))
		case models.OpBetween, models.OpNotBetween:
			if len(cond.Args) != 2 {
				return "", nil, fmt.Errorf("operator %s on %q needs two operands", cond.Op, cond.Column)
			}
			kw := "BETWEEN"
			if cond.Op == models.OpNotBetween {
				kw = "NOT BETWEEN"
			}
			lo := next(cond.Args[0])
			hi := next(cond.Args[1])
			clauses = append(clauses, fmt.Sprintf("%s %s %s AND %s", col, kw, lo, hi))
		case models.OpIsNull:
			clauses = append(clauses, col+" IS NULL")
		case models.OpIsNotNull:
			clauses = append(clauses, col+" IS NOT NULL")
		default:
			return "", nil, fmt.Errorf("unsupported operator %q on %q", cond.Op, cond.Column)
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

func comparisonSymbol(op models.Operator) string {
	switch op {
	case models.OpEq:
		return "="
	case models.OpNe:
		return "<>"
	case models.OpGt:
		return ">"
	case models.OpGte:
		return ">="
	case models.OpLt:
		return "<"
	default:
		return "<="
	}
}

func substringPattern(v any) string {
	s := fmt.Sprintf("%v", v)
	s = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
	return "%" + s + "%"
}
