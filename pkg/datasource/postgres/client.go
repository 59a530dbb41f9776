package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

// qualifiedRelation returns a properly quoted relation reference.
// Schema-qualified names ("payroll.payroll_entries") are quoted per segment.
func qualifiedRelation(relation string) string {
	parts := strings.Split(relation, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = pgx.Identifier{p}.Sanitize()
	}
	return strings.Join(quoted, ".")
}

// Client is the PostgreSQL implementation of datasource.QueryClient.
type Client struct {
	pool      *pgxpool.Pool
	ownedPool bool
	logger    *zap.Logger
}

var _ datasource.QueryClient = (*Client)(nil)

// NewClient connects to PostgreSQL and returns a query client.
// If logger is nil, a no-op logger is used.
func NewClient(ctx context.Context, cfg *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &Client{pool: pool, ownedPool: true, logger: logger.Named("pg_client")}, nil
}

// NewClientFromPool wraps an existing pool. The pool stays owned by the
// caller and is not closed by Close.
func NewClientFromPool(pool *pgxpool.Pool, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{pool: pool, logger: logger.Named("pg_client")}
}

// Close releases the pool if the client owns it.
func (c *Client) Close() error {
	if c.ownedPool && c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// Probe checks existence, counts rows, and samples up to sampleLimit rows.
func (c *Client) Probe(ctx context.Context, relation string, sampleLimit int) (*datasource.ProbeResult, error) {
	rel := qualifiedRelation(relation)

	var count int64
	if err := c.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+rel).Scan(&count); err != nil {
		return nil, fmt.Errorf("count %s: %w", relation, err)
	}

	result := &datasource.ProbeResult{Exists: true, RowCount: count}
	if sampleLimit <= 0 || count == 0 {
		return result, nil
	}

	sampleLimit = datasource.ClampSampleLimit(sampleLimit)
	rows, err := c.pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", rel, sampleLimit))
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

// RunQuery fetches rows with the predicate applied and the limit clamped.
func (c *Client) RunQuery(ctx context.Context, relation string, pred datasource.Predicate, limit int) ([]datasource.Row, error) {
	limit = datasource.ClampLimit(limit)

	where, args, err := compilePredicate(pred)
	if err != nil {
		return nil, err
	}

	sql := "SELECT * FROM " + qualifiedRelation(relation)
	if where != "" {
		sql += " WHERE " + where
	}
	sql += fmt.Sprintf(" LIMIT %d", limit)

	c.logger.Debug("running report query",
		zap.String("relation", relation),
		zap.Int("conditions", len(pred.Conds)),
		zap.Int("limit", limit))

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", relation, err)
	}
	defer rows.Close()

	return collectRows(rows)
}

// collectRows materializes pgx rows into name-keyed maps.
func collectRows(rows pgx.Rows) ([]datasource.Row, error) {
	fieldDescs := rows.FieldDescriptions()
	names := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		names[i] = string(fd.Name)
	}

	out := make([]datasource.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(datasource.Row, len(names))
		for i, name := range names {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// compilePredicate translates a predicate into a WHERE fragment with $n
// placeholders. Column names are quoted; operand values stay parameterized.
func compilePredicate(pred datasource.Predicate) (string, []any, error) {
	var clauses []string
	var args []any

	next := func(arg any) string {
		args = append(args, arg)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, cond := range pred.Conds {
		col := pgx.Identifier{cond.Column}.Sanitize()

		switch cond.Op {
		case models.OpEq, models.OpNe, models.OpGt, models.OpGte, models.OpLt, models.OpLte:
			if len(cond.Args) != 1 {
				return "", nil, fmt.Errorf("operator %s on %q needs one operand", cond.Op, cond.Column)
			}
			clauses = append(clauses, fmt.Sprintf("%s %s %s", col, comparisonSymbol(cond.Op), next(cond.Args[0])))
		case models.OpLike:
			if len(cond.Args) != 1 {
				return "", nil, fmt.Errorf("operator like on %q needs one operand", cond.Column)
			}
			clauses = append(clauses, fmt.Sprintf("%s ILIKE %s", col, next(substringPattern(cond.Args[0]))))
		case models.OpNotLike:
			if len(cond.Args) != 1 {
				return "", nil, fmt.Errorf("operator not_like on %q needs one operand", cond.Column)
			}
			clauses = append(clauses, fmt.Sprintf("%s NOT ILIKE %s", col, next(substringPattern(cond.Args[0]))))
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

// substringPattern wraps a value for case-insensitive substring matching.
// Literal wildcard characters in the value are escaped first.
func substringPattern(v any) string {
	s := fmt.Sprintf("%v", v)
	s = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
	return "%" + s + "%"
}
