package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/config"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/logging"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/retry"
)

// MaxRelationNameLength bounds accepted relation names.
const MaxRelationNameLength = 100

var relationSegmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateRelationName rejects names that could not be legal identifiers
// before any network call is made. Schema-qualified names are validated
// per dotted segment.
func ValidateRelationName(name string) error {
	if name == "" || len(name) > MaxRelationNameLength {
		return &apperrors.ValidationError{
			Field:   "relation",
			Message: fmt.Sprintf("relation name must be 1-%d characters", MaxRelationNameLength),
		}
	}
	for _, segment := range strings.Split(name, ".") {
		if !relationSegmentPattern.MatchString(segment) {
			return &apperrors.ValidationError{
				Field:   "relation",
				Message: fmt.Sprintf("invalid relation name %q", name),
			}
		}
	}
	return nil
}

// SchemaProber safely checks relation existence, counts rows, and infers
// column types from sampled data. Backend failures are absorbed: callers
// see false/zero/empty, never an error, and the failure is logged at warn.
type SchemaProber struct {
	client   datasource.QueryClient
	timeout  time.Duration
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewSchemaProber creates a prober over the given query client.
func NewSchemaProber(client datasource.QueryClient, cfg *config.DiscoveryConfig, logger *zap.Logger) *SchemaProber {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := 10 * time.Second
	retryCfg := retry.ProbeConfig()
	if cfg != nil {
		if cfg.ProbeTimeoutSeconds > 0 {
			timeout = time.Duration(cfg.ProbeTimeoutSeconds) * time.Second
		}
		if cfg.ProbeRetries >= 0 {
			retryCfg.MaxRetries = cfg.ProbeRetries
		}
	}

	return &SchemaProber{
		client:   client,
		timeout:  timeout,
		retryCfg: retryCfg,
		logger:   logger.Named("prober"),
	}
}

// probe runs one bounded, retried probe against the backend.
func (p *SchemaProber) probe(ctx context.Context, relation string, sampleLimit int) (*datasource.ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return retry.DoWithResult(probeCtx, p.retryCfg, func() (*datasource.ProbeResult, error) {
		return p.client.Probe(probeCtx, relation, sampleLimit)
	})
}

// absorb records a failed probe and discards it. Callers return zero
// values; backend failures never surface past this boundary.
func (p *SchemaProber) absorb(relation, op string, err error) {
	perr := &apperrors.ProbeError{Relation: relation, Op: op, Err: err}
	p.logger.Warn("probe failed",
		zap.String("relation", relation),
		zap.String("op", op),
		zap.String("error", logging.SanitizeError(perr)))
}

// Exists reports whether the relation exists. Backend errors yield false.
func (p *SchemaProber) Exists(ctx context.Context, relation string) (bool, error) {
	if err := ValidateRelationName(relation); err != nil {
		return false, err
	}

	result, err := p.probe(ctx, relation, 0)
	if err != nil {
		p.absorb(relation, "exists", err)
		return false, nil
	}
	return result.Exists, nil
}

// RowCount returns the relation's row count. Backend errors yield 0.
func (p *SchemaProber) RowCount(ctx context.Context, relation string) (int64, error) {
	if err := ValidateRelationName(relation); err != nil {
		return 0, err
	}

	result, err := p.probe(ctx, relation, 0)
	if err != nil {
		p.absorb(relation, "row_count", err)
		return 0, nil
	}
	return result.RowCount, nil
}

// SampleRow returns up to limit sample rows (clamped into [1,10]).
// Backend errors yield an empty slice.
func (p *SchemaProber) SampleRow(ctx context.Context, relation string, limit int) ([]datasource.Row, error) {
	if err := ValidateRelationName(relation); err != nil {
		return nil, err
	}

	result, err := p.probe(ctx, relation, datasource.ClampSampleLimit(limit))
	if err != nil {
		p.absorb(relation, "sample", err)
		return []datasource.Row{}, nil
	}
	return result.SampleRows, nil
}

// InferColumns samples exactly one row and infers a descriptor per column.
// A relation without data yields an empty descriptor set, never an error.
func (p *SchemaProber) InferColumns(ctx context.Context, relation string) ([]models.ColumnDescriptor, error) {
	rows, err := p.SampleRow(ctx, relation, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.ColumnDescriptor{}, nil
	}

	row := rows[0]
	columns := make([]models.ColumnDescriptor, 0, len(row))
	for name, value := range row {
		columns = append(columns, describeColumn(name, value))
	}
	// Map iteration order is random; keep output stable.
	sort.Slice(columns, func(i, j int) bool { return columns[i].Name < columns[j].Name })
	return columns, nil
}

// describeColumn builds one descriptor from a column name and sampled value.
func describeColumn(name string, value any) models.ColumnDescriptor {
	desc := models.ColumnDescriptor{
		Name:           name,
		InferredType:   inferType(value),
		Nullable:       value == nil,
		IsKeyCandidate: isKeyCandidate(name),
	}
	if s, ok := value.(string); ok {
		desc.SampleDerivedMaxLength = len(s)
	}
	return desc
}

// isKeyCandidate marks columns whose name contains "id" or ends in "_id",
// regardless of inferred type.
func isKeyCandidate(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "id") || strings.HasSuffix(lower, "_id")
}

var (
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	isoDatePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoStampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// inferType classifies a sampled value. String values are pattern-matched in
// priority order: UUID, ISO date, ISO timestamp, email, numeric (integer vs
// decimal by fractional part), boolean, then string.
func inferType(value any) models.InferredType {
	switch v := value.(type) {
	case nil:
		return models.TypeString
	case bool:
		return models.TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return models.TypeInteger
	case float32:
		return floatType(float64(v))
	case float64:
		return floatType(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return models.TypeDate
		}
		return models.TypeTimestamp
	case uuid.UUID:
		return models.TypeUUID
	case [16]byte:
		return models.TypeUUID
	case string:
		return inferStringType(v)
	default:
		return models.TypeString
	}
}

func floatType(f float64) models.InferredType {
	if f == float64(int64(f)) {
		return models.TypeInteger
	}
	return models.TypeDecimal
}

func inferStringType(s string) models.InferredType {
	switch {
	case uuidPattern.MatchString(s):
		return models.TypeUUID
	case isoDatePattern.MatchString(s):
		return models.TypeDate
	case isoStampPattern.MatchString(s):
		return models.TypeTimestamp
	case emailPattern.MatchString(s):
		return models.TypeEmail
	}

	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return models.TypeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return models.TypeDecimal
	}
	if _, err := strconv.ParseBool(s); err == nil {
		return models.TypeBoolean
	}
	return models.TypeString
}
