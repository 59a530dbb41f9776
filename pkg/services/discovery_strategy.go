package services

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/config"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/logging"
)

// DiscoveryStrategy produces candidate relation names. Candidates are not
// trusted: the prober validates each one before it reaches a caller.
type DiscoveryStrategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// Priority orders strategy execution (descending). On name collisions
	// the higher-priority strategy's result wins.
	Priority() int

	// CanRun reports whether the strategy is enabled.
	CanRun() bool

	// Discover returns candidate relation names. Failures yield an empty
	// slice; a strategy never aborts a discovery run.
	Discover(ctx context.Context) []string
}

// curatedRelations are the views and tables of the payroll system known to
// be relevant for employee/payroll reporting.
var curatedRelations = []string{
	"employees",
	"departments",
	"positions",
	"personnel_categories",
	"payroll_periods",
	"payroll_runs",
	"payroll_entries",
	"employee_salary_configs",
	"salary_components",
	"v_employees_basic",
	"v_payroll_calculations",
	"v_payroll_summary",
	"v_comprehensive_employee_payroll",
	"v_employee_categories",
	"v_contribution_bases",
}

// CuratedListStrategy returns the fixed, domain-curated candidate set.
// Always enabled.
type CuratedListStrategy struct {
	relations []string
}

var _ DiscoveryStrategy = (*CuratedListStrategy)(nil)

// NewCuratedListStrategy builds the strategy. An empty override list keeps
// the built-in curated set.
func NewCuratedListStrategy(override []string) *CuratedListStrategy {
	relations := curatedRelations
	if len(override) > 0 {
		relations = override
	}
	return &CuratedListStrategy{relations: relations}
}

func (s *CuratedListStrategy) Name() string  { return "curated_list" }
func (s *CuratedListStrategy) Priority() int { return 2 }
func (s *CuratedListStrategy) CanRun() bool  { return true }

func (s *CuratedListStrategy) Discover(_ context.Context) []string {
	out := make([]string, len(s.relations))
	copy(out, s.relations)
	return out
}

// Relation names mentioned in backend "does not exist" hints, e.g.
// `relation "employees" does not exist` or `Perhaps you meant "payroll_entries"`.
var errorHintPattern = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_.]*)"`)

// systemPrefixes are schema prefixes never useful as report sources.
var systemPrefixes = []string{"_", "pg_", "information_schema", "auth."}

// blockedNames are backend artifacts that show up in error hints but are
// not queryable relations.
var blockedNames = map[string]bool{
	"rpc":        true,
	"schema":     true,
	"migrations": true,
}

// ErrorProbeStrategy issues a deliberately invalid probe and scrapes
// relation names out of the backend's error text. Opt-in: the failing
// probes are noisy, so it is disabled unless explicitly enabled.
type ErrorProbeStrategy struct {
	client  datasource.QueryClient
	enabled bool
	logger  *zap.Logger
}

var _ DiscoveryStrategy = (*ErrorProbeStrategy)(nil)

// NewErrorProbeStrategy builds the strategy. It only runs when
// cfg.EnableErrorProbe is set.
func NewErrorProbeStrategy(client datasource.QueryClient, cfg *config.DiscoveryConfig, logger *zap.Logger) *ErrorProbeStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	enabled := cfg != nil && cfg.EnableErrorProbe
	return &ErrorProbeStrategy{
		client:  client,
		enabled: enabled,
		logger:  logger.Named("error_probe"),
	}
}

func (s *ErrorProbeStrategy) Name() string  { return "error_probe" }
func (s *ErrorProbeStrategy) Priority() int { return 1 }
func (s *ErrorProbeStrategy) CanRun() bool  { return s.enabled }

func (s *ErrorProbeStrategy) Discover(ctx context.Context) []string {
	// The probe target is intentionally nonexistent; the interesting part
	// is the error message.
	const probeTarget = "zz_discovery_probe_nonexistent"
	_, err := s.client.Probe(ctx, probeTarget, 0)
	if err == nil {
		s.logger.Warn("error probe unexpectedly succeeded, no candidates extracted")
		return nil
	}

	names := extractRelationHints(err.Error())
	filtered := names[:0]
	for _, n := range names {
		if n != probeTarget {
			filtered = append(filtered, n)
		}
	}
	names = filtered
	s.logger.Debug("error probe extracted candidates",
		zap.Int("count", len(names)),
		zap.String("error", logging.SanitizeError(err)))
	return names
}

// extractRelationHints pulls plausible relation names out of backend error
// text, dropping system-schema prefixes and blocked names.
func extractRelationHints(errText string) []string {
	seen := make(map[string]bool)
	var names []string

	for _, match := range errorHintPattern.FindAllStringSubmatch(errText, -1) {
		name := match[1]
		if seen[name] || !usableHint(name) {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func usableHint(name string) bool {
	lower := strings.ToLower(name)
	if blockedNames[lower] {
		return false
	}
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}
