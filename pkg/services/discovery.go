package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/config"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

// DefaultMaxConcurrentProbes bounds in-flight candidate analyses when the
// configuration does not say otherwise.
const DefaultMaxConcurrentProbes = 3

// DiscoveryService orchestrates discovery strategies and scores the
// discovered relations for a report domain. One bad candidate never aborts
// a run: discovery and scoring are partial-failure tolerant.
type DiscoveryService struct {
	prober        *SchemaProber
	strategies    []DiscoveryStrategy
	scoring       *config.ScoringConfig
	maxConcurrent int64
	logger        *zap.Logger
}

// NewDiscoveryService builds the service. Strategies run in descending
// priority order regardless of registration order.
func NewDiscoveryService(
	prober *SchemaProber,
	strategies []DiscoveryStrategy,
	scoring *config.ScoringConfig,
	discoveryCfg *config.DiscoveryConfig,
	logger *zap.Logger,
) *DiscoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxConcurrent := int64(DefaultMaxConcurrentProbes)
	if discoveryCfg != nil && discoveryCfg.MaxConcurrentProbes > 0 {
		maxConcurrent = int64(discoveryCfg.MaxConcurrentProbes)
	}

	ordered := make([]DiscoveryStrategy, len(strategies))
	copy(ordered, strategies)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})

	return &DiscoveryService{
		prober:        prober,
		strategies:    ordered,
		scoring:       scoring,
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("discovery"),
	}
}

// DiscoverAll runs every enabled strategy, merges candidates (higher
// priority wins collisions), validates each against the backend, and
// returns descriptors sorted by (has rows desc, row count desc, name asc).
func (s *DiscoveryService) DiscoverAll(ctx context.Context) ([]models.RelationDescriptor, error) {
	candidates := s.collectCandidates(ctx)

	sem := semaphore.NewWeighted(s.maxConcurrent)
	var mu sync.Mutex
	var wg sync.WaitGroup
	descriptors := make([]models.RelationDescriptor, 0, len(candidates))

	for _, name := range candidates {
		if err := ValidateRelationName(name); err != nil {
			s.logger.Debug("skipping invalid candidate name", zap.String("relation", name))
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("discovery cancelled: %w", err)
		}
		wg.Add(1)
		go func(relation string) {
			defer wg.Done()
			defer sem.Release(1)

			desc, ok := s.describeRelation(ctx, relation)
			if !ok {
				return
			}
			mu.Lock()
			descriptors = append(descriptors, desc)
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	sort.Slice(descriptors, func(i, j int) bool {
		a, b := descriptors[i], descriptors[j]
		if a.HasRows() != b.HasRows() {
			return a.HasRows()
		}
		if a.RowCount != b.RowCount {
			return a.RowCount > b.RowCount
		}
		return a.Name < b.Name
	})

	s.logger.Info("discovery run finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("validated", len(descriptors)))

	return descriptors, nil
}

// collectCandidates merges strategy outputs. Strategies are pre-sorted by
// descending priority, so the first strategy to claim a name wins.
func (s *DiscoveryService) collectCandidates(ctx context.Context) []string {
	seen := make(map[string]bool)
	var merged []string

	for _, strategy := range s.strategies {
		if !strategy.CanRun() {
			continue
		}
		names := strategy.Discover(ctx)
		s.logger.Debug("strategy produced candidates",
			zap.String("strategy", strategy.Name()),
			zap.Int("count", len(names)))

		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			merged = append(merged, name)
		}
	}
	return merged
}

// describeRelation validates one candidate against the backend.
// A missing relation or failed probe drops the candidate silently.
func (s *DiscoveryService) describeRelation(ctx context.Context, relation string) (models.RelationDescriptor, bool) {
	exists, err := s.prober.Exists(ctx, relation)
	if err != nil || !exists {
		return models.RelationDescriptor{}, false
	}

	rowCount, err := s.prober.RowCount(ctx, relation)
	if err != nil {
		return models.RelationDescriptor{}, false
	}

	schemaName, bareName := splitRelationName(relation)
	return models.RelationDescriptor{
		Name:         relation,
		Kind:         relationKind(bareName),
		SchemaName:   schemaName,
		RowCount:     rowCount,
		LastProbedAt: time.Now(),
	}, true
}

func splitRelationName(relation string) (schema, name string) {
	if idx := strings.LastIndex(relation, "."); idx >= 0 {
		return relation[:idx], relation[idx+1:]
	}
	return "", relation
}

// relationKind guesses table vs view from the naming convention the source
// system uses for its reporting views.
func relationKind(name string) models.RelationKind {
	if strings.HasPrefix(name, "v_") {
		return models.RelationKindView
	}
	return models.RelationKindTable
}

// RecommendFor scores every discovered relation against a report domain
// and returns the ranked result. Scoring is deterministic for a fixed
// discovered set and fixed weights. Column-based terms tolerate
// per-candidate inference failures: those terms contribute zero.
func (s *DiscoveryService) RecommendFor(ctx context.Context, domain string) (*models.Recommendation, error) {
	descriptors, err := s.DiscoverAll(ctx)
	if err != nil {
		return nil, err
	}

	heuristics := s.scoring.DomainFor(domain)

	sem := semaphore.NewWeighted(s.maxConcurrent)
	var wg sync.WaitGroup
	analyses := make([]models.RelationAnalysis, len(descriptors))

	for i, desc := range descriptors {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("scoring cancelled: %w", err)
		}
		wg.Add(1)
		go func(idx int, d models.RelationDescriptor) {
			defer wg.Done()
			defer sem.Release(1)
			analyses[idx] = s.analyzeRelation(ctx, d, heuristics)
		}(i, desc)
	}
	wg.Wait()

	sort.SliceStable(analyses, func(i, j int) bool {
		a, b := analyses[i], analyses[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Relation.RowCount != b.Relation.RowCount {
			return a.Relation.RowCount > b.Relation.RowCount
		}
		return a.Relation.Name < b.Relation.Name
	})

	rec := &models.Recommendation{
		Alternatives: []models.RelationAnalysis{},
		Analysis:     analyses,
	}
	if len(analyses) > 0 {
		rec.Recommended = &analyses[0]
		rec.Alternatives = analyses[1:]
	}
	return rec, nil
}

// analyzeRelation computes one candidate's score:
// name-keyword term + capped row-count term + column-keyword terms.
func (s *DiscoveryService) analyzeRelation(ctx context.Context, desc models.RelationDescriptor, heuristics config.DomainScoring) models.RelationAnalysis {
	analysis := models.RelationAnalysis{Relation: desc}

	for keyword, weight := range heuristics.NameKeywords {
		if nameMatchesKeyword(desc.Name, keyword) {
			analysis.Score += weight
			analysis.Reasons = append(analysis.Reasons, fmt.Sprintf("name matches %q (+%g)", keyword, weight))
		}
	}

	rowTerm := float64(desc.RowCount) / s.scoring.RowCountDivisor
	if rowTerm > s.scoring.RowCountCap {
		rowTerm = s.scoring.RowCountCap
	}
	if rowTerm > 0 {
		analysis.Score += rowTerm
		analysis.Reasons = append(analysis.Reasons, fmt.Sprintf("row count %d (+%.1f)", desc.RowCount, rowTerm))
	}

	// Column terms need a successful inference; a failure contributes zero
	// without failing the overall scoring.
	columns, err := s.prober.InferColumns(ctx, desc.Name)
	if err != nil || len(columns) == 0 {
		sortReasons(analysis.Reasons)
		return analysis
	}

	for _, group := range heuristics.FieldGroups {
		matches := countFieldMatches(columns, group.Keywords)
		if matches == 0 {
			continue
		}
		term := float64(matches) * group.Weight
		analysis.Score += term
		analysis.Reasons = append(analysis.Reasons, fmt.Sprintf("%d %s (+%g)", matches, group.Label, term))
	}

	sortReasons(analysis.Reasons)
	return analysis
}

// sortReasons keeps reason text deterministic across runs; map iteration
// order would otherwise shuffle it.
func sortReasons(reasons []string) {
	sort.Strings(reasons)
}

// nameMatchesKeyword matches a keyword against the relation name and its
// singularized underscore tokens, so "employees" matches "employee".
func nameMatchesKeyword(relation, keyword string) bool {
	lower := strings.ToLower(relation)
	if strings.Contains(lower, keyword) {
		return true
	}
	for _, token := range strings.FieldsFunc(lower, func(r rune) bool { return r == '_' || r == '.' }) {
		if inflection.Singular(token) == keyword {
			return true
		}
	}
	return false
}

// countFieldMatches counts columns matching any keyword of a group.
// Each column counts at most once per group.
func countFieldMatches(columns []models.ColumnDescriptor, keywords []string) int {
	count := 0
	for _, col := range columns {
		lower := strings.ToLower(col.Name)
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				count++
				break
			}
		}
	}
	return count
}
