package services

import (
	"context"
	"errors"
	"sync"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
)

var errRelationMissing = errors.New("relation does not exist")

// fakeQueryClient is a configurable in-memory QueryClient. Relations not
// present in the relations map behave like a missing backend object.
type fakeQueryClient struct {
	mu        sync.Mutex
	relations map[string]*datasource.ProbeResult
	rows      map[string][]datasource.Row

	probeErr error
	queryErr error

	probeCalls []string
	lastPred   datasource.Predicate
	lastLimit  int
}

func newFakeQueryClient() *fakeQueryClient {
	return &fakeQueryClient{
		relations: make(map[string]*datasource.ProbeResult),
		rows:      make(map[string][]datasource.Row),
	}
}

func (c *fakeQueryClient) addRelation(name string, rowCount int64, sample ...datasource.Row) {
	c.relations[name] = &datasource.ProbeResult{
		Exists:     true,
		RowCount:   rowCount,
		SampleRows: sample,
	}
}

func (c *fakeQueryClient) Probe(_ context.Context, relation string, sampleLimit int) (*datasource.ProbeResult, error) {
	c.mu.Lock()
	c.probeCalls = append(c.probeCalls, relation)
	c.mu.Unlock()

	if c.probeErr != nil {
		return nil, c.probeErr
	}
	result, ok := c.relations[relation]
	if !ok {
		return nil, errRelationMissing
	}

	out := &datasource.ProbeResult{Exists: result.Exists, RowCount: result.RowCount}
	if sampleLimit > 0 {
		n := sampleLimit
		if n > len(result.SampleRows) {
			n = len(result.SampleRows)
		}
		out.SampleRows = result.SampleRows[:n]
	}
	return out, nil
}

func (c *fakeQueryClient) RunQuery(_ context.Context, relation string, pred datasource.Predicate, limit int) ([]datasource.Row, error) {
	c.mu.Lock()
	c.lastPred = pred
	c.lastLimit = limit
	c.mu.Unlock()

	if c.queryErr != nil {
		return nil, c.queryErr
	}
	rows, ok := c.rows[relation]
	if !ok {
		return nil, errRelationMissing
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (c *fakeQueryClient) Close() error { return nil }

// staticStrategy returns a fixed candidate list.
type staticStrategy struct {
	name       string
	priority   int
	canRun     bool
	candidates []string
}

func (s *staticStrategy) Name() string                        { return s.name }
func (s *staticStrategy) Priority() int                       { return s.priority }
func (s *staticStrategy) CanRun() bool                        { return s.canRun }
func (s *staticStrategy) Discover(_ context.Context) []string { return s.candidates }
