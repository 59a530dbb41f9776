package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/blobstore"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/config"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/repositories"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/services"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/services/jobqueue"
)

// stubQueryClient serves a fixed set of relations with canned rows.
type stubQueryClient struct {
	relations map[string]*datasource.ProbeResult
	rows      map[string][]datasource.Row
}

func newStubQueryClient() *stubQueryClient {
	return &stubQueryClient{
		relations: make(map[string]*datasource.ProbeResult),
		rows:      make(map[string][]datasource.Row),
	}
}

func (c *stubQueryClient) Probe(_ context.Context, relation string, sampleLimit int) (*datasource.ProbeResult, error) {
	result, ok := c.relations[relation]
	if !ok {
		return nil, errors.New("relation does not exist")
	}
	out := &datasource.ProbeResult{Exists: result.Exists, RowCount: result.RowCount}
	if sampleLimit > 0 && len(result.SampleRows) > 0 {
		n := sampleLimit
		if n > len(result.SampleRows) {
			n = len(result.SampleRows)
		}
		out.SampleRows = result.SampleRows[:n]
	}
	return out, nil
}

func (c *stubQueryClient) RunQuery(_ context.Context, relation string, _ datasource.Predicate, limit int) ([]datasource.Row, error) {
	rows, ok := c.rows[relation]
	if !ok {
		return nil, errors.New("relation does not exist")
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (c *stubQueryClient) Close() error { return nil }

// testStack wires the full handler surface over in-memory collaborators.
type testStack struct {
	mux       *http.ServeMux
	client    *stubQueryClient
	jobs      *repositories.MemoryJobRepository
	history   *repositories.MemoryHistoryRepository
	templates *repositories.MemoryTemplateRepository
	queue     *jobqueue.Queue
	reports   *services.ReportService
	template  *models.ReportTemplate
}

func newTestStack() *testStack {
	client := newStubQueryClient()
	client.relations["v_payroll_summary"] = &datasource.ProbeResult{
		Exists:   true,
		RowCount: 2,
		SampleRows: []datasource.Row{
			{"employee_name": "张明", "gross_pay": "12000.50", "pay_period": "2025-06"},
		},
	}
	client.rows["v_payroll_summary"] = []datasource.Row{
		{"employee_name": "张明", "gross_pay": 12000.5, "pay_period": "2025-06"},
		{"employee_name": "李华", "gross_pay": 9800.0, "pay_period": "2025-06"},
	}

	template := &models.ReportTemplate{
		ID:             uuid.New(),
		Name:           "Payroll Details",
		SourceRelation: "v_payroll_summary",
		IsActive:       true,
		FieldMappings: []models.FieldMapping{
			{FieldKey: "employee_name", DisplayName: "姓名", Visible: true, SortOrder: 1},
			{FieldKey: "gross_pay", DisplayName: "应发工资", Visible: true, SortOrder: 2},
		},
	}
	templates := repositories.NewMemoryTemplateRepository()
	templates.Put(template)

	discoveryCfg := &config.DiscoveryConfig{ProbeTimeoutSeconds: 2, ProbeRetries: 0, MaxConcurrentProbes: 2}
	scoringCfg := &config.ScoringConfig{}
	scoringCfg.ApplyDefaults()

	prober := services.NewSchemaProber(client, discoveryCfg, nil)
	discovery := services.NewDiscoveryService(
		prober,
		[]services.DiscoveryStrategy{services.NewCuratedListStrategy([]string{"v_payroll_summary", "ghost_table"})},
		scoringCfg, discoveryCfg, nil)

	filterEngine := services.NewFilterEngine(nil)
	queue := jobqueue.New(nil)
	jobs := repositories.NewMemoryJobRepository()
	history := repositories.NewMemoryHistoryRepository()

	reports := services.NewReportService(
		client, filterEngine,
		jobs, history, templates,
		blobstore.NewMemoryStore(), queue,
		&config.ReportConfig{FetchRowCap: 1000, SampleRowLimit: 1, MaxConcurrentJobs: 1},
		nil)

	mux := http.NewServeMux()
	NewSourcesHandler(discovery, prober, zap.NewNop()).RegisterRoutes(mux)
	NewReportsHandler(reports, filterEngine, zap.NewNop()).RegisterRoutes(mux)

	return &testStack{
		mux:       mux,
		client:    client,
		jobs:      jobs,
		history:   history,
		templates: templates,
		queue:     queue,
		reports:   reports,
		template:  template,
	}
}
