package handlers

import (
	"net/http"
	"testing"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

func TestDiscoverSourcesDropsUnreachableRelations(t *testing.T) {
	stack := newTestStack()

	rec := stack.do(t, http.MethodGet, "/api/report-sources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Sources []models.RelationDescriptor `json:"sources"`
		Count   int                         `json:"count"`
	}
	decodeBody(t, rec, &body)
	// ghost_table is a curated candidate the backend does not serve.
	if body.Count != 1 || len(body.Sources) != 1 {
		t.Fatalf("expected exactly one reachable source, got count=%d len=%d", body.Count, len(body.Sources))
	}
	if body.Sources[0].Name != "v_payroll_summary" {
		t.Errorf("source name = %q, want v_payroll_summary", body.Sources[0].Name)
	}
	if body.Sources[0].RowCount != 2 {
		t.Errorf("row count = %d, want 2", body.Sources[0].RowCount)
	}
}

func TestRecommendReturnsScoredAnalysis(t *testing.T) {
	stack := newTestStack()

	rec := stack.do(t, http.MethodGet, "/api/report-sources/recommend?domain=payroll", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body models.Recommendation
	decodeBody(t, rec, &body)
	if body.Recommended == nil {
		t.Fatal("expected a recommendation")
	}
	if body.Recommended.Relation.Name != "v_payroll_summary" {
		t.Errorf("recommended = %q, want v_payroll_summary", body.Recommended.Relation.Name)
	}
	if body.Recommended.Score <= 0 {
		t.Errorf("score = %f, want > 0", body.Recommended.Score)
	}
	if len(body.Recommended.Reasons) == 0 {
		t.Error("expected scoring reasons")
	}
}

func TestGetColumnsInfersFromSample(t *testing.T) {
	stack := newTestStack()

	rec := stack.do(t, http.MethodGet, "/api/report-sources/v_payroll_summary/columns", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Relation string                    `json:"relation"`
		Columns  []models.ColumnDescriptor `json:"columns"`
	}
	decodeBody(t, rec, &body)
	if body.Relation != "v_payroll_summary" {
		t.Errorf("relation = %q", body.Relation)
	}
	if len(body.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(body.Columns))
	}
	names := make(map[string]bool, len(body.Columns))
	for _, col := range body.Columns {
		names[col.Name] = true
	}
	for _, want := range []string{"employee_name", "gross_pay", "pay_period"} {
		if !names[want] {
			t.Errorf("missing column %q", want)
		}
	}
}

func TestGetColumnsRejectsHostileRelationName(t *testing.T) {
	stack := newTestStack()

	rec := stack.do(t, http.MethodGet, "/api/report-sources/payroll;drop/columns", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "invalid_relation_name" {
		t.Errorf("error code = %q, want invalid_relation_name", body["error"])
	}
}

func TestGetColumnsUnknownRelationReturnsEmpty(t *testing.T) {
	stack := newTestStack()

	rec := stack.do(t, http.MethodGet, "/api/report-sources/no_such_table/columns", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Columns []models.ColumnDescriptor `json:"columns"`
	}
	decodeBody(t, rec, &body)
	if len(body.Columns) != 0 {
		t.Errorf("expected no columns, got %d", len(body.Columns))
	}
}
