package mssql

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"employees", "[employees]"},
		{"odd]name", "[odd]]name]"},
	}
	for _, tt := range tests {
		if got := quoteIdentifier(tt.in); got != tt.want {
			t.Errorf("quoteIdentifier(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestQualifiedRelation(t *testing.T) {
	if got := qualifiedRelation("hr.payroll_entries"); got != "[hr].[payroll_entries]" {
		t.Errorf("expected per-segment brackets, got %s", got)
	}
}

func TestCompilePredicateNamedParameters(t *testing.T) {
	pred := datasource.Predicate{}.
		And("department", models.OpEq, "HR").
		And("gross_pay", models.OpBetween, 1000, 9000)

	where, args, err := compilePredicate(pred)
	if err != nil {
		t.Fatalf("compilePredicate failed: %v", err)
	}
	want := "[department] = @p1 AND [gross_pay] BETWEEN @p2 AND @p3"
	if where != want {
		t.Errorf("expected %q, got %q", want, where)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 named args, got %d", len(args))
	}
	named, ok := args[0].(sql.NamedArg)
	if !ok || named.Name != "p1" || named.Value != "HR" {
		t.Errorf("expected named arg p1=HR, got %+v", args[0])
	}
}

func TestCompilePredicateLikeLowercasesBothSides(t *testing.T) {
	pred := datasource.Predicate{}.And("employee_name", models.OpLike, "zhang_50%")

	where, args, err := compilePredicate(pred)
	if err != nil {
		t.Fatalf("compilePredicate failed: %v", err)
	}
	if !strings.Contains(where, "LOWER([employee_name]) LIKE LOWER(@p1)") {
		t.Errorf("unexpected clause: %q", where)
	}
	named := args[0].(sql.NamedArg)
	if named.Value != `%zhang\_50\%%` {
		t.Errorf("expected escaped pattern, got %q", named.Value)
	}
}

func TestBuildConnectionString(t *testing.T) {
	cfg := &Config{
		Host: "mssql.internal", Port: 1433,
		User: "reporter", Password: "p@ss;w0rd",
		Database: "salary_system",
	}
	conn := buildConnectionString(cfg)
	if !strings.HasPrefix(conn, "sqlserver://") {
		t.Errorf("unexpected scheme: %s", conn)
	}
	if strings.Contains(conn, "p@ss;w0rd") {
		t.Error("password must be URL-escaped")
	}
	if !strings.Contains(conn, "database=salary_system") {
		t.Errorf("expected database parameter, got %s", conn)
	}
}
