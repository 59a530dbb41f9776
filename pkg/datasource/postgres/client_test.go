package postgres

import (
	"strings"
	"testing"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

func TestQualifiedRelation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"employees", `"employees"`},
		{"hr.payroll_entries", `"hr"."payroll_entries"`},
		{`odd"name`, `"odd""name"`},
	}
	for _, tt := range tests {
		if got := qualifiedRelation(tt.in); got != tt.want {
			t.Errorf("qualifiedRelation(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestCompilePredicateComparisons(t *testing.T) {
	pred := datasource.Predicate{}.
		And("department", models.OpEq, "HR").
		And("gross_pay", models.OpGte, 5000)

	where, args, err := compilePredicate(pred)
	if err != nil {
		t.Fatalf("compilePredicate failed: %v", err)
	}
	want := `"department" = $1 AND "gross_pay" >= $2`
	if where != want {
		t.Errorf("expected %q, got %q", want, where)
	}
	if len(args) != 2 || args[0] != "HR" || args[1] != 5000 {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestCompilePredicateLikeEscapesWildcards(t *testing.T) {
	pred := datasource.Predicate{}.And("employee_name", models.OpLike, "100%_张")

	where, args, err := compilePredicate(pred)
	if err != nil {
		t.Fatalf("compilePredicate failed: %v", err)
	}
	if where != `"employee_name" ILIKE $1` {
		t.Errorf("unexpected clause: %q", where)
	}
	if args[0] != `%100\%\_张%` {
		t.Errorf("expected escaped substring pattern, got %q", args[0])
	}
}

func TestCompilePredicateSetAndRange(t *testing.T) {
	pred := datasource.Predicate{}.
		And("category", models.OpIn, "civil_servant", "contract").
		And("pay_date", models.OpBetween, "2025-01-01", "2025-06-30").
		And("resigned_at", models.OpIsNull)

	where, args, err := compilePredicate(pred)
	if err != nil {
		t.Fatalf("compilePredicate failed: %v", err)
	}
	want := `"category" IN ($1, $2) AND "pay_date" BETWEEN $3 AND $4 AND "resigned_at" IS NULL`
	if where != want {
		t.Errorf("expected %q, got %q", want, where)
	}
	if len(args) != 4 {
		t.Errorf("expected 4 args, got %d", len(args))
	}
}

func TestCompilePredicateEmpty(t *testing.T) {
	where, args, err := compilePredicate(datasource.Predicate{})
	if err != nil {
		t.Fatalf("compilePredicate failed: %v", err)
	}
	if where != "" || len(args) != 0 {
		t.Errorf("expected empty compilation, got %q / %v", where, args)
	}
}

func TestCompilePredicateValuesNeverInSQL(t *testing.T) {
	hostile := "x'; DROP TABLE payroll_entries; --"
	pred := datasource.Predicate{}.And("employee_name", models.OpEq, hostile)

	where, args, err := compilePredicate(pred)
	if err != nil {
		t.Fatalf("compilePredicate failed: %v", err)
	}
	if strings.Contains(where, "DROP TABLE") {
		t.Error("operand value leaked into SQL text")
	}
	if args[0] != hostile {
		t.Error("operand value must travel as a bound parameter")
	}
}

func TestCompilePredicateOperandArity(t *testing.T) {
	bad := []datasource.Predicate{
		datasource.Predicate{}.And("a", models.OpEq),
		datasource.Predicate{}.And("a", models.OpBetween, 1),
		datasource.Predicate{}.And("a", models.OpIn),
		datasource.Predicate{}.And("a", "regex", 1),
	}
	for i, pred := range bad {
		if _, _, err := compilePredicate(pred); err == nil {
			t.Errorf("case %d: expected arity error", i)
		}
	}
}

func TestBuildConnectionStringEscapesPassword(t *testing.T) {
	cfg := &Config{
		Host: "db.internal", Port: 5432,
		User: "reporter", Password: "p@ss/w:rd",
		Database: "salary_system",
	}
	conn := buildConnectionString(cfg)
	if strings.Contains(conn, "p@ss/w:rd") {
		t.Error("password must be URL-escaped")
	}
	if !strings.HasPrefix(conn, "postgres://") {
		t.Errorf("unexpected scheme: %s", conn)
	}
	if !strings.Contains(conn, "sslmode=prefer") {
		t.Errorf("expected default sslmode, got %s", conn)
	}
}
