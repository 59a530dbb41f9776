package config

// FieldGroup is one weighted set of column-name keywords contributing to a
// relation's suitability score.
type FieldGroup struct {
	Label    string   `yaml:"label"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// DomainScoring holds the scoring heuristics for one report domain.
// The weights are business heuristics carried over from the legacy system,
// not derived from data; only the formula's shape is fixed.
type DomainScoring struct {
	// NameKeywords maps relation-name keywords to their weight.
	NameKeywords map[string]float64 `yaml:"name_keywords"`
	// FieldGroups score inferred columns by keyword group.
	FieldGroups []FieldGroup `yaml:"field_groups"`
}

// ScoringConfig configures the discovery scoring formula.
type ScoringConfig struct {
	// RowCountDivisor and RowCountCap shape the row-count term:
	// min(rowCount/divisor, cap).
	RowCountDivisor float64 `yaml:"row_count_divisor" env:"SCORING_ROW_COUNT_DIVISOR" env-default:"10"`
	RowCountCap     float64 `yaml:"row_count_cap" env:"SCORING_ROW_COUNT_CAP" env-default:"20"`

	Domains map[string]DomainScoring `yaml:"domains"`
}

// ApplyDefaults fills in the built-in payroll domain heuristics when the
// configuration does not define any domains.
func (c *ScoringConfig) ApplyDefaults() {
	if c.RowCountDivisor <= 0 {
		c.RowCountDivisor = 10
	}
	if c.RowCountCap <= 0 {
		c.RowCountCap = 20
	}
	if len(c.Domains) == 0 {
		c.Domains = DefaultDomains()
	}
}

// DomainFor returns the scoring heuristics for a domain, falling back to
// the payroll defaults for unknown domains.
func (c *ScoringConfig) DomainFor(domain string) DomainScoring {
	if d, ok := c.Domains[domain]; ok {
		return d
	}
	return DefaultDomains()["payroll"]
}

// DefaultDomains returns the built-in domain heuristics. The source system
// stores payroll views with Chinese display columns, so both English and
// Chinese column keywords participate.
func DefaultDomains() map[string]DomainScoring {
	return map[string]DomainScoring{
		"payroll": {
			NameKeywords: map[string]float64{
				"payroll":       10,
				"salary":        10,
				"wage":          8,
				"comprehensive": 6,
				"employee":      6,
				"contribution":  5,
				"staff":         4,
				"summary":       3,
				"report":        3,
			},
			FieldGroups: []FieldGroup{
				{
					Label:  "payroll_fields",
					Weight: 5,
					Keywords: []string{
						"gross_pay", "net_pay", "basic_salary", "salary",
						"wage", "deduction", "allowance", "bonus", "tax",
						"insurance", "fund", "pay", "工资", "薪资", "应发", "实发",
					},
				},
				{
					Label:  "employee_fields",
					Weight: 3,
					Keywords: []string{
						"employee", "staff", "name", "department", "position",
						"category", "id_number", "姓名", "员工", "部门", "人员",
					},
				},
				{
					Label:  "date_fields",
					Weight: 2,
					Keywords: []string{
						"date", "period", "month", "year", "time",
						"created_at", "期间", "日期",
					},
				},
			},
		},
	}
}
