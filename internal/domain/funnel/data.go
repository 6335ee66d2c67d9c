// Package funnel holds the sales-funnel intelligence: the business rules,
// date-filter templates, funnel stages, and the nine named query patterns
// that encode lead/prospect/account/sale analytics, plus the intent
// classifier that maps a natural-language question onto them.
package funnel

import (
	"fmt"
	"strings"
)

// DateFilterDef is a reusable date restriction template.
type DateFilterDef struct {
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// Stage is one funnel stage definition.
type Stage struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Criteria    string `json:"criteria"`
}

// Metric is one reported funnel metric.
type Metric struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Formula     string `json:"formula"`
}

// SourceMapping groups raw lead sources into reporting buckets. The CASE
// expression is quoted literally in generated SQL.
type SourceMapping struct {
	CaseExpression string              `json:"case_expression"`
	Groups         map[string][]string `json:"groups"`
}

// Intelligence is the serialized, language-neutral context document handed
// to the LLM so it writes funnel queries that match the business rules.
type Intelligence struct {
	CoreRules           []string                 `json:"core_rules"`
	DateFilters         map[string]DateFilterDef `json:"date_filters"`
	Stages              []Stage                  `json:"stages"`
	Metrics             []Metric                 `json:"metrics"`
	SourceMapping       SourceMapping            `json:"source_mapping"`
	StatusLogic         map[string]string        `json:"status_logic"`
	AntiPatterns        []string                 `json:"anti_patterns"`
	ValidationChecklist []string                 `json:"validation_checklist"`
	Tables              []string                 `json:"tables"`
}

// Lookup dereferences a dotted path like "status_logic.active_definition"
// into the intelligence document. Used by query patterns whose special
// logic references a shared definition instead of repeating it.
func (in *Intelligence) Lookup(path string) (string, bool) {
	section, key, found := strings.Cut(path, ".")
	if !found {
		return "", false
	}
	switch section {
	case "status_logic":
		v, ok := in.StatusLogic[key]
		return v, ok
	case "date_filters":
		v, ok := in.DateFilters[key]
		if !ok {
			return "", false
		}
		return v.SQL, true
	case "source_mapping":
		if key == "case_expression" {
			return in.SourceMapping.CaseExpression, true
		}
		return "", false
	default:
		return "", false
	}
}

// Pattern is one named query template.
type Pattern struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Categories  []string `json:"categories"`
	SQL         string   `json:"sql"`
	// DateFilter names an entry in Intelligence.DateFilters.
	DateFilter string `json:"date_filter,omitempty"`
	// SpecialLogic is a dotted path resolved via Intelligence.Lookup.
	SpecialLogic string   `json:"special_logic,omitempty"`
	Validation   []string `json:"validation"`
	// Required marks patterns always included when their category matches.
	Required bool `json:"required,omitempty"`
}

// DefaultPattern is the classifier fallback when nothing matches.
const DefaultPattern = "leads_mtd"

// SalesIntelligence is the funnel context document.
var SalesIntelligence = Intelligence{
	CoreRules: []string{
		"Always shift timestamps to IST (+330 minutes) before any date bucketing",
		"Exclude test and internal leads (source NOT IN ('test', 'internal')) from every metric",
		"A lead becomes a prospect only after qualification_date is set",
		"Count entities with count(DISTINCT id); joins against events duplicate rows",
		"Month-to-date comparisons against prior periods must use the progressive day filter",
		"Revenue is recognized on booking confirmation, not on payment settlement",
	},
	DateFilters: map[string]DateFilterDef{
		"mtd_current": {
			Description: "Month to date in IST",
			SQL:         "created_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE)",
		},
		"trailing_6_months": {
			Description: "Last six complete months plus the current month",
			SQL:         "created_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE) - interval '6 months'",
		},
		"fiscal_year": {
			Description: "Current fiscal year starting April 1",
			SQL:         "created_at + interval '330 minutes' >= '2025-04-01'",
		},
		"prior_year_mtd": {
			Description: "Same month-to-date window one year earlier",
			SQL:         "created_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE - interval '1 year') AND extract(day from created_at + interval '330 minutes') <= extract(day from CURRENT_DATE)",
		},
	},
	Stages: []Stage{
		{Name: "lead", Description: "Raw inbound enquiry", Criteria: "leads row exists, deleted_at IS NULL"},
		{Name: "prospect", Description: "Qualified lead with budget and dates", Criteria: "qualification_date IS NOT NULL"},
		{Name: "opportunity", Description: "Proposal shared with the guest", Criteria: "proposal_sent_at IS NOT NULL"},
		{Name: "sale", Description: "Confirmed booking", Criteria: "booking_status IN ('confirmed', 'paid')"},
	},
	Metrics: []Metric{
		{Name: "lead_count", Description: "Distinct leads in period", Formula: "count(DISTINCT leads.id)"},
		{Name: "prospect_count", Description: "Distinct qualified leads in period", Formula: "count(DISTINCT leads.id) FILTER (WHERE qualification_date IS NOT NULL)"},
		{Name: "sale_count", Description: "Distinct confirmed bookings in period", Formula: "count(DISTINCT bookings.id)"},
		{Name: "conversion_rate", Description: "Sales per lead", Formula: "sale_count::numeric / NULLIF(lead_count, 0)"},
		{Name: "gross_booking_value", Description: "Total confirmed booking amount", Formula: "sum(bookings.total_amount)"},
	},
	SourceMapping: SourceMapping{
		CaseExpression: "CASE WHEN source IN ('website', 'app') THEN 'Direct' WHEN source IN ('google', 'meta') THEN 'Performance' WHEN source IN ('partner', 'travel_agent') THEN 'Partner' ELSE 'Other' END",
		Groups: map[string][]string{
			"Direct":      {"website", "app"},
			"Performance": {"google", "meta"},
			"Partner":     {"partner", "travel_agent"},
		},
	},
	StatusLogic: map[string]string{
		"active_definition":    "status NOT IN ('lost', 'junk', 'duplicate') AND deleted_at IS NULL",
		"won_definition":       "booking_status IN ('confirmed', 'paid')",
		"lost_definition":      "status = 'lost' AND lost_reason IS NOT NULL",
		"open_definition":      "status IN ('new', 'contacted', 'qualified') AND deleted_at IS NULL",
		"aging_bucket":         "CASE WHEN now() - created_at < interval '7 days' THEN '0-7d' WHEN now() - created_at < interval '30 days' THEN '7-30d' ELSE '30d+' END",
		"progressive_day_rule": "extract(day from created_at + interval '330 minutes') <= extract(day from CURRENT_DATE)",
	},
	AntiPatterns: []string{
		"Bucketing by created_at without the IST shift undercounts late-evening leads",
		"Joining leads to events without DISTINCT inflates every count",
		"Comparing a partial month to a full prior month without the progressive day filter",
		"Treating payment settlement date as the sale date",
		"Counting soft-deleted rows (deleted_at IS NOT NULL)",
	},
	ValidationChecklist: []string{
		"Timestamps shifted to IST before date_trunc",
		"Test and internal sources excluded",
		"Distinct counts on entity ids",
		"Soft-deleted rows excluded",
		"Progressive day filter applied to period-over-period comparisons",
	},
	Tables: []string{"leads", "prospects", "accounts", "bookings", "staffs"},
}

// Patterns is the ordered catalog of the nine named query patterns.
var Patterns = []Pattern{
	{
		Name:        "leads_mtd",
		Description: "Month-to-date lead count, IST-shifted, test sources excluded",
		Keywords:    []string{"leads", "mtd", "month", "count"},
		Categories:  []string{"leads"},
		DateFilter:  "mtd_current",
		Required:    true,
		SQL: `SELECT count(DISTINCT l.id) AS lead_count
FROM leads l
WHERE l.created_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE)
  AND l.source NOT IN ('test', 'internal')
  AND l.deleted_at IS NULL`,
		Validation: []string{"IST shift present", "test sources excluded", "distinct count"},
	},
	{
		Name:        "leads_monthly_trend",
		Description: "Lead volume by month for the trailing six months",
		Keywords:    []string{"leads", "trend", "monthly", "month over month"},
		Categories:  []string{"leads", "trend"},
		DateFilter:  "trailing_6_months",
		SQL: `SELECT date_trunc('month', l.created_at + interval '330 minutes') AS month,
       count(DISTINCT l.id) AS lead_count
FROM leads l
WHERE l.created_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE) - interval '6 months'
  AND l.source NOT IN ('test', 'internal')
  AND l.deleted_at IS NULL
GROUP BY 1
ORDER BY 1`,
		Validation: []string{"IST shift present", "grouped by truncated month"},
	},
	{
		Name:         "prospects_mtd",
		Description:  "Month-to-date qualified prospects",
		Keywords:     []string{"prospects", "qualified", "mtd"},
		Categories:   []string{"prospects"},
		DateFilter:   "mtd_current",
		SpecialLogic: "status_logic.active_definition",
		Required:     true,
		SQL: `SELECT count(DISTINCT l.id) AS prospect_count
FROM leads l
WHERE l.qualification_date + interval '330 minutes' >= date_trunc('month', CURRENT_DATE)
  AND l.source NOT IN ('test', 'internal')
  AND l.status NOT IN ('lost', 'junk', 'duplicate')
  AND l.deleted_at IS NULL`,
		Validation: []string{"qualification date drives the window", "active definition applied"},
	},
	{
		Name:         "sales_mtd",
		Description:  "Month-to-date confirmed bookings and gross booking value",
		Keywords:     []string{"sales", "bookings", "revenue", "mtd", "gbv"},
		Categories:   []string{"sales"},
		DateFilter:   "mtd_current",
		SpecialLogic: "status_logic.won_definition",
		Required:     true,
		SQL: `SELECT count(DISTINCT b.id) AS sale_count,
       sum(b.total_amount) AS gross_booking_value
FROM bookings b
JOIN leads l ON b.lead_id = l.id
WHERE b.confirmed_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE)
  AND b.booking_status IN ('confirmed', 'paid')
  AND l.source NOT IN ('test', 'internal')`,
		Validation: []string{"confirmation date drives the window", "won definition applied"},
	},
	{
		Name:         "sales_yoy_mtd",
		Description:  "Month-to-date sales versus the same window last year",
		Keywords:     []string{"sales", "yoy", "year over year", "last year", "compare"},
		Categories:   []string{"sales", "comparison"},
		DateFilter:   "prior_year_mtd",
		SpecialLogic: "status_logic.progressive_day_rule",
		SQL: `SELECT 'current' AS period, count(DISTINCT b.id) AS sale_count
FROM bookings b
WHERE b.confirmed_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE)
  AND b.booking_status IN ('confirmed', 'paid')
UNION ALL
SELECT 'prior_year' AS period, count(DISTINCT b.id) AS sale_count
FROM bookings b
WHERE b.confirmed_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE - interval '1 year')
  AND extract(day from b.confirmed_at + interval '330 minutes') <= extract(day from CURRENT_DATE)
  AND b.booking_status IN ('confirmed', 'paid')`,
		Validation: []string{"progressive day filter on the prior-year arm", "won definition applied"},
	},
	{
		Name:        "funnel_conversion",
		Description: "Stage-by-stage funnel counts and conversion rates",
		Keywords:    []string{"funnel", "conversion", "rate", "stages", "drop off"},
		Categories:  []string{"funnel", "comparison"},
		DateFilter:  "mtd_current",
		SQL: `WITH base AS (
  SELECT l.id,
         l.qualification_date IS NOT NULL AS qualified,
         b.id IS NOT NULL AS sold
  FROM leads l
  LEFT JOIN bookings b ON b.lead_id = l.id AND b.booking_status IN ('confirmed', 'paid')
  WHERE l.created_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE)
    AND l.source NOT IN ('test', 'internal')
    AND l.deleted_at IS NULL
)
SELECT count(*) AS leads,
       count(*) FILTER (WHERE qualified) AS prospects,
       count(*) FILTER (WHERE sold) AS sales
FROM base`,
		Validation: []string{"single base CTE", "stage criteria match the stage definitions"},
	},
	{
		Name:         "source_breakdown",
		Description:  "Leads grouped into reporting source buckets",
		Keywords:     []string{"source", "channel", "breakdown", "by source"},
		Categories:   []string{"leads", "breakdown"},
		DateFilter:   "mtd_current",
		SpecialLogic: "source_mapping.case_expression",
		SQL: `SELECT CASE WHEN source IN ('website', 'app') THEN 'Direct' WHEN source IN ('google', 'meta') THEN 'Performance' WHEN source IN ('partner', 'travel_agent') THEN 'Partner' ELSE 'Other' END AS source_group,
       count(DISTINCT l.id) AS lead_count
FROM leads l
WHERE l.created_at + interval '330 minutes' >= date_trunc('month', CURRENT_DATE)
  AND l.source NOT IN ('test', 'internal')
  AND l.deleted_at IS NULL
GROUP BY 1
ORDER BY 2 DESC`,
		Validation: []string{"source CASE mapping matches the canonical expression"},
	},
	{
		Name:         "lead_aging",
		Description:  "Open leads bucketed by age",
		Keywords:     []string{"aging", "open", "stale", "age", "pending"},
		Categories:   []string{"leads", "breakdown"},
		SpecialLogic: "status_logic.aging_bucket",
		SQL: `SELECT CASE WHEN now() - l.created_at < interval '7 days' THEN '0-7d' WHEN now() - l.created_at < interval '30 days' THEN '7-30d' ELSE '30d+' END AS age_bucket,
       count(DISTINCT l.id) AS lead_count
FROM leads l
WHERE l.status IN ('new', 'contacted', 'qualified')
  AND l.deleted_at IS NULL
GROUP BY 1`,
		Validation: []string{"open definition applied", "buckets match the aging rule"},
	},
	{
		Name:        "booking_status_distribution",
		Description: "Bookings by status for the fiscal year",
		Keywords:    []string{"status", "distribution", "bookings", "pipeline"},
		Categories:  []string{"sales", "breakdown"},
		DateFilter:  "fiscal_year",
		SQL: `SELECT b.booking_status,
       count(DISTINCT b.id) AS booking_count
FROM bookings b
WHERE b.created_at + interval '330 minutes' >= '2025-04-01'
GROUP BY 1
ORDER BY 2 DESC`,
		Validation: []string{"fiscal year window", "grouped by status"},
	},
}

// PatternByName returns a pattern from the catalog.
func PatternByName(name string) (*Pattern, error) {
	for i := range Patterns {
		if Patterns[i].Name == name {
			return &Patterns[i], nil
		}
	}
	return nil, fmt.Errorf("unknown query pattern %q", name)
}
