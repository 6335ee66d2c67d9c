// Package sqlanalyze extracts structural patterns from hand-written BI SQL.
//
// This is deliberately regex-based pattern telemetry, not a SQL parser: the
// corpus is a known set of analyst-authored Postgres queries and the output
// feeds the rule generator, which only needs the dimensions below.
package sqlanalyze

// Analysis is the structured result of analyzing one SQL statement.
// Slice fields are always non-nil so the JSON serialization is stable.
type Analysis struct {
	Tables              []TableRef           `json:"tables"`
	Joins               []Join               `json:"joins"`
	CTEs                []CTE                `json:"ctes"`
	Aggregations        []Aggregation        `json:"aggregations"`
	DateFilters         []DateFilter         `json:"date_filters"`
	TimezoneConversions []TimezoneConversion `json:"timezone_conversions"`
	ProgressiveFilters  []string             `json:"progressive_filters"`
	Exclusions          []Exclusion          `json:"exclusions"`
	CaseBlocks          []CaseBlock          `json:"case_blocks"`
	StatusConditions    []string             `json:"status_conditions"`
	UnionStructure      bool                 `json:"union_structure"`
	WindowFunctions     []WindowFunction     `json:"window_functions"`
	JSONBOperations     []string             `json:"jsonb_operations"`
	DistinctCounts      []string             `json:"distinct_counts"`
	Parameters          []string             `json:"parameters"`
	Structure           string               `json:"structure"`
}

// Structural tags, in descending priority.
const (
	StructureCTEUnion    = "cte_union"
	StructureCTE         = "cte"
	StructureUnion       = "union"
	StructureMultiJoin   = "multi_join"
	StructureSingleTable = "single_table"
)

// TableRef is a table referenced in FROM or JOIN position.
type TableRef struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Role  string `json:"role"` // "from" or "join"
}

// Join is one JOIN clause with its ON conditions split on AND.
type Join struct {
	Type       string   `json:"type"` // "left", "right", "inner", "cross", "full", "join"
	Table      string   `json:"table"`
	Alias      string   `json:"alias,omitempty"`
	Conditions []string `json:"conditions"`
}

// CTE is one WITH-clause member: its name, balanced-paren body, and the
// tables the body references.
type CTE struct {
	Name   string   `json:"name"`
	Body   string   `json:"body"`
	Tables []string `json:"tables"`
}

// Aggregation is one aggregate call.
type Aggregation struct {
	Function   string `json:"function"`
	Expression string `json:"expression"`
	Distinct   bool   `json:"distinct"`
}

// Date filter pattern tags.
const (
	DatePatternMTDCurrent     = "mtd_current"
	DatePatternTrailingMonths = "trailing_months"
	DatePatternFixedStart     = "fixed_start"
	DatePatternPriorYearMTD   = "prior_year_mtd"
)

// DateFilter is one recognized date restriction.
type DateFilter struct {
	Column      string `json:"column,omitempty"`
	Pattern     string `json:"pattern"`
	Snippet     string `json:"snippet"`
	HasTimezone bool   `json:"has_timezone"`
	Months      int    `json:"months,omitempty"` // trailing_months only
}

// Timezone interval classes.
const (
	TimezoneClass330Minutes = "330_minutes"
	TimezoneClass5h30m      = "5h30m"
	TimezoneClassOther      = "other"
)

// TimezoneConversion is a `column + interval '…'` shift, classified by the
// interval literal.
type TimezoneConversion struct {
	Column   string `json:"column"`
	Interval string `json:"interval"`
	Class    string `json:"class"`
}

// Exclusion type tags.
const (
	ExclusionNotIn    = "not_in"
	ExclusionNotEqual = "not_equal"
	ExclusionNotLike  = "not_like"
)

// Exclusion is a negative filter on a column.
type Exclusion struct {
	Type   string   `json:"type"`
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// CaseWhen is one WHEN/THEN branch of a CASE block.
type CaseWhen struct {
	Condition string `json:"condition"`
	Result    string `json:"result"`
}

// CaseBlock is one CASE expression.
type CaseBlock struct {
	Expression string     `json:"expression,omitempty"` // simple-CASE operand
	Whens      []CaseWhen `json:"whens"`
	Else       string     `json:"else,omitempty"`
}

// WindowFunction is one OVER() window call.
type WindowFunction struct {
	Function    string `json:"function"`
	PartitionBy string `json:"partition_by,omitempty"`
	OrderBy     string `json:"order_by,omitempty"`
}
