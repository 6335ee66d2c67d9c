package sqlanalyze

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// sqlKeywords filters false-positive identifiers out of table extraction.
var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "order": true,
	"limit": true, "offset": true, "union": true, "having": true, "on": true,
	"as": true, "and": true, "or": true, "not": true, "in": true, "is": true,
	"null": true, "case": true, "when": true, "then": true, "else": true,
	"end": true, "join": true, "inner": true, "left": true, "right": true,
	"cross": true, "full": true, "outer": true, "lateral": true, "using": true,
	"by": true, "asc": true, "desc": true, "distinct": true, "all": true,
	"interval": true, "between": true, "like": true, "ilike": true,
	"exists": true, "values": true, "set": true, "with": true,
}

// extractFields are the extract()/date_part() field names; a FROM inside
// `extract(day from col)` must not read as a table reference.
var extractFields = map[string]bool{
	"day": true, "month": true, "year": true, "week": true, "quarter": true,
	"hour": true, "minute": true, "second": true, "dow": true, "doy": true,
	"epoch": true,
}

var (
	fromRe     = regexp.MustCompile(`(?i)\b(\w+\s+)?FROM\s+([a-zA-Z_][\w.]*)(\s+(?:AS\s+)?([a-zA-Z_]\w*))?`)
	joinHeadRe = regexp.MustCompile(`(?i)\b((?:LEFT|RIGHT|INNER|CROSS|FULL)\s+(?:OUTER\s+)?)?JOIN\s+([a-zA-Z_][\w.]*)`)
	aliasRe    = regexp.MustCompile(`(?i)^\s+(?:AS\s+)?([a-zA-Z_]\w*)`)
	onRe       = regexp.MustCompile(`(?i)^\s*ON\b`)
	joinTermRe = regexp.MustCompile(`(?i)\b(?:LEFT|RIGHT|INNER|CROSS|FULL|JOIN|WHERE|GROUP|ORDER|LIMIT|UNION|HAVING)\b|\)`)
	andSplitRe = regexp.MustCompile(`(?i)\s+AND\s+`)

	withRe    = regexp.MustCompile(`(?i)\bWITH\b`)
	cteHeadRe = regexp.MustCompile(`(?i)([a-zA-Z_]\w*)\s+AS\s*\(`)

	aggRe = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX|STRING_AGG|ARRAY_AGG)\s*\(`)

	monthTruncRe = regexp.MustCompile(`(?i)([\w.]+)((?:\s*\+\s*interval\s*'[^']*')?)\s*>=\s*date_trunc\(\s*'month'\s*,\s*CURRENT_DATE\s*\)(\s*-\s*interval\s*'(\d+)\s+months?')?`)
	fixedStartRe = regexp.MustCompile(`(?i)([\w.]+)((?:\s*\+\s*interval\s*'[^']*')?)\s*>=\s*'(\d{4}-\d{2}-\d{2})'`)
	priorYearRe  = regexp.MustCompile(`(?i)CURRENT_DATE\s*-\s*interval\s*'1\s+year'`)

	tzShiftRe = regexp.MustCompile(`(?i)([\w.]+)\s*\+\s*interval\s*'([^']+)'`)

	dayPartExpr   = `(?:extract\s*\(\s*day\s+from\s+[^)]+\)|date_part\(\s*'day'\s*,\s*[^)]+\))`
	progressiveRe = regexp.MustCompile(`(?i)` + dayPartExpr + `\s*<=\s*` + dayPartExpr)

	notInRe   = regexp.MustCompile(`(?i)([\w.]+)\s+NOT\s+IN\s*\(([^)]*)\)`)
	notEqRe   = regexp.MustCompile(`(?i)([\w.]+)\s*(?:!=|<>)\s*'([^']*)'`)
	notLikeRe = regexp.MustCompile(`(?i)([\w.]+)\s+NOT\s+I?LIKE\s+'([^']*)'`)
	quotedRe  = regexp.MustCompile(`'((?:[^']|'')*)'`)

	statusCondRe = regexp.MustCompile(`(?i)[\w.]*status[\w.]*\s*(?:!=|<>|=|NOT\s+IN|IN|IS)\s*(?:\([^)]*\)|'[^']*'|[\w.]+)`)

	unionRe = regexp.MustCompile(`(?i)\bUNION\b`)

	windowRe      = regexp.MustCompile(`(?i)(\w+)\s*\(([^)]*)\)\s+OVER\s*\(`)
	partitionByRe = regexp.MustCompile(`(?i)PARTITION\s+BY\s+(.+?)(?:\s+ORDER\s+BY|$)`)
	orderByRe     = regexp.MustCompile(`(?i)ORDER\s+BY\s+(.+)$`)

	jsonbOpRe = regexp.MustCompile(`[\w.)\]]+\s*(?:->>|->|#>>|#>|@>)\s*'[^']*'`)

	paramRe = regexp.MustCompile(`\$\d+`)
)

// Analyze extracts the structural dimensions of one SQL statement.
func Analyze(sql string) *Analysis {
	a := &Analysis{
		Tables:              []TableRef{},
		Joins:               []Join{},
		CTEs:                []CTE{},
		Aggregations:        []Aggregation{},
		DateFilters:         []DateFilter{},
		TimezoneConversions: []TimezoneConversion{},
		ProgressiveFilters:  []string{},
		Exclusions:          []Exclusion{},
		CaseBlocks:          []CaseBlock{},
		StatusConditions:    []string{},
		WindowFunctions:     []WindowFunction{},
		JSONBOperations:     []string{},
		DistinctCounts:      []string{},
		Parameters:          []string{},
	}

	a.CTEs = extractCTEs(sql)
	a.Tables = extractTables(sql)
	a.Joins = extractJoins(sql)
	a.Aggregations, a.DistinctCounts = extractAggregations(sql)
	a.DateFilters = extractDateFilters(sql)
	a.TimezoneConversions = extractTimezoneConversions(sql)
	a.ProgressiveFilters = progressiveRe.FindAllString(sql, -1)
	if a.ProgressiveFilters == nil {
		a.ProgressiveFilters = []string{}
	}
	a.Exclusions = extractExclusions(sql)
	a.CaseBlocks = extractCaseBlocks(sql)
	a.StatusConditions = statusCondRe.FindAllString(sql, -1)
	if a.StatusConditions == nil {
		a.StatusConditions = []string{}
	}
	a.UnionStructure = unionRe.MatchString(sql)
	a.WindowFunctions = extractWindowFunctions(sql)
	a.JSONBOperations = jsonbOpRe.FindAllString(sql, -1)
	if a.JSONBOperations == nil {
		a.JSONBOperations = []string{}
	}
	a.Parameters = extractParameters(sql)
	a.Structure = classifyStructure(a)

	return a
}

// classifyStructure assigns the structural tag, highest priority first.
func classifyStructure(a *Analysis) string {
	hasCTE := len(a.CTEs) > 0
	switch {
	case hasCTE && a.UnionStructure:
		return StructureCTEUnion
	case hasCTE:
		return StructureCTE
	case a.UnionStructure:
		return StructureUnion
	case len(a.Joins) > 0:
		return StructureMultiJoin
	default:
		return StructureSingleTable
	}
}

func isKeyword(word string) bool {
	return sqlKeywords[strings.ToLower(word)]
}

// extractTables scans FROM and JOIN positions for table references.
func extractTables(sql string) []TableRef {
	tables := []TableRef{}

	for _, m := range fromRe.FindAllStringSubmatch(sql, -1) {
		// `extract(day from col)` is not a table reference.
		if extractFields[strings.ToLower(strings.TrimSpace(m[1]))] {
			continue
		}
		name := m[2]
		if isKeyword(name) {
			continue
		}
		alias := m[4]
		if isKeyword(alias) {
			alias = ""
		}
		tables = append(tables, TableRef{Name: name, Alias: alias, Role: "from"})
	}

	for _, j := range extractJoins(sql) {
		tables = append(tables, TableRef{Name: j.Table, Alias: j.Alias, Role: "join"})
	}

	return tables
}

// extractJoins walks the JOIN clauses, reading each ON clause up to the next
// join keyword or block terminator.
func extractJoins(sql string) []Join {
	joins := []Join{}

	for _, loc := range joinHeadRe.FindAllStringSubmatchIndex(sql, -1) {
		joinType := "join"
		if loc[2] >= 0 {
			joinType = strings.ToLower(strings.Fields(sql[loc[2]:loc[3]])[0])
		}
		table := sql[loc[4]:loc[5]]
		if isKeyword(table) {
			continue
		}

		j := Join{Type: joinType, Table: table, Conditions: []string{}}
		rest := sql[loc[1]:]

		// Optional alias, unless the next word is a keyword (typically ON).
		if am := aliasRe.FindStringSubmatch(rest); am != nil && !isKeyword(am[1]) {
			j.Alias = am[1]
			rest = rest[len(am[0]):]
		}

		if onLoc := onRe.FindStringIndex(rest); onLoc != nil {
			clause := rest[onLoc[1]:]
			if term := joinTermRe.FindStringIndex(clause); term != nil {
				clause = clause[:term[0]]
			}
			for _, cond := range andSplitRe.Split(clause, -1) {
				if cond = strings.TrimSpace(cond); cond != "" {
					j.Conditions = append(j.Conditions, cond)
				}
			}
		}

		joins = append(joins, j)
	}

	return joins
}

// extractCTEs finds WITH once, then iterates `name AS (` heads, reading each
// body via the balanced-paren scanner.
func extractCTEs(sql string) []CTE {
	ctes := []CTE{}

	withLoc := withRe.FindStringIndex(sql)
	if withLoc == nil {
		return ctes
	}

	pos := withLoc[1]
	for pos < len(sql) {
		m := cteHeadRe.FindStringSubmatchIndex(sql[pos:])
		if m == nil {
			break
		}
		name := sql[pos+m[2] : pos+m[3]]
		open := pos + m[1] - 1 // the '(' the head pattern ends with

		body, next := scanBalanced(sql, open)
		if next < 0 {
			break
		}

		tables := []string{}
		for _, ref := range extractTables(body) {
			tables = append(tables, ref.Name)
		}
		ctes = append(ctes, CTE{Name: name, Body: strings.TrimSpace(body), Tables: tables})
		pos = next
	}

	return ctes
}

// extractAggregations finds aggregate calls with balanced-paren arguments,
// flagging DISTINCT and collecting COUNT(DISTINCT …) expressions separately.
func extractAggregations(sql string) ([]Aggregation, []string) {
	aggs := []Aggregation{}
	distinctCounts := []string{}

	for _, loc := range aggRe.FindAllStringSubmatchIndex(sql, -1) {
		fn := strings.ToUpper(sql[loc[2]:loc[3]])
		open := loc[1] - 1
		body, next := scanBalanced(sql, open)
		if next < 0 {
			continue
		}
		expr := strings.TrimSpace(body)

		distinct := false
		if rest, ok := cutPrefixFold(expr, "DISTINCT"); ok {
			distinct = true
			expr = strings.TrimSpace(rest)
		}

		aggs = append(aggs, Aggregation{Function: fn, Expression: expr, Distinct: distinct})
		if fn == "COUNT" && distinct {
			distinctCounts = append(distinctCounts, expr)
		}
	}

	return aggs, distinctCounts
}

// cutPrefixFold strips a case-insensitive word prefix followed by a space.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) > len(prefix) &&
		strings.EqualFold(s[:len(prefix)], prefix) &&
		(s[len(prefix)] == ' ' || s[len(prefix)] == '\t' || s[len(prefix)] == '\n') {
		return s[len(prefix):], true
	}
	return s, false
}

// extractDateFilters recognizes the four date restriction shapes.
func extractDateFilters(sql string) []DateFilter {
	filters := []DateFilter{}

	for _, m := range monthTruncRe.FindAllStringSubmatch(sql, -1) {
		f := DateFilter{
			Column:      m[1],
			Pattern:     DatePatternMTDCurrent,
			Snippet:     m[0],
			HasTimezone: strings.TrimSpace(m[2]) != "",
		}
		if m[4] != "" {
			f.Pattern = DatePatternTrailingMonths
			f.Months, _ = strconv.Atoi(m[4])
		}
		filters = append(filters, f)
	}

	for _, m := range fixedStartRe.FindAllStringSubmatch(sql, -1) {
		filters = append(filters, DateFilter{
			Column:      m[1],
			Pattern:     DatePatternFixedStart,
			Snippet:     m[0],
			HasTimezone: strings.TrimSpace(m[2]) != "",
		})
	}

	for _, snippet := range priorYearRe.FindAllString(sql, -1) {
		filters = append(filters, DateFilter{
			Pattern: DatePatternPriorYearMTD,
			Snippet: snippet,
		})
	}

	return filters
}

// extractTimezoneConversions finds `column + interval '…'` shifts and
// buckets the interval literal.
func extractTimezoneConversions(sql string) []TimezoneConversion {
	convs := []TimezoneConversion{}

	for _, m := range tzShiftRe.FindAllStringSubmatch(sql, -1) {
		column, literal := m[1], m[2]
		if strings.EqualFold(column, "CURRENT_DATE") {
			continue // date arithmetic, not a timezone shift
		}
		convs = append(convs, TimezoneConversion{
			Column:   column,
			Interval: literal,
			Class:    classifyInterval(literal),
		})
	}

	return convs
}

func classifyInterval(literal string) string {
	lower := strings.ToLower(literal)
	switch {
	case strings.Contains(lower, "330"):
		return TimezoneClass330Minutes
	case strings.Contains(lower, "5h30m"),
		strings.Contains(lower, "5 hour") && strings.Contains(lower, "30 min"):
		return TimezoneClass5h30m
	default:
		return TimezoneClassOther
	}
}

// extractExclusions classifies NOT IN, != and NOT LIKE filters.
func extractExclusions(sql string) []Exclusion {
	exclusions := []Exclusion{}

	for _, m := range notInRe.FindAllStringSubmatch(sql, -1) {
		values := []string{}
		for _, q := range quotedRe.FindAllStringSubmatch(m[2], -1) {
			values = append(values, q[1])
		}
		exclusions = append(exclusions, Exclusion{
			Type: ExclusionNotIn, Column: m[1], Values: values,
		})
	}

	for _, m := range notEqRe.FindAllStringSubmatch(sql, -1) {
		exclusions = append(exclusions, Exclusion{
			Type: ExclusionNotEqual, Column: m[1], Values: []string{m[2]},
		})
	}

	for _, m := range notLikeRe.FindAllStringSubmatch(sql, -1) {
		exclusions = append(exclusions, Exclusion{
			Type: ExclusionNotLike, Column: m[1], Values: []string{m[2]},
		})
	}

	return exclusions
}

// extractCaseBlocks parses top-level CASE…END expressions.
func extractCaseBlocks(sql string) []CaseBlock {
	blocks := []CaseBlock{}
	upper := strings.ToUpper(sql)

	i := 0
	for i < len(upper) {
		if !hasWordAt(upper, i, "CASE") {
			i++
			continue
		}
		end := findMatchingEnd(sql, i)
		if end < 0 {
			break
		}
		blocks = append(blocks, parseCaseBlock(sql[i:end]))
		i = end
	}

	return blocks
}

// parseCaseBlock splits one CASE…END (nested CASEs left inline in branch
// text) into operand, WHEN/THEN branches, and ELSE.
func parseCaseBlock(block string) CaseBlock {
	upper := strings.ToUpper(block)

	type boundary struct {
		word  string
		start int
		end   int
	}
	var bounds []boundary

	depth := 0
	i := 0
	for i < len(upper) {
		switch {
		case hasWordAt(upper, i, "CASE"):
			depth++
			if depth == 1 {
				bounds = append(bounds, boundary{"CASE", i, i + 4})
			}
			i += 4
		case hasWordAt(upper, i, "END"):
			if depth == 1 {
				bounds = append(bounds, boundary{"END", i, i + 3})
			}
			depth--
			i += 3
		case depth == 1 && hasWordAt(upper, i, "WHEN"):
			bounds = append(bounds, boundary{"WHEN", i, i + 4})
			i += 4
		case depth == 1 && hasWordAt(upper, i, "THEN"):
			bounds = append(bounds, boundary{"THEN", i, i + 4})
			i += 4
		case depth == 1 && hasWordAt(upper, i, "ELSE"):
			bounds = append(bounds, boundary{"ELSE", i, i + 4})
			i += 4
		default:
			i++
		}
	}

	cb := CaseBlock{Whens: []CaseWhen{}}
	segment := func(from, to int) string {
		return strings.TrimSpace(block[from:to])
	}

	var pendingCondition string
	for idx := 0; idx < len(bounds)-1; idx++ {
		cur, next := bounds[idx], bounds[idx+1]
		text := segment(cur.end, next.start)
		switch cur.word {
		case "CASE":
			cb.Expression = text // empty for searched CASE
		case "WHEN":
			pendingCondition = text
		case "THEN":
			cb.Whens = append(cb.Whens, CaseWhen{Condition: pendingCondition, Result: text})
		case "ELSE":
			cb.Else = text
		}
	}

	return cb
}

// extractWindowFunctions parses fn(args) OVER (…) calls.
func extractWindowFunctions(sql string) []WindowFunction {
	wins := []WindowFunction{}

	for _, loc := range windowRe.FindAllStringSubmatchIndex(sql, -1) {
		fn := strings.ToUpper(sql[loc[2]:loc[3]])
		open := loc[1] - 1
		body, next := scanBalanced(sql, open)
		if next < 0 {
			continue
		}

		w := WindowFunction{Function: fn}
		if m := partitionByRe.FindStringSubmatch(body); m != nil {
			w.PartitionBy = strings.TrimSpace(m[1])
		}
		if m := orderByRe.FindStringSubmatch(body); m != nil {
			w.OrderBy = strings.TrimSpace(m[1])
		}
		wins = append(wins, w)
	}

	return wins
}

// extractParameters lists the distinct positional parameters in order.
func extractParameters(sql string) []string {
	seen := map[string]bool{}
	params := []string{}
	for _, p := range paramRe.FindAllString(sql, -1) {
		if !seen[p] {
			seen[p] = true
			params = append(params, p)
		}
	}
	sort.Slice(params, func(i, j int) bool {
		a, _ := strconv.Atoi(params[i][1:])
		b, _ := strconv.Atoi(params[j][1:])
		return a < b
	})
	return params
}
