package funnel

import (
	"regexp"
	"strings"
)

// Keyword group names.
const (
	GroupTimePeriod  = "time_period"
	GroupMetric      = "metric"
	GroupGranularity = "granularity"
	GroupFilter      = "filter"
)

// keywordGroups are the declarative signal sets the classifier scores a
// question against. Multi-word phrases are matched as substrings of the
// lowercased question; single words against the token set.
var keywordGroups = map[string][]string{
	GroupTimePeriod: {
		"today", "mtd", "month to date", "this month", "last month",
		"ytd", "this year", "last year", "year over year", "yoy",
		"quarter", "this week", "fiscal",
	},
	GroupMetric: {
		"leads", "lead", "prospects", "prospect", "sales", "sale",
		"bookings", "booking", "revenue", "gbv", "conversion", "funnel",
	},
	GroupGranularity: {
		"daily", "weekly", "monthly", "trend", "breakdown", "by source",
		"by month", "by status", "distribution", "split",
	},
	GroupFilter: {
		"source", "channel", "status", "active", "open", "stale",
		"aging", "location", "villa",
	},
}

// metricCategories maps metric keywords to pattern categories.
var metricCategories = map[string]string{
	"leads": "leads", "lead": "leads",
	"prospects": "prospects", "prospect": "prospects",
	"sales": "sales", "sale": "sales",
	"bookings": "sales", "booking": "sales", "revenue": "sales", "gbv": "sales",
	"conversion": "funnel", "funnel": "funnel",
}

// dateFilterPriority maps time-period keywords to date filter names, in
// decreasing precedence. Comparison signals outrank plain period signals:
// "sales this month vs last year" is a prior-year comparison, not an MTD.
var dateFilterPriority = []struct {
	keyword string
	filter  string
}{
	{"year over year", "prior_year_mtd"},
	{"yoy", "prior_year_mtd"},
	{"last year", "prior_year_mtd"},
	{"ytd", "fiscal_year"},
	{"this year", "fiscal_year"},
	{"fiscal", "fiscal_year"},
	{"mtd", "mtd_current"},
	{"month to date", "mtd_current"},
	{"this month", "mtd_current"},
	{"today", "mtd_current"},
	{"last month", "trailing_6_months"},
	{"monthly", "trailing_6_months"},
	{"trend", "trailing_6_months"},
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// Classification is the classifier output: matched signal groups, derived
// categories and date filter, and the selected pattern packages.
type Classification struct {
	Question            string              `json:"question"`
	Matches             map[string][]string `json:"matches"`
	SuggestedCategories []string            `json:"suggested_categories"`
	RequiredPatterns    []string            `json:"required_patterns"`
	DateFilter          string              `json:"date_filter,omitempty"`
	Patterns            []PatternSuggestion `json:"patterns"`
	Fallback            bool                `json:"fallback,omitempty"`
}

// PatternSuggestion is one selected pattern with its applicable rules,
// date filter, and validation checks attached.
type PatternSuggestion struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	SQL         string         `json:"sql"`
	CoreRules   []string       `json:"core_rules"`
	DateFilter  *DateFilterDef `json:"date_filter,omitempty"`
	Validation  []string       `json:"validation"`
}

// ClassifyIntent scores a natural-language question against the keyword
// groups and selects the matching query patterns. Selection is the union of
// required patterns (category-matched), category-matched patterns, and
// patterns with direct keyword overlap; when nothing matches, the default
// pattern is returned with the fallback flag set.
func ClassifyIntent(question string) *Classification {
	lower := strings.ToLower(question)
	tokens := map[string]bool{}
	for _, tok := range tokenRe.FindAllString(lower, -1) {
		tokens[tok] = true
	}

	c := &Classification{
		Question:            question,
		Matches:             map[string][]string{},
		SuggestedCategories: []string{},
		RequiredPatterns:    []string{},
		Patterns:            []PatternSuggestion{},
	}

	for _, group := range []string{GroupTimePeriod, GroupMetric, GroupGranularity, GroupFilter} {
		matched := []string{}
		for _, kw := range keywordGroups[group] {
			if matchKeyword(lower, tokens, kw) {
				matched = append(matched, kw)
			}
		}
		c.Matches[group] = matched
	}

	// Categories follow the metric signals.
	seenCat := map[string]bool{}
	for _, kw := range c.Matches[GroupMetric] {
		if cat, ok := metricCategories[kw]; ok && !seenCat[cat] {
			seenCat[cat] = true
			c.SuggestedCategories = append(c.SuggestedCategories, cat)
		}
	}
	// Granularity signals add their own categories (trend, breakdown).
	for _, kw := range c.Matches[GroupGranularity] {
		var cat string
		switch kw {
		case "trend", "monthly", "daily", "weekly":
			cat = "trend"
		case "breakdown", "by source", "by month", "by status", "distribution", "split":
			cat = "breakdown"
		}
		if cat != "" && !seenCat[cat] {
			seenCat[cat] = true
			c.SuggestedCategories = append(c.SuggestedCategories, cat)
		}
	}

	// Date filter from the highest-precedence time signal.
	for _, entry := range dateFilterPriority {
		if matchKeyword(lower, tokens, entry.keyword) {
			c.DateFilter = entry.filter
			break
		}
	}

	selected := map[string]bool{}
	for i := range Patterns {
		p := &Patterns[i]
		categoryMatch := overlaps(p.Categories, c.SuggestedCategories)
		if p.Required && categoryMatch {
			c.RequiredPatterns = append(c.RequiredPatterns, p.Name)
		}
		if categoryMatch || keywordOverlap(p.Keywords, lower, tokens) {
			selected[p.Name] = true
		}
	}

	if len(selected) == 0 {
		selected[DefaultPattern] = true
		c.Fallback = true
	}

	// Emit suggestions in catalog order so output is deterministic.
	for i := range Patterns {
		p := &Patterns[i]
		if !selected[p.Name] {
			continue
		}
		c.Patterns = append(c.Patterns, suggest(p))
	}

	return c
}

// suggest packages a pattern with its applicable rules and date filter.
func suggest(p *Pattern) PatternSuggestion {
	s := PatternSuggestion{
		Name:        p.Name,
		Description: p.Description,
		SQL:         p.SQL,
		CoreRules:   SalesIntelligence.CoreRules,
		Validation:  p.Validation,
	}
	if p.DateFilter != "" {
		if def, ok := SalesIntelligence.DateFilters[p.DateFilter]; ok {
			s.DateFilter = &def
		}
	}
	return s
}

// matchKeyword matches phrases as substrings and single words as tokens,
// so "source" does not fire on "sources of truth" token noise but "month
// to date" still matches across word boundaries.
func matchKeyword(lower string, tokens map[string]bool, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(lower, kw)
	}
	return tokens[kw]
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func keywordOverlap(keywords []string, lower string, tokens map[string]bool) bool {
	for _, kw := range keywords {
		if matchKeyword(lower, tokens, kw) {
			return true
		}
	}
	return false
}
