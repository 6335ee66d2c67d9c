package funnel

// TemplatePackage is the full rule bundle for one named pattern, as
// returned by the query-template tool: the pattern itself plus every
// intelligence section a query author needs, with any special-logic
// reference dereferenced.
type TemplatePackage struct {
	Pattern             Pattern           `json:"pattern"`
	CoreRules           []string          `json:"core_rules"`
	DateFilter          *DateFilterDef    `json:"date_filter,omitempty"`
	Stages              []Stage           `json:"stages"`
	Metrics             []Metric          `json:"metrics"`
	SourceMapping       SourceMapping     `json:"source_mapping"`
	StatusLogic         map[string]string `json:"status_logic"`
	SpecialLogic        string            `json:"special_logic,omitempty"`
	ValidationChecklist []string          `json:"validation_checklist"`
	AntiPatterns        []string          `json:"anti_patterns"`
}

// GetTemplate assembles the rule package for a named pattern.
// Returns an error for unknown pattern names.
func GetTemplate(patternName string) (*TemplatePackage, error) {
	p, err := PatternByName(patternName)
	if err != nil {
		return nil, err
	}

	pkg := &TemplatePackage{
		Pattern:             *p,
		CoreRules:           SalesIntelligence.CoreRules,
		Stages:              SalesIntelligence.Stages,
		Metrics:             SalesIntelligence.Metrics,
		SourceMapping:       SalesIntelligence.SourceMapping,
		StatusLogic:         SalesIntelligence.StatusLogic,
		ValidationChecklist: SalesIntelligence.ValidationChecklist,
		AntiPatterns:        SalesIntelligence.AntiPatterns,
	}

	if p.DateFilter != "" {
		if def, ok := SalesIntelligence.DateFilters[p.DateFilter]; ok {
			pkg.DateFilter = &def
		}
	}
	if p.SpecialLogic != "" {
		if resolved, ok := SalesIntelligence.Lookup(p.SpecialLogic); ok {
			pkg.SpecialLogic = resolved
		}
	}

	return pkg, nil
}

// PatternSummary is one row of the pattern listing.
type PatternSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Categories  []string `json:"categories"`
}

// ListPatterns summarizes the catalog for discovery.
func ListPatterns() []PatternSummary {
	out := make([]PatternSummary, 0, len(Patterns))
	for _, p := range Patterns {
		out = append(out, PatternSummary{
			Name:        p.Name,
			Description: p.Description,
			Keywords:    p.Keywords,
			Categories:  p.Categories,
		})
	}
	return out
}
