package engine

import (
	"slices"
	"strings"

	"dietinsights/internal/models"
)

// GroupBy is the grouping dimension of an aggregation.
type GroupBy string

const (
	GroupByDiet    GroupBy = "diet_type"
	GroupByCuisine GroupBy = "cuisine_type"
	GroupByBoth    GroupBy = "both"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(s); g {
	case GroupByDiet, GroupByCuisine, GroupByBoth:
		return g, nil
	}
	return "", &InvalidParameterError{Field: "groupBy", Value: s}
}

// Metric is one of the per-serving macro columns.
type Metric string

const (
	Protein Metric = "protein_g"
	Carbs   Metric = "carbs_g"
	Fat     Metric = "fat_g"
)

const numMetrics = 3

// AllMetrics lists metrics in column order.
var AllMetrics = []Metric{Protein, Carbs, Fat}

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case Protein, Carbs, Fat:
		return m, nil
	}
	return "", &InvalidParameterError{Field: "metrics", Value: s}
}

func (m Metric) index() int {
	switch m {
	case Carbs:
		return 1
	case Fat:
		return 2
	}
	return 0
}

// Value reads the metric from a record.
func (m Metric) Value(r *models.NutritionRecord) float64 {
	switch m {
	case Carbs:
		return r.CarbsG
	case Fat:
		return r.FatG
	}
	return r.ProteinG
}

// Filter restricts the records an operation sees. All set constraints must hold.
// Diet and cuisine values match case-insensitively; Keyword is a case-insensitive
// substring of the recipe name or cuisine. Where is an arbitrary predicate applied
// last. Functions cannot be compared, so Where is not part of Key and a filter
// with Where set must not be used as a cache key (see Cacheable).
type Filter struct {
	DietTypes    []string
	CuisineTypes []string
	Keyword      string
	Where        func(*models.NutritionRecord) bool
}

// Normalize lower-cases, trims, de-duplicates and sorts the filter values.
func (f Filter) Normalize() Filter {
	norm := func(in []string) []string {
		if len(in) == 0 {
			return nil
		}
		out := make([]string, 0, len(in))
		for _, v := range in {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				out = append(out, v)
			}
		}
		slices.Sort(out)
		return slices.Compact(out)
	}
	return Filter{
		DietTypes:    norm(f.DietTypes),
		CuisineTypes: norm(f.CuisineTypes),
		Keyword:      strings.ToLower(strings.TrimSpace(f.Keyword)),
		Where:        f.Where,
	}
}

func (f Filter) IsEmpty() bool {
	return len(f.DietTypes) == 0 && len(f.CuisineTypes) == 0 && f.Keyword == "" && f.Where == nil
}

// Cacheable reports whether Key fully describes the filter.
func (f Filter) Cacheable() bool { return f.Where == nil }

// Key is a canonical encoding of the normalized filter. It ignores Where.
func (f Filter) Key() string {
	n := f.Normalize()
	var b strings.Builder
	b.WriteString("diet=")
	b.WriteString(strings.Join(n.DietTypes, ","))
	b.WriteString(";cuisine=")
	b.WriteString(strings.Join(n.CuisineTypes, ","))
	b.WriteString(";kw=")
	b.WriteString(n.Keyword)
	return b.String()
}

// matcher is a filter compiled against one snapshot's dictionaries.
type matcher struct {
	snap    *Snapshot
	diet    []bool
	cuisine []bool
	keyword string
	where   func(*models.NutritionRecord) bool
}

func (s *Snapshot) compile(f Filter) *matcher {
	f = f.Normalize()
	m := &matcher{snap: s, keyword: f.Keyword, where: f.Where}
	if len(f.DietTypes) > 0 {
		m.diet = make([]bool, len(s.dietDict))
		for id, d := range s.dietDict {
			m.diet[id] = slices.Contains(f.DietTypes, d)
		}
	}
	if len(f.CuisineTypes) > 0 {
		m.cuisine = make([]bool, len(s.cuisineDict))
		for id, c := range s.cuisineLower {
			m.cuisine[id] = slices.Contains(f.CuisineTypes, c)
		}
	}
	return m
}

func (m *matcher) match(i int) bool {
	if m.diet != nil && !m.diet[m.snap.dietIDs[i]] {
		return false
	}
	if m.cuisine != nil && !m.cuisine[m.snap.cuisineIDs[i]] {
		return false
	}
	if m.keyword != "" &&
		!strings.Contains(m.snap.nameLower[i], m.keyword) &&
		!strings.Contains(m.snap.cuisineLower[m.snap.cuisineIDs[i]], m.keyword) {
		return false
	}
	if m.where != nil && !m.where(&m.snap.Records[i]) {
		return false
	}
	return true
}
