package engine

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"dietinsights/internal/models"
)

const DefaultPerPage = 10

// Recipes lists matching recipes sorted by name, one page at a time. The page is
// clamped into [1, TotalPages]; an empty result still reports one page.
func (s *Snapshot) Recipes(filter Filter, page, perPage int) models.RecipePage {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	match := s.compile(filter)

	var rows []int
	for i := 0; i < s.Len(); i++ {
		if match.match(i) {
			rows = append(rows, i)
		}
	}
	slices.SortStableFunc(rows, func(a, b int) int {
		return cmp.Compare(s.Records[a].RecipeName, s.Records[b].RecipeName)
	})

	total := len(rows)
	totalPages := max(1, (total+perPage-1)/perPage)
	page = min(max(page, 1), totalPages)

	out := models.RecipePage{
		Recipes:    make([]models.RecipeItem, 0, perPage),
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
		PerPage:    perPage,
	}
	start := (page - 1) * perPage
	for _, i := range rows[start:min(start+perPage, total)] {
		r := &s.Records[i]
		out.Recipes = append(out.Recipes, models.RecipeItem{
			RecipeName:  r.RecipeName,
			CuisineType: r.CuisineType,
			DietType:    r.DietType,
		})
	}
	return out
}

// DominantMacro labels a record by its largest macro. Ties go to protein, then carbs.
func DominantMacro(r *models.NutritionRecord) string {
	switch {
	case r.ProteinG >= r.CarbsG && r.ProteinG >= r.FatG:
		return "protein"
	case r.CarbsG >= r.FatG:
		return "carbs"
	default:
		return "fat"
	}
}

// Clusters counts matching records per dominant macro, largest count first.
func (s *Snapshot) Clusters(filter Filter) []models.ClusterCount {
	match := s.compile(filter)
	counts := map[string]int{}
	for i := 0; i < s.Len(); i++ {
		if match.match(i) {
			counts[DominantMacro(&s.Records[i])]++
		}
	}

	out := make([]models.ClusterCount, 0, len(counts))
	for _, label := range []string{"protein", "carbs", "fat"} {
		if c := counts[label]; c > 0 {
			out = append(out, models.ClusterCount{Label: label, Count: c})
		}
	}
	slices.SortStableFunc(out, func(a, b models.ClusterCount) int { return cmp.Compare(b.Count, a.Count) })
	return out
}

// MostCommonCuisine returns the modal cuisine of every diet, sorted by diet.
// Ties go to the cuisine seen first in row order.
func (s *Snapshot) MostCommonCuisine(filter Filter) []models.CuisineMode {
	match := s.compile(filter)
	numCuisines := len(s.cuisineDict)
	counts := make([]int, len(s.dietDict)*numCuisines)
	firstSeen := make([]int, len(counts))

	for i := 0; i < s.Len(); i++ {
		if !match.match(i) {
			continue
		}
		idx := int(s.dietIDs[i])*numCuisines + int(s.cuisineIDs[i])
		if counts[idx] == 0 {
			firstSeen[idx] = i
		}
		counts[idx]++
	}

	out := make([]models.CuisineMode, 0, len(s.dietDict))
	for d, diet := range s.dietDict {
		best := -1
		for c := 0; c < numCuisines; c++ {
			idx := d*numCuisines + c
			if counts[idx] == 0 {
				continue
			}
			if best < 0 || counts[idx] > counts[best] ||
				(counts[idx] == counts[best] && firstSeen[idx] < firstSeen[best]) {
				best = idx
			}
		}
		if best < 0 {
			continue
		}
		out = append(out, models.CuisineMode{
			DietType:    diet,
			CuisineType: s.cuisineDict[best%numCuisines],
			Count:       counts[best],
		})
	}
	slices.SortFunc(out, func(a, b models.CuisineMode) int { return cmp.Compare(a.DietType, b.DietType) })
	return out
}

// HighestProtein reports the diet of the single highest-protein recipe and the
// diet with the highest mean protein. ok is false when nothing matches.
func (s *Snapshot) HighestProtein(filter Filter) (summary models.ProteinSummary, ok bool) {
	match := s.compile(filter)
	bestRow := -1
	for i := 0; i < s.Len(); i++ {
		if match.match(i) && (bestRow < 0 || s.values[0][i] > s.values[0][bestRow]) {
			bestRow = i
		}
	}
	if bestRow < 0 {
		return summary, false
	}
	summary.DietWithHighestSingleRecipe = s.Records[bestRow].DietType
	summary.HighestSingleRecipeProteinG = s.Records[bestRow].ProteinG

	// Groups come back sorted by diet, so the first maximum wins ties.
	agg := s.Aggregate(GroupByDiet, []Metric{Protein}, filter)
	for i, g := range agg.Groups {
		if mean := g.Stats[Protein].Mean; i == 0 || mean > summary.HighestAverageProteinG {
			summary.DietWithHighestAverage = g.DietType
			summary.HighestAverageProteinG = mean
		}
	}
	return summary, true
}

// Correlations computes the Pearson correlation matrix of the three macros over
// matching records. It returns nil with fewer than two records. A cell is nil when
// either column has zero variance.
func (s *Snapshot) Correlations(filter Filter) *models.Correlations {
	match := s.compile(filter)
	var rows []int
	for i := 0; i < s.Len(); i++ {
		if match.match(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) < 2 {
		return nil
	}

	var mean [numMetrics]float64
	for m := range mean {
		for _, i := range rows {
			mean[m] += s.values[m][i]
		}
		mean[m] /= float64(len(rows))
	}

	var cov [numMetrics][numMetrics]float64
	for _, i := range rows {
		for a := 0; a < numMetrics; a++ {
			da := s.values[a][i] - mean[a]
			for b := a; b < numMetrics; b++ {
				cov[a][b] += da * (s.values[b][i] - mean[b])
			}
		}
	}

	out := &models.Correlations{Matrix: make([][]*float64, numMetrics)}
	for _, m := range AllMetrics {
		out.Metrics = append(out.Metrics, string(m))
	}
	for a := 0; a < numMetrics; a++ {
		out.Matrix[a] = make([]*float64, numMetrics)
		for b := 0; b < numMetrics; b++ {
			lo, hi := min(a, b), max(a, b)
			denom := math.Sqrt(cov[a][a] * cov[b][b])
			if denom == 0 {
				continue
			}
			r := cov[lo][hi] / denom
			out.Matrix[a][b] = &r
		}
	}
	return out
}

// Ratios returns protein/carbs and carbs/fat. A ratio is nil when its denominator is 0.
func Ratios(r *models.NutritionRecord) (proteinToCarbs, carbsToFat *float64) {
	if r.CarbsG != 0 {
		v := r.ProteinG / r.CarbsG
		proteinToCarbs = &v
	}
	if r.FatG != 0 {
		v := r.CarbsG / r.FatG
		carbsToFat = &v
	}
	return proteinToCarbs, carbsToFat
}

// MacroAverages is the mean of every macro per diet, sorted by diet.
func (s *Snapshot) MacroAverages() []models.MacroAverages {
	agg := s.Aggregate(GroupByDiet, AllMetrics, Filter{})
	out := make([]models.MacroAverages, 0, len(agg.Groups))
	for _, g := range agg.Groups {
		out = append(out, models.MacroAverages{
			DietType: g.DietType,
			ProteinG: g.Stats[Protein].Mean,
			CarbsG:   g.Stats[Carbs].Mean,
			FatG:     g.Stats[Fat].Mean,
		})
	}
	return out
}

// FindRecipe returns the first record whose name matches case-insensitively.
func (s *Snapshot) FindRecipe(name string) (models.NutritionRecord, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range s.nameLower {
		if n == name {
			return s.Records[i], true
		}
	}
	return models.NutritionRecord{}, false
}
