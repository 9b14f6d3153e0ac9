package models

import "time"

// NutritionRecord is one validated recipe row. Row is the 1-based data row in the source.
type NutritionRecord struct {
	Row         int     `json:"row"`
	RecipeName  string  `json:"recipe_name"`
	CuisineType string  `json:"cuisine_type"`
	DietType    string  `json:"diet_type"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
}

type Stats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
}

type GroupPayload struct {
	Key         string             `json:"key"`
	DietType    string             `json:"dietType,omitempty"`
	CuisineType string             `json:"cuisineType,omitempty"`
	Stats       map[string]Stats   `json:"stats"`
	Top         *[]NutritionRecord `json:"top,omitempty"` // nil unless topN was requested
}

type QueryResponse struct {
	GroupBy            string         `json:"groupBy"`
	Metrics            []string       `json:"metrics"`
	GeneratedAtVersion uint64         `json:"generatedAtVersion"`
	Groups             []GroupPayload `json:"groups"`
}

type RecipeItem struct {
	RecipeName  string `json:"recipe_name"`
	CuisineType string `json:"cuisine_type"`
	DietType    string `json:"diet_type"`
}

type RecipePage struct {
	Recipes    []RecipeItem `json:"recipes"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
	PerPage    int          `json:"per_page"`
}

type ClusterCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type CuisineMode struct {
	DietType    string `json:"diet_type"`
	CuisineType string `json:"most_common_cuisine"`
	Count       int    `json:"count"`
}

type ProteinSummary struct {
	DietWithHighestSingleRecipe string  `json:"diet_with_highest_single_recipe_protein"`
	HighestSingleRecipeProteinG float64 `json:"highest_single_recipe_protein_g"`
	DietWithHighestAverage      string  `json:"diet_with_highest_avg_protein"`
	HighestAverageProteinG      float64 `json:"highest_avg_protein_g"`
}

// Correlations is a square matrix over Metrics. Nil cells have zero variance.
type Correlations struct {
	Metrics []string     `json:"metrics"`
	Matrix  [][]*float64 `json:"matrix"`
}

type Insights struct {
	Version           uint64         `json:"version"`
	MostCommonCuisine []CuisineMode  `json:"most_common_cuisine"`
	HighestProtein    ProteinSummary `json:"highest_protein"`
	Correlations      *Correlations  `json:"correlations,omitempty"`
}

type MacroAverages struct {
	DietType string  `json:"Diet_type"`
	ProteinG float64 `json:"Protein(g)"`
	CarbsG   float64 `json:"Carbs(g)"`
	FatG     float64 `json:"Fat(g)"`
}

type ReloadStatus struct {
	At       time.Time `json:"at"`
	Version  uint64    `json:"version"`
	Source   string    `json:"source"`
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
	Error    string    `json:"error,omitempty"`
}
