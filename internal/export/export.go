// Package export writes the batch outputs of a snapshot: the cleaned dataset
// as CSV and Arrow IPC, plus the per-diet summaries.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"dietinsights/internal/engine"
	"dietinsights/internal/models"

	"github.com/goccy/go-json"
)

const (
	CleanCSVFile      = "cleaned_dataset.csv"
	ArrowFile         = "cleaned_dataset.arrow"
	AveragesFile      = "avg_macros_by_diet.json"
	TopProteinFile    = "top_protein_by_diet.csv"
	CommonCuisineFile = "most_common_cuisine_by_diet.csv"
	SummaryFile       = "highest_protein_summary.json"
)

var cleanHeader = []string{
	"Diet_type", "Recipe_name", "Cuisine_type", "Protein(g)", "Carbs(g)", "Fat(g)",
	"Protein_to_Carbs_ratio", "Carbs_to_Fat_ratio",
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func formatRatio(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func recordRow(r *models.NutritionRecord) []string {
	pc, cf := engine.Ratios(r)
	return []string{
		r.DietType, r.RecipeName, r.CuisineType,
		formatFloat(r.ProteinG), formatFloat(r.CarbsG), formatFloat(r.FatG),
		formatRatio(pc), formatRatio(cf),
	}
}

// WriteCleanCSV writes every accepted record with its macro ratios. Undefined
// ratios are left empty.
func WriteCleanCSV(w io.Writer, snap *engine.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cleanHeader); err != nil {
		return err
	}
	for i := range snap.Records {
		if err := cw.Write(recordRow(&snap.Records[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTopProtein writes the n highest protein recipes of every diet.
func WriteTopProtein(w io.Writer, snap *engine.Snapshot, n int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cleanHeader); err != nil {
		return err
	}
	for _, g := range snap.TopN(engine.GroupByDiet, engine.Protein, n, engine.Filter{}) {
		for i := range g.Records {
			if err := cw.Write(recordRow(&g.Records[i])); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteCommonCuisine(w io.Writer, snap *engine.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Diet_type", "Most_common_cuisine", "Count"}); err != nil {
		return err
	}
	for _, m := range snap.MostCommonCuisine(engine.Filter{}) {
		if err := cw.Write([]string{m.DietType, m.CuisineType, strconv.Itoa(m.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAverages writes mean macros per diet, sorted by diet.
func WriteAverages(w io.Writer, snap *engine.Snapshot) error {
	return writeJSON(w, snap.MacroAverages())
}

func WriteSummary(w io.Writer, snap *engine.Snapshot) error {
	sum, ok := snap.HighestProtein(engine.Filter{})
	if !ok {
		return fmt.Errorf("snapshot %d has no records", snap.Version)
	}
	return writeJSON(w, sum)
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(f)
}

// WriteAll writes every output into dir, creating it when needed, and returns
// the paths written.
func WriteAll(dir string, snap *engine.Snapshot, topN int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	outputs := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{CleanCSVFile, func(w io.Writer) error { return WriteCleanCSV(w, snap) }},
		{ArrowFile, func(w io.Writer) error { return WriteArrow(w, snap) }},
		{AveragesFile, func(w io.Writer) error { return WriteAverages(w, snap) }},
		{TopProteinFile, func(w io.Writer) error { return WriteTopProtein(w, snap, topN) }},
		{CommonCuisineFile, func(w io.Writer) error { return WriteCommonCuisine(w, snap) }},
		{SummaryFile, func(w io.Writer) error { return WriteSummary(w, snap) }},
	}
	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := writeFile(path, o.fn); err != nil {
			return paths, fmt.Errorf("write %s: %w", o.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
