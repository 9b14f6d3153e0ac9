package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRows(t *testing.T) {
	csvContent := `Diet_type,Recipe_name,Cuisine_type,Protein (g),Carbs(g),Fat(g),Extraction_day
paleo,"Bone Broth, Slow Cooked",american,5.22,1.29,3.2,2022-10-16
vegan,Tofu Scramble,mexican,30.1,12,8.5,2022-10-16
keto,Short Row,french
`
	rows, err := ReadRows(strings.NewReader(csvContent))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Quoted commas stay inside the field
	assert.Equal(t, 1, rows[0].Line)
	assert.Equal(t, "Bone Broth, Slow Cooked", rows[0].Fields[FieldRecipeName])
	assert.Equal(t, "5.22", rows[0].Fields[FieldProtein])
	assert.Equal(t, "paleo", rows[0].Fields[FieldDietType])

	// Unknown columns are dropped
	_, ok := rows[1].Fields["extraction_day"]
	assert.False(t, ok)

	// Short rows survive with missing cells
	assert.Equal(t, 3, rows[2].Line)
	_, ok = rows[2].Fields[FieldProtein]
	assert.False(t, ok)
}

func TestReadRowsEmptySource(t *testing.T) {
	_, err := ReadRows(strings.NewReader(""))
	require.Error(t, err)
}

func TestCanonicalColumn(t *testing.T) {
	cases := map[string]string{
		"Recipe_name":      FieldRecipeName,
		"Cuisine_type":     FieldCuisineType,
		"diet_type":        FieldDietType,
		"Protein (g)":      FieldProtein,
		"Protein(g)":       FieldProtein,
		"Carbs (g)":        FieldCarbs,
		"fat_g":            FieldFat,
		"\ufeffDiet_type":  FieldDietType,
		"Extraction_day":   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalColumn(in), in)
	}
}

func row(line int, diet, name, cuisine, protein, carbs, fat string) RawRow {
	return RawRow{Line: line, Fields: map[string]string{
		FieldDietType:    diet,
		FieldRecipeName:  name,
		FieldCuisineType: cuisine,
		FieldProtein:     protein,
		FieldCarbs:       carbs,
		FieldFat:         fat,
	}}
}

func TestParseRejections(t *testing.T) {
	rows := []RawRow{
		row(1, "keto", "Steak", "american", "40", "0", "20"),
		row(2, "keto", "Mystery", "american", "N/A", "1", "1"),
		row(3, "vegan", "", "thai", "5", "1", "1"),
		row(4, "vegan", "Salad", "thai", "5", "-1", "1"),
		row(5, "vegan", "Soup", "thai", "5", "", "1"),
		row(6, "vegan", "Inf Pie", "thai", "Inf", "1", "1"),
		row(7, "Vegan", "Curry", " thai ", "12.5", "30", "9"),
	}

	res := Parse(rows)
	require.Len(t, res.Records, 2)
	require.Len(t, res.Rejected, 5)

	assert.Equal(t, "Steak", res.Records[0].RecipeName)
	assert.Equal(t, 1, res.Records[0].Row)
	// Diet types are normalized, other strings only trimmed
	assert.Equal(t, "vegan", res.Records[1].DietType)
	assert.Equal(t, "thai", res.Records[1].CuisineType)

	want := []struct {
		line   int
		reason ReasonCode
		field  string
	}{
		{2, NotNumeric, FieldProtein},
		{3, MissingField, FieldRecipeName},
		{4, NegativeValue, FieldCarbs},
		{5, MissingField, FieldCarbs},
		{6, NotNumeric, FieldProtein},
	}
	for i, w := range want {
		assert.Equal(t, w.line, res.Rejected[i].Row.Line)
		assert.Equal(t, w.reason, res.Rejected[i].Reason)
		assert.Equal(t, w.field, res.Rejected[i].Field)
	}

	reasons := res.Reasons()
	assert.Equal(t, 2, reasons[NotNumeric])
	assert.Equal(t, 2, reasons[MissingField])
	assert.Equal(t, 1, reasons[NegativeValue])
}

func TestParsePreservesOrderAcrossChunks(t *testing.T) {
	n := parseChunkSize*3 + 17
	rows := make([]RawRow, n)
	for i := range rows {
		protein := fmt.Sprint(i)
		if i%5 == 0 {
			protein = "bad"
		}
		rows[i] = row(i+1, "keto", fmt.Sprintf("r%d", i), "any", protein, "1", "1")
	}

	res := Parse(rows)
	require.Equal(t, n, len(res.Records)+len(res.Rejected))

	for i := 1; i < len(res.Records); i++ {
		require.Less(t, res.Records[i-1].Row, res.Records[i].Row)
	}
	for i := 1; i < len(res.Rejected); i++ {
		require.Less(t, res.Rejected[i-1].Row.Line, res.Rejected[i].Row.Line)
	}
}

func TestParseEmpty(t *testing.T) {
	res := Parse(nil)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Rejected)
}
