package engine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strconv"
	"strings"

	"dietinsights/internal/models"

	"golang.org/x/sync/errgroup"
)

// Canonical field keys of a raw row.
const (
	FieldRecipeName  = "recipe_name"
	FieldCuisineType = "cuisine_type"
	FieldDietType    = "diet_type"
	FieldProtein     = "protein_g"
	FieldCarbs       = "carbs_g"
	FieldFat         = "fat_g"
)

var (
	stringFields  = []string{FieldRecipeName, FieldCuisineType, FieldDietType}
	numericFields = []string{FieldProtein, FieldCarbs, FieldFat}
)

// parseChunkSize bounds the rows handled by one parse worker.
const parseChunkSize = 4096

// RawRow is one untyped source row keyed by canonical field name.
// Line is the 1-based data row index (the header is not counted).
type RawRow struct {
	Line   int               `json:"line"`
	Fields map[string]string `json:"fields"`
}

// Rejection records a row that failed validation.
type Rejection struct {
	Row    RawRow     `json:"row"`
	Reason ReasonCode `json:"reason"`
	Field  string     `json:"field"`
	Value  string     `json:"value,omitempty"`
}

type ParseResult struct {
	Records  []models.NutritionRecord
	Rejected []Rejection
}

// Reasons counts rejections per reason code.
func (r ParseResult) Reasons() map[ReasonCode]int {
	out := make(map[ReasonCode]int)
	for _, rj := range r.Rejected {
		out[rj.Reason]++
	}
	return out
}

// --- 1. HEADER NORMALIZATION ---

// canonicalColumn maps a header cell to a field key, or "" for columns we ignore.
// "Protein (g)", "Protein(g)" and "protein_g" all map to FieldProtein.
func canonicalColumn(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	k := strings.ToLower(strings.Join(strings.Fields(h), ""))
	switch k {
	case "recipe_name", "recipename", "recipe":
		return FieldRecipeName
	case "cuisine_type", "cuisinetype", "cuisine":
		return FieldCuisineType
	case "diet_type", "diettype", "diet":
		return FieldDietType
	case "protein(g)", "protein_g", "protein":
		return FieldProtein
	case "carbs(g)", "carbs_g", "carbs":
		return FieldCarbs
	case "fat(g)", "fat_g", "fat":
		return FieldFat
	}
	return ""
}

// --- 2. CSV READER ---

// ReadRows reads a CSV document with a header row into raw rows.
// Short or malformed lines still produce a row so the parser can reject them.
func ReadRows(r io.Reader) ([]RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: empty source")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = canonicalColumn(h)
	}

	var rows []RawRow
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("read row %d: %w", line, err)
			}
			// Keep the line so it is accounted for as a rejection.
			rows = append(rows, RawRow{Line: line, Fields: map[string]string{}})
			continue
		}

		fields := make(map[string]string, len(numericFields)+len(stringFields))
		for i, v := range rec {
			if i >= len(columns) || columns[i] == "" {
				continue
			}
			fields[columns[i]] = v
		}
		rows = append(rows, RawRow{Line: line, Fields: fields})
	}
	return rows, nil
}

// --- 3. ROW VALIDATION ---

func parseRow(raw RawRow) (models.NutritionRecord, *Rejection) {
	reject := func(reason ReasonCode, field, value string) (models.NutritionRecord, *Rejection) {
		return models.NutritionRecord{}, &Rejection{Row: raw, Reason: reason, Field: field, Value: value}
	}

	var str [3]string
	for i, f := range stringFields {
		v := strings.TrimSpace(raw.Fields[f])
		if v == "" {
			return reject(MissingField, f, "")
		}
		str[i] = v
	}

	var num [3]float64
	for i, f := range numericFields {
		v := strings.TrimSpace(raw.Fields[f])
		if v == "" {
			return reject(MissingField, f, "")
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return reject(NotNumeric, f, v)
		}
		if n < 0 {
			return reject(NegativeValue, f, v)
		}
		num[i] = n
	}

	return models.NutritionRecord{
		Row:         raw.Line,
		RecipeName:  str[0],
		CuisineType: str[1],
		DietType:    strings.ToLower(str[2]),
		ProteinG:    num[0],
		CarbsG:      num[1],
		FatG:        num[2],
	}, nil
}

// --- 4. PARALLEL PARSE ---

// Parse validates raw rows into records. Every row lands in exactly one of
// Records or Rejected, and both keep input order.
func Parse(rows []RawRow) ParseResult {
	numChunks := (len(rows) + parseChunkSize - 1) / parseChunkSize

	type chunkResult struct {
		records  []models.NutritionRecord
		rejected []Rejection
	}
	parts := make([]chunkResult, numChunks)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < numChunks; i++ {
		start := i * parseChunkSize
		end := min(start+parseChunkSize, len(rows))

		g.Go(func() error {
			part := chunkResult{records: make([]models.NutritionRecord, 0, end-start)}
			for _, raw := range rows[start:end] {
				rec, rj := parseRow(raw)
				if rj != nil {
					part.rejected = append(part.rejected, *rj)
					continue
				}
				part.records = append(part.records, rec)
			}
			parts[i] = part
			return nil
		})
	}
	_ = g.Wait()

	// Concatenate in chunk order
	var res ParseResult
	res.Records = make([]models.NutritionRecord, 0, len(rows))
	for _, p := range parts {
		res.Records = append(res.Records, p.records...)
		res.Rejected = append(res.Rejected, p.rejected...)
	}
	return res
}
