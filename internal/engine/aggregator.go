package engine

import (
	"cmp"
	"math"
	"runtime"
	"slices"
	"strings"

	"dietinsights/internal/models"

	"golang.org/x/sync/errgroup"
)

// aggChunkSize is fixed so partial sums (and therefore float results) do not
// depend on the machine's CPU count.
const aggChunkSize = 4096

// Group is one non-empty bucket of an aggregation.
type Group struct {
	Key         string
	DietType    string
	CuisineType string
	Stats       map[Metric]models.Stats
}

// AggregationResult is immutable once returned. Groups are ordered by key.
type AggregationResult struct {
	Version uint64
	GroupBy GroupBy
	Metrics []Metric
	Groups  []Group
}

// TopGroup holds the highest-ranked members of one group.
type TopGroup struct {
	Key         string
	DietType    string
	CuisineType string
	Records     []models.NutritionRecord
}

type aggStats struct {
	count int
	sum   [numMetrics]float64
	min   [numMetrics]float64
	max   [numMetrics]float64
}

func (a *aggStats) add(vals *[numMetrics]float64) {
	if a.count == 0 {
		a.min = *vals
		a.max = *vals
	} else {
		for m, v := range vals {
			a.min[m] = math.Min(a.min[m], v)
			a.max[m] = math.Max(a.max[m], v)
		}
	}
	a.count++
	for m, v := range vals {
		a.sum[m] += v
	}
}

func (a *aggStats) merge(b *aggStats) {
	if b.count == 0 {
		return
	}
	if a.count == 0 {
		*a = *b
		return
	}
	a.count += b.count
	for m := range a.sum {
		a.sum[m] += b.sum[m]
		a.min[m] = math.Min(a.min[m], b.min[m])
		a.max[m] = math.Max(a.max[m], b.max[m])
	}
}

// groupIndex maps every row to a bucket. For GroupByBoth the buckets form a
// flattened [diet][cuisine] matrix: diet*numCuisines + cuisine.
func (s *Snapshot) groupIndex(groupBy GroupBy) (numGroups int, bucket func(i int) int) {
	numCuisines := len(s.cuisineDict)
	switch groupBy {
	case GroupByCuisine:
		return numCuisines, func(i int) int { return int(s.cuisineIDs[i]) }
	case GroupByBoth:
		return len(s.dietDict) * numCuisines, func(i int) int {
			return int(s.dietIDs[i])*numCuisines + int(s.cuisineIDs[i])
		}
	default:
		return len(s.dietDict), func(i int) int { return int(s.dietIDs[i]) }
	}
}

// groupLabel reverses a bucket index into its key parts.
func (s *Snapshot) groupLabel(groupBy GroupBy, g int) (key, diet, cuisine string) {
	switch groupBy {
	case GroupByCuisine:
		cuisine = s.cuisineDict[g]
		return cuisine, "", cuisine
	case GroupByBoth:
		numCuisines := len(s.cuisineDict)
		diet = s.dietDict[g/numCuisines]
		cuisine = s.cuisineDict[g%numCuisines]
		return BothKey(diet, cuisine), diet, cuisine
	default:
		diet = s.dietDict[g]
		return diet, diet, ""
	}
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, "/", `\/`)

// BothKey joins a diet and cuisine into one group key. A "/" or "\" inside
// either part is backslash-escaped, so distinct pairs never share a key.
func BothKey(diet, cuisine string) string {
	return keyEscaper.Replace(diet) + "/" + keyEscaper.Replace(cuisine)
}

func compareGroups(aDiet, aCuisine, bDiet, bCuisine string) int {
	if c := cmp.Compare(aDiet, bDiet); c != 0 {
		return c
	}
	return cmp.Compare(aCuisine, bCuisine)
}

// Aggregate computes count, mean, min, max and sum of each requested metric per
// group. Groups with no matching record are omitted. Identical arguments against
// the same snapshot always produce identical results.
func (s *Snapshot) Aggregate(groupBy GroupBy, metrics []Metric, filter Filter) *AggregationResult {
	if len(metrics) == 0 {
		metrics = AllMetrics
	}
	numGroups, bucket := s.groupIndex(groupBy)
	match := s.compile(filter)

	// 1. Parallel partial aggregation over fixed-size chunks
	numChunks := (s.Len() + aggChunkSize - 1) / aggChunkSize
	partials := make([][]aggStats, numChunks)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for c := 0; c < numChunks; c++ {
		start := c * aggChunkSize
		end := min(start+aggChunkSize, s.Len())

		g.Go(func() error {
			p := make([]aggStats, numGroups)
			protein, carbs, fat := s.values[0], s.values[1], s.values[2]
			for i := start; i < end; i++ {
				if !match.match(i) {
					continue
				}
				vals := [numMetrics]float64{protein[i], carbs[i], fat[i]}
				p[bucket(i)].add(&vals)
			}
			partials[c] = p
			return nil
		})
	}
	_ = g.Wait()

	// 2. Merge in chunk order
	final := make([]aggStats, numGroups)
	for _, p := range partials {
		for i := range p {
			final[i].merge(&p[i])
		}
	}

	// 3. Build result, skipping empty buckets
	res := &AggregationResult{
		Version: s.Version,
		GroupBy: groupBy,
		Metrics: slices.Clone(metrics),
		Groups:  make([]Group, 0),
	}
	for gi := range final {
		st := &final[gi]
		if st.count == 0 {
			continue
		}
		key, diet, cuisine := s.groupLabel(groupBy, gi)
		grp := Group{Key: key, DietType: diet, CuisineType: cuisine, Stats: make(map[Metric]models.Stats, len(metrics))}
		for _, m := range metrics {
			idx := m.index()
			grp.Stats[m] = models.Stats{
				Count: st.count,
				Mean:  st.sum[idx] / float64(st.count),
				Min:   st.min[idx],
				Max:   st.max[idx],
				Sum:   st.sum[idx],
			}
		}
		res.Groups = append(res.Groups, grp)
	}

	slices.SortFunc(res.Groups, func(a, b Group) int {
		return compareGroups(a.DietType, a.CuisineType, b.DietType, b.CuisineType)
	})
	return res
}

// TopN returns, per group, the n records with the highest metric value. Ties keep
// source row order. n <= 0 yields an empty slice for every non-empty group.
func (s *Snapshot) TopN(groupBy GroupBy, metric Metric, n int, filter Filter) []TopGroup {
	numGroups, bucket := s.groupIndex(groupBy)
	match := s.compile(filter)

	members := make([][]int, numGroups)
	for i := 0; i < s.Len(); i++ {
		if match.match(i) {
			b := bucket(i)
			members[b] = append(members[b], i)
		}
	}

	vals := s.values[metric.index()]
	out := make([]TopGroup, 0)
	for gi, rows := range members {
		if len(rows) == 0 {
			continue
		}
		key, diet, cuisine := s.groupLabel(groupBy, gi)
		tg := TopGroup{Key: key, DietType: diet, CuisineType: cuisine, Records: []models.NutritionRecord{}}
		if n > 0 {
			slices.SortStableFunc(rows, func(a, b int) int { return cmp.Compare(vals[b], vals[a]) })
			for _, i := range rows[:min(n, len(rows))] {
				tg.Records = append(tg.Records, s.Records[i])
			}
		}
		out = append(out, tg)
	}

	slices.SortFunc(out, func(a, b TopGroup) int {
		return compareGroups(a.DietType, a.CuisineType, b.DietType, b.CuisineType)
	})
	return out
}
