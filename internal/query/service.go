// Package query is the entry point for collaborators: it validates request
// parameters, runs them against the current dataset snapshot and caches the
// results per snapshot version.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"dietinsights/internal/engine"
	"dietinsights/internal/metrics"
	"dietinsights/internal/models"

	"github.com/go-playground/validator/v10"
)

// Request is the structured form of an aggregation query.
type Request struct {
	GroupBy string       `json:"groupBy" validate:"required,oneof=diet_type cuisine_type both"`
	Metrics []string     `json:"metrics" validate:"dive,oneof=protein_g carbs_g fat_g"`
	Filter  FilterParams `json:"filter"`
	TopN    *int         `json:"topN,omitempty"`
	RankBy  string       `json:"rankBy,omitempty" validate:"omitempty,oneof=protein_g carbs_g fat_g"`
}

type FilterParams struct {
	DietTypes    []string `json:"dietTypes" validate:"dive,required"`
	CuisineTypes []string `json:"cuisineTypes" validate:"dive,required"`
	Keyword      string   `json:"keyword"`
}

// filter never sets Where, so the result is always cacheable.
func (f FilterParams) filter() engine.Filter {
	return engine.Filter{DietTypes: f.DietTypes, CuisineTypes: f.CuisineTypes, Keyword: f.Keyword}
}

var (
	validate    = validator.New()
	indexSuffix = regexp.MustCompile(`\[\d+\]`)
)

// ErrRecipeNotFound is returned by Recipe for an unknown name.
var ErrRecipeNotFound = errors.New("recipe not found")

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// validationError turns the first validator failure into an InvalidParameterError.
// "Request.filter.dietTypes[1]" becomes "filter.dietTypes".
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	return &engine.InvalidParameterError{
		Field: indexSuffix.ReplaceAllString(field, ""),
		Value: fmt.Sprint(fe.Value()),
	}
}

type Service struct {
	store  *engine.Store
	cache  *Cache
	logger *slog.Logger
}

type Option func(*Service)

func WithCache(c *Cache) Option { return func(s *Service) { s.cache = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(store *engine.Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCache(DefaultCacheEntries)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) snapshot(kind string) (*engine.Snapshot, error) {
	snap, err := s.store.Current()
	if err != nil {
		metrics.QueryErrors.WithLabelValues("not_loaded").Inc()
		s.logger.Debug("query before first load", slog.String("kind", kind))
		return nil, err
	}
	return snap, nil
}

func (s *Service) invalid(err error) error {
	metrics.QueryErrors.WithLabelValues("invalid_parameter").Inc()
	s.logger.Debug("rejected query", slog.String("error", err.Error()))
	return err
}

// checkFilter rejects diet or cuisine values that do not occur in the snapshot.
func (s *Service) checkFilter(snap *engine.Snapshot, f FilterParams) error {
	for _, d := range f.DietTypes {
		if !snap.HasDiet(d) {
			return s.invalid(&engine.InvalidParameterError{Field: "filter.dietTypes", Value: d})
		}
	}
	for _, c := range f.CuisineTypes {
		if !snap.HasCuisine(c) {
			return s.invalid(&engine.InvalidParameterError{Field: "filter.cuisineTypes", Value: c})
		}
	}
	return nil
}

func timed[T any](kind string, fn func() T) func() T {
	return func() T {
		start := time.Now()
		out := fn()
		metrics.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		return out
	}
}

// Handle validates req and answers it from the current snapshot.
func (s *Service) Handle(req Request) (*models.QueryResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, s.invalid(validationError(err))
	}

	groupBy, err := engine.ParseGroupBy(req.GroupBy)
	if err != nil {
		return nil, s.invalid(err)
	}
	metricList := engine.AllMetrics
	if len(req.Metrics) > 0 {
		metricList = make([]engine.Metric, 0, len(req.Metrics))
		for _, m := range req.Metrics {
			pm, err := engine.ParseMetric(m)
			if err != nil {
				return nil, s.invalid(err)
			}
			metricList = append(metricList, pm)
		}
	}
	rankBy := metricList[0]
	metricList = canonicalMetrics(metricList)
	if req.RankBy != "" {
		if rankBy, err = engine.ParseMetric(req.RankBy); err != nil {
			return nil, s.invalid(&engine.InvalidParameterError{Field: "rankBy", Value: req.RankBy})
		}
	}

	snap, err := s.snapshot("aggregate")
	if err != nil {
		return nil, err
	}
	if err := s.checkFilter(snap, req.Filter); err != nil {
		return nil, err
	}

	filter := req.Filter.filter()
	names := make([]string, len(metricList))
	for i, m := range metricList {
		names[i] = string(m)
	}
	params := "aggregate|" + string(groupBy) + "|" + strings.Join(names, ",") + "|" + filter.Key()
	if req.TopN != nil {
		params += "|top=" + strconv.Itoa(*req.TopN) + ":" + string(rankBy)
	}

	return cached(s.cache, snap.Version, params, timed("aggregate", func() *models.QueryResponse {
		agg := snap.Aggregate(groupBy, metricList, filter)

		var tops map[groupID][]models.NutritionRecord
		if req.TopN != nil {
			tops = make(map[groupID][]models.NutritionRecord)
			for _, tg := range snap.TopN(groupBy, rankBy, *req.TopN, filter) {
				tops[groupID{tg.DietType, tg.CuisineType}] = tg.Records
			}
		}
		return buildResponse(agg, names, tops)
	})), nil
}

// canonicalMetrics drops repeated metrics and puts the rest in column order.
func canonicalMetrics(in []engine.Metric) []engine.Metric {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b engine.Metric) int {
		return slices.Index(engine.AllMetrics, a) - slices.Index(engine.AllMetrics, b)
	})
	return slices.Compact(out)
}

// groupID identifies a group by its key parts rather than the joined key.
type groupID struct {
	diet, cuisine string
}

func buildResponse(agg *engine.AggregationResult, metricNames []string, tops map[groupID][]models.NutritionRecord) *models.QueryResponse {
	resp := &models.QueryResponse{
		GroupBy:            string(agg.GroupBy),
		Metrics:            metricNames,
		GeneratedAtVersion: agg.Version,
		Groups:             make([]models.GroupPayload, 0, len(agg.Groups)),
	}
	for _, g := range agg.Groups {
		gp := models.GroupPayload{
			Key:         g.Key,
			DietType:    g.DietType,
			CuisineType: g.CuisineType,
			Stats:       make(map[string]models.Stats, len(g.Stats)),
		}
		for m, st := range g.Stats {
			gp.Stats[string(m)] = st
		}
		if tops != nil {
			top := tops[groupID{g.DietType, g.CuisineType}]
			if top == nil {
				top = []models.NutritionRecord{}
			}
			gp.Top = &top
		}
		resp.Groups = append(resp.Groups, gp)
	}
	return resp
}

// Recipes pages through recipes filtered by diet and keyword.
func (s *Service) Recipes(diet, keyword string, page int) (*models.RecipePage, error) {
	f, snap, err := s.dietFilter("recipes", diet)
	if err != nil {
		return nil, err
	}
	f.Keyword = keyword
	params := "recipes|" + f.Key() + "|" + strconv.Itoa(page)
	return cached(s.cache, snap.Version, params, timed("recipes", func() *models.RecipePage {
		p := snap.Recipes(f, page, engine.DefaultPerPage)
		return &p
	})), nil
}

// Diets lists the diet types of the current snapshot.
func (s *Service) Diets() ([]string, uint64, error) {
	snap, err := s.snapshot("diets")
	if err != nil {
		return nil, 0, err
	}
	return snap.DietTypes(), snap.Version, nil
}

// Clusters counts recipes per dominant macro, optionally within one diet.
func (s *Service) Clusters(diet string) ([]models.ClusterCount, error) {
	f, snap, err := s.dietFilter("clusters", diet)
	if err != nil {
		return nil, err
	}
	return cached(s.cache, snap.Version, "clusters|"+f.Key(), timed("clusters", func() []models.ClusterCount {
		return snap.Clusters(f)
	})), nil
}

// Insights bundles the modal cuisine per diet, the highest protein summary and
// the macro correlations, optionally within one diet.
func (s *Service) Insights(diet string) (*models.Insights, error) {
	f, snap, err := s.dietFilter("insights", diet)
	if err != nil {
		return nil, err
	}
	return cached(s.cache, snap.Version, "insights|"+f.Key(), timed("insights", func() *models.Insights {
		out := &models.Insights{
			Version:           snap.Version,
			MostCommonCuisine: snap.MostCommonCuisine(f),
			Correlations:      snap.Correlations(f),
		}
		out.HighestProtein, _ = snap.HighestProtein(f)
		return out
	})), nil
}

// Recipe looks up a single recipe by name.
func (s *Service) Recipe(name string) (*models.NutritionRecord, error) {
	snap, err := s.snapshot("recipe")
	if err != nil {
		return nil, err
	}
	rec, ok := snap.FindRecipe(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRecipeNotFound, name)
	}
	return &rec, nil
}

func (s *Service) dietFilter(kind, diet string) (engine.Filter, *engine.Snapshot, error) {
	snap, err := s.snapshot(kind)
	if err != nil {
		return engine.Filter{}, nil, err
	}
	var f engine.Filter
	if diet = strings.TrimSpace(diet); diet != "" {
		if err := s.checkFilter(snap, FilterParams{DietTypes: []string{diet}}); err != nil {
			return engine.Filter{}, nil, err
		}
		f.DietTypes = []string{diet}
	}
	return f, snap, nil
}
