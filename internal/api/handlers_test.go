package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dietinsights/internal/engine"
	"dietinsights/internal/models"
	"dietinsights/internal/query"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dataset = `Diet_type,Recipe_name,Cuisine_type,Protein(g),Carbs(g),Fat(g)
vegan,Tofu Bowl,asian,30,20,10
keto,Steak,american,60,0,30
keto,Bacon Eggs,american,25,2,40
vegan,Pasta,italian,10,60,5
`

type stringSource string

func (s stringSource) Name() string { return "inline" }

func (s stringSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

func newTestServer(t *testing.T, load bool, src engine.Source) (*echo.Echo, *engine.Store) {
	t.Helper()
	store := engine.NewStore(nil)
	if load {
		_, err := store.Reload(context.Background(), stringSource(dataset))
		require.NoError(t, err)
	}
	var reload ReloadFunc
	if src != nil {
		reload = func(ctx context.Context) (*engine.Snapshot, error) { return store.Reload(ctx, src) }
	}
	h := NewHandler(query.NewService(store), store, reload, time.Hour, nil)
	return NewServer(h, nil), store
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAggregateEndpoint(t *testing.T) {
	e, _ := newTestServer(t, true, nil)

	rec := do(e, http.MethodGet, "/api/aggregate?groupBy=diet_type&metrics=protein_g&topN=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	resp := decode[models.QueryResponse](t, rec)
	assert.Equal(t, "diet_type", resp.GroupBy)
	assert.Equal(t, uint64(1), resp.GeneratedAtVersion)
	require.Len(t, resp.Groups, 2)
	assert.Equal(t, "keto", resp.Groups[0].Key)
	assert.Equal(t, 42.5, resp.Groups[0].Stats["protein_g"].Mean)
	require.NotNil(t, resp.Groups[0].Top)
	require.Len(t, *resp.Groups[0].Top, 1)
	assert.Equal(t, "Steak", (*resp.Groups[0].Top)[0].RecipeName)
}

func TestAggregateEndpointTopPresence(t *testing.T) {
	e, _ := newTestServer(t, true, nil)

	groups := func(target string) []map[string]json.RawMessage {
		rec := do(e, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Groups []map[string]json.RawMessage `json:"groups"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotEmpty(t, body.Groups)
		return body.Groups
	}

	// topN=0 asked for: every group carries an empty list
	for _, g := range groups("/api/aggregate?groupBy=diet_type&topN=0") {
		require.Contains(t, g, "top")
		assert.JSONEq(t, `[]`, string(g["top"]))
	}

	// topN not asked for: no top field at all
	for _, g := range groups("/api/aggregate?groupBy=diet_type") {
		assert.NotContains(t, g, "top")
	}
}

func TestAggregateEndpointErrors(t *testing.T) {
	e, _ := newTestServer(t, true, nil)

	cases := []struct {
		target string
		field  string
	}{
		{"/api/aggregate?groupBy=invalid_dim", "groupBy"},
		{"/api/aggregate?groupBy=both&metrics=protein_g,sugar", "metrics"},
		{"/api/aggregate?groupBy=both&topN=many", "topN"},
		{"/api/aggregate?groupBy=both&diet=carnivore", "filter.dietTypes"},
	}
	for _, tc := range cases {
		rec := do(e, http.MethodGet, tc.target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.target)
		body := decode[errorBody](t, rec)
		assert.Equal(t, tc.field, body.Field, tc.target)
	}
}

func TestNotLoadedReturns503(t *testing.T) {
	e, _ := newTestServer(t, false, nil)

	for _, target := range []string{"/api/aggregate?groupBy=diet_type", "/api/recipes", "/api/diets", "/api/insights"} {
		rec := do(e, http.MethodGet, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}

	rec := do(e, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]interface{}](t, rec)
	assert.Equal(t, false, status["loaded"])
}

func TestRecipeEndpoints(t *testing.T) {
	e, _ := newTestServer(t, true, nil)

	rec := do(e, http.MethodGet, "/api/recipes?diet=keto&page=7")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.RecipePage](t, rec)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Recipes, 2)
	assert.Equal(t, "Bacon Eggs", page.Recipes[0].RecipeName)

	rec = do(e, http.MethodGet, "/api/recipes/steak")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[map[string]interface{}](t, rec)
	assert.Nil(t, detail["protein_to_carbs_ratio"])
	assert.Equal(t, "protein", detail["dominant_macro"])

	rec = do(e, http.MethodGet, "/api/recipes/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/diets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"diets":["keto","vegan"],"version":1}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/clusters?diet=vegan")
	require.Equal(t, http.StatusOK, rec.Code)
	clusters := decode[[]models.ClusterCount](t, rec)
	require.Len(t, clusters, 2)

	rec = do(e, http.MethodGet, "/api/insights")
	require.Equal(t, http.StatusOK, rec.Code)
	ins := decode[models.Insights](t, rec)
	assert.Equal(t, "keto", ins.HighestProtein.DietWithHighestSingleRecipe)
}

func TestReloadEndpoint(t *testing.T) {
	e, store := newTestServer(t, true, stringSource(dataset+"paleo,Liver,french,25,3,6\n"))

	rec := do(e, http.MethodPost, "/api/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	snap, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, 5, snap.Len())

	// Limited to one reload per hour in this test
	rec = do(e, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(e, http.MethodGet, "/api/status")
	status := decode[map[string]interface{}](t, rec)
	assert.Equal(t, true, status["loaded"])
	assert.EqualValues(t, 2, status["version"])
}

func TestReloadEndpointIntegrityFailure(t *testing.T) {
	e, store := newTestServer(t, true, stringSource("Diet_type,Recipe_name\nketo,A\n"))

	rec := do(e, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	snap, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)

	e, _ = newTestServer(t, true, nil)
	rec = do(e, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e, _ := newTestServer(t, true, nil)
	_ = do(e, http.MethodGet, "/api/aggregate?groupBy=diet_type")

	rec := do(e, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dietinsights_")
}
