package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/san-kum/stochsim/internal/model"
	"github.com/san-kum/stochsim/internal/storage"
)

func newTestServer(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	return New(experiment.NewRegistry(), opts...).Handler()
}

func post(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/v1/simulate", &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) SimulateResponse {
	t.Helper()
	var resp SimulateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestPresets(t *testing.T) {
	h := newTestServer(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/presets", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &names))
	assert.Contains(t, names, "food_chain")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/presets/seasonal", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Season"`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/presets/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSimulatePreset(t *testing.T) {
	h := newTestServer(t)
	rr := post(t, h, SimulateRequest{Preset: "birth_death", TMax: 1, Realizations: 3, Seed: 11})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode(t, rr)
	assert.Equal(t, "birth_death", resp.Model)
	assert.Equal(t, "ssa", resp.Kind)
	assert.Equal(t, int64(11), resp.Seed)
	assert.Equal(t, []string{"N"}, resp.VarNames)
	assert.Len(t, resp.Realizations, 3)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, resp.Stride)
	for _, rz := range resp.Realizations {
		assert.Equal(t, 0.0, rz.Times[0])
		assert.Equal(t, []float64{100}, rz.States[0])
		assert.LessOrEqual(t, rz.Times[len(rz.Times)-1], 1.0)
	}
	assert.Contains(t, resp.Metrics, "events_avg")
}

func TestSimulateInlineModel(t *testing.T) {
	h := newTestServer(t)
	m := &model.Model{
		Name:       "decay",
		Kind:       "euler-maruyama",
		Components: []model.Component{{Name: "X", Init: 1, Drift: "-k * X", Diffusion: "0"}},
		Parameters: []model.Parameter{{Name: "k", Value: 1}},
	}
	rr := post(t, h, SimulateRequest{Model: m, TMax: 1, Dt: 0.01, Seed: 1, Params: map[string]float64{"k": 2}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode(t, rr)
	assert.Equal(t, "sde", resp.Kind)
	final := resp.Realizations[0].States[100][0]
	assert.InDelta(t, math.Pow(0.98, 100), final, 1e-9)
}

func TestSimulateDivergingSDE(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := storage.NewRedisCache(mr.Addr(), "", 0)
	t.Cleanup(func() { cache.Close() })
	h := newTestServer(t, WithCache(cache))

	m := &model.Model{
		Name:       "blowup",
		Kind:       "sde",
		Components: []model.Component{{Name: "X", Init: 10, Drift: "X * X", Diffusion: "0"}},
	}
	rr := post(t, h, SimulateRequest{Model: m, TMax: 1, Dt: 0.01, Seed: 1})

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "realization 0")
	assert.Contains(t, resp.Error, "invalid state (NaN/Inf)")
	assert.Empty(t, mr.Keys())
}

func TestWriteJSONUnencodable(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]float64{"x": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "encode response")
}

func TestSimulateErrors(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		substr string
	}{
		{"malformed", `{"preset": `, http.StatusBadRequest, "invalid request body"},
		{"unknown field", `{"preset": "food_chain", "bogus": 1}`, http.StatusBadRequest, "invalid request body"},
		{"empty", `{}`, http.StatusBadRequest, "preset or model"},
		{"unknown preset", `{"preset": "nope"}`, http.StatusNotFound, "unknown model"},
		{"unknown param", `{"preset": "food_chain", "params": {"zz": 1}}`, http.StatusUnprocessableEntity, "zz"},
		{"bad kind", `{"model": {"name": "m", "kind": "ode"}}`, http.StatusUnprocessableEntity, "unknown model kind"},
		{"syntax", `{"model": {"name": "m", "kind": "ssa", "variables": [{"name": "X", "init": 1}],
			"transitions": [{"rate": "X *", "change": [1]}]}}`, http.StatusUnprocessableEntity, "transition 1 rate"},
		{"bad dt", `{"preset": "ornstein_uhlenbeck", "dt": -1}`, http.StatusUnprocessableEntity, "invalid run configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/simulate", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.substr)
		})
	}
}

func TestSimulateDownsamples(t *testing.T) {
	h := newTestServer(t)
	rr := post(t, h, SimulateRequest{Preset: "ornstein_uhlenbeck", TMax: 10, Dt: 0.01, Realizations: 2, Seed: 3, MaxPoints: 100})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode(t, rr)
	assert.Equal(t, 21, resp.Stride)
	for _, rz := range resp.Realizations {
		assert.Equal(t, 0.0, rz.Times[0])
		assert.InDelta(t, 10.0, rz.Times[len(rz.Times)-1], 1e-9)
		assert.Less(t, len(rz.Times), 60)
	}
}

func TestSimulateCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := storage.NewRedisCache(mr.Addr(), "", 0)
	t.Cleanup(func() { cache.Close() })
	h := newTestServer(t, WithCache(cache))

	req := SimulateRequest{Preset: "birth_death", TMax: 1, Realizations: 2, Seed: 5}
	first := decode(t, post(t, h, req))
	assert.False(t, first.Cached)
	assert.Len(t, mr.Keys(), 1)

	second := decode(t, post(t, h, req))
	assert.True(t, second.Cached)
	assert.Equal(t, first.Realizations, second.Realizations)

	req.Seed = 0
	third := decode(t, post(t, h, req))
	assert.False(t, third.Cached)
	assert.Len(t, mr.Keys(), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)
	post(t, h, SimulateRequest{Preset: "birth_death", TMax: 0.5, Seed: 1})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `stochsim_runs_total{kind="ssa",outcome="ok"} 1`)
}
