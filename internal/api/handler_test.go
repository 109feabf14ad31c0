package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/kalambet/appraise/internal/blob"
	"github.com/kalambet/appraise/internal/bundle"
	"github.com/kalambet/appraise/internal/feature"
	"github.com/kalambet/appraise/internal/model"
	"github.com/kalambet/appraise/internal/serving"
	"github.com/kalambet/appraise/internal/storage"
)

const testToken = "test-token"

type mapStore struct {
	objects map[string][]byte
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, blob.ErrNotExist
	}
	return data, nil
}

func (s *mapStore) Put(_ context.Context, key string, data []byte) error {
	s.objects[key] = data
	return nil
}

type fakeScores struct {
	modelScoreFn  func(string) (storage.ModelScore, error)
	modelScoresFn func() ([]storage.ModelScore, error)
	makesFn       func() ([]string, error)
}

func (f *fakeScores) ModelScore(makeName string) (storage.ModelScore, error) {
	return f.modelScoreFn(makeName)
}

func (f *fakeScores) ModelScores() ([]storage.ModelScore, error) {
	return f.modelScoresFn()
}

func (f *fakeScores) Makes() ([]string, error) {
	return f.makesFn()
}

// trainedBundle fits a tiny model for the make and returns archive bytes.
func trainedBundle(t *testing.T, makeName string) []byte {
	t.Helper()

	encoders := feature.Encoders{
		Model:        feature.FitLabelEncoder("model", []string{"911", "Cayman"}),
		Color:        feature.FitLabelEncoder("normalized_color", []string{"black", "red"}),
		Transmission: feature.FitLabelEncoder("transmission", []string{"manual", "automatic"}),
	}

	var ds model.Dataset
	for i := 0; i < 24; i++ {
		in := feature.Input{
			Make:         makeName,
			Model:        []string{"911", "Cayman"}[i%2],
			Year:         2005 + i%15,
			Mileage:      float64(3000 * (i + 1)),
			Color:        []string{"black", "red"}[i%2],
			Transmission: []string{"manual", "automatic"}[i%2],
		}
		x, err := feature.Vector(in, encoders)
		if err != nil {
			t.Fatalf("building training vector: %v", err)
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, 11.0+0.03*float64(in.Year-2005)-0.1*math.Log1p(in.Mileage))
		ds.W = append(ds.W, 1.0)
	}

	reg := model.TrainForest(ds, model.ForestConfig{
		Trees: 5, MaxDepth: 6, Seed: 1, Monotone: feature.MonotoneSigns[:],
	})

	path, err := bundle.Pack(t.TempDir(), &bundle.Bundle{
		Regressor: reg,
		Encoders:  encoders,
		Manifest:  bundle.Manifest{Make: makeName, RunID: "test-run"},
	})
	if err != nil {
		t.Fatalf("packing bundle: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	return data
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	store := &mapStore{objects: map[string][]byte{
		bundle.Key("Porsche"): trainedBundle(t, "Porsche"),
	}}
	deps := Deps{
		Predictor: serving.NewPredictor(serving.NewCache(store), false),
		Scores: &fakeScores{
			modelScoreFn: func(makeName string) (storage.ModelScore, error) {
				if makeName != "Porsche" {
					return storage.ModelScore{}, storage.ErrNotFound
				}
				return storage.ModelScore{Make: "Porsche", Score: 0.9, RunID: "test-run"}, nil
			},
			modelScoresFn: func() ([]storage.ModelScore, error) {
				return []storage.ModelScore{{Make: "Porsche", Score: 0.9}}, nil
			},
			makesFn: func() ([]string, error) {
				return []string{"Ferrari", "Porsche"}, nil
			},
		},
		Token: testToken,
	}
	return NewHandler(deps)
}

func postPredict(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/models/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPredictEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := postPredict(t, h, `{
		"make": "Porsche", "model": "911", "year": 2015, "mileage": 40000,
		"normalized_color": "black", "transmission": "manual"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Prediction float64 `json:"prediction"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Prediction <= 0 {
		t.Errorf("prediction = %v, want positive price", resp.Prediction)
	}
}

func TestPredictHigherMileageNeverCostsMore(t *testing.T) {
	h := newTestHandler(t)

	predictAt := func(mileage float64) float64 {
		body, _ := json.Marshal(serving.Request{
			Make: "Porsche", Model: "911", Year: 2015, Mileage: &mileage,
			Color: "black", Transmission: "manual",
		})
		rec := postPredict(t, h, string(body))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d at mileage %v: %s", rec.Code, mileage, rec.Body.String())
		}
		var resp struct {
			Prediction float64 `json:"prediction"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		return resp.Prediction
	}

	prev := predictAt(1000)
	for _, m := range []float64{10000, 30000, 60000, 120000} {
		cur := predictAt(m)
		if cur > prev {
			t.Errorf("prediction rose from %v to %v as mileage grew to %v", prev, cur, m)
		}
		prev = cur
	}
}

func TestPredictValidationErrors(t *testing.T) {
	h := newTestHandler(t)

	cases := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed json",
			body:     `{"make":`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid request body",
		},
		{
			name:     "missing fields",
			body:     `{"make": "Porsche", "mileage": 40000}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "missing features",
		},
		{
			name: "missing mileage",
			body: `{"make": "Porsche", "model": "911", "year": 2015,
				"normalized_color": "black", "transmission": "manual"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "mileage",
		},
		{
			name: "unknown model",
			body: `{"make": "Porsche", "model": "UnknownModelXYZ", "year": 2015, "mileage": 40000,
				"normalized_color": "black", "transmission": "manual"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "UnknownModelXYZ",
		},
		{
			name: "unknown color",
			body: `{"make": "Porsche", "model": "911", "year": 2015, "mileage": 40000,
				"normalized_color": "chartreuse", "transmission": "manual"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "chartreuse",
		},
		{
			name: "untrained make",
			body: `{"make": "Lancia", "model": "Delta", "year": 1992, "mileage": 80000,
				"normalized_color": "red", "transmission": "manual"}`,
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "no model available",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postPredict(t, h, tc.body)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tc.wantCode, rec.Body.String())
			}

			var resp struct {
				Error string `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decoding error response: %v", err)
			}
			if !strings.Contains(resp.Error, tc.wantErr) {
				t.Errorf("error = %q, want it to mention %q", resp.Error, tc.wantErr)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"ok"`)) {
		t.Errorf("body = %s, want ok status", rec.Body.String())
	}
}

func TestManagementRoutesRequireToken(t *testing.T) {
	h := newTestHandler(t)

	for _, path := range []string{"/makes", "/models", "/models/Porsche"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want 401", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /models with token: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var scores []storage.ModelScore
	if err := json.NewDecoder(rec.Body).Decode(&scores); err != nil {
		t.Fatalf("decoding scores: %v", err)
	}
	if len(scores) != 1 || scores[0].Make != "Porsche" {
		t.Errorf("scores = %+v, want one Porsche row", scores)
	}
}

func TestGetModelNotFound(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/models/Lancia", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404; body %s", rec.Code, rec.Body.String())
	}
}

func TestInvalidateEndpoint(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/models/Porsche/invalidate", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "invalidated") {
		t.Errorf("body = %s, want invalidated status", rec.Body.String())
	}
}
