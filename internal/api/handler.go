// Package api exposes the prediction endpoint plus the authenticated
// management surface over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/appraise/internal/feature"
	"github.com/kalambet/appraise/internal/serving"
	"github.com/kalambet/appraise/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ScoreStore is the slice of the metadata store the API reads.
type ScoreStore interface {
	ModelScore(makeName string) (storage.ModelScore, error)
	ModelScores() ([]storage.ModelScore, error)
	Makes() ([]string, error)
}

type Deps struct {
	Predictor *serving.Predictor
	Scores    ScoreStore
	Token     string
}

// NewHandler returns the HTTP handler. Prediction, health, and metrics are
// public; the management routes require the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/models/predict", handlePredict(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/makes", handleListMakes(deps))
		r.Get("/models", handleListModels(deps))
		r.Get("/models/{make}", handleGetModel(deps))
		r.Post("/models/{make}/invalidate", handleInvalidate(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handlePredict(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req serving.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			predictionsTotal.WithLabelValues(outcomeBadRequest).Inc()
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		resp, err := deps.Predictor.Predict(r.Context(), req)
		if err != nil {
			var missing *serving.MissingFeatureError
			var unknown *feature.UnknownCategoryError
			var unavailable *serving.ModelUnavailableError
			switch {
			case errors.As(err, &missing), errors.As(err, &unknown):
				predictionsTotal.WithLabelValues(outcomeBadRequest).Inc()
				httpError(w, http.StatusBadRequest, "%v", err)
			case errors.As(err, &unavailable):
				predictionsTotal.WithLabelValues(outcomeUnavailable).Inc()
				httpError(w, http.StatusServiceUnavailable, "%v", err)
			default:
				predictionsTotal.WithLabelValues(outcomeError).Inc()
				httpError(w, http.StatusInternalServerError, "prediction failed: %v", err)
			}
			return
		}

		predictionsTotal.WithLabelValues(outcomeOK).Inc()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleListMakes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		makes, err := deps.Scores.Makes()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list makes: %v", err)
			return
		}
		if makes == nil {
			makes = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(makes)
	}
}

func handleListModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scores, err := deps.Scores.ModelScores()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list models: %v", err)
			return
		}
		if scores == nil {
			scores = []storage.ModelScore{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(scores)
	}
}

func handleGetModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		makeName := chi.URLParam(r, "make")

		score, err := deps.Scores.ModelScore(makeName)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "no model for make %s", makeName)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to get model: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(score)
	}
}

func handleInvalidate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		makeName := chi.URLParam(r, "make")
		deps.Predictor.Invalidate(makeName)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "invalidated", "make": makeName})
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}
