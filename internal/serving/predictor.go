package serving

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kalambet/appraise/internal/blob"
	"github.com/kalambet/appraise/internal/feature"
)

// MissingFeatureError reports request fields that were absent or empty.
type MissingFeatureError struct {
	Fields []string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing features: %s", strings.Join(e.Fields, ", "))
}

// ModelUnavailableError reports that no trained bundle exists for the make.
type ModelUnavailableError struct {
	Make string
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("no model available for make %s", e.Make)
}

// Request carries the vehicle attributes a prediction needs. All six fields
// are required. Mileage is a pointer so an absent field is distinguishable
// from a legitimate zero odometer reading.
type Request struct {
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	Mileage      *float64 `json:"mileage"`
	Color        string   `json:"normalized_color"`
	Transmission string   `json:"transmission"`
}

// Response is the prediction result. Inputs are echoed back only when the
// predictor is configured to do so.
type Response struct {
	Prediction float64  `json:"prediction"`
	Inputs     *Request `json:"inputs,omitempty"`
}

// Predictor validates requests, resolves the make's bundle through the
// cache, and converts the model's log-price output back to a price.
type Predictor struct {
	cache      *Cache
	echoInputs bool
}

// NewPredictor creates a Predictor. When echoInputs is set, responses repeat
// the request fields alongside the prediction.
func NewPredictor(cache *Cache, echoInputs bool) *Predictor {
	return &Predictor{cache: cache, echoInputs: echoInputs}
}

// Predict returns the estimated price for the request. Errors distinguish
// bad input (*MissingFeatureError, *feature.UnknownCategoryError) from an
// untrained make (*ModelUnavailableError).
func (p *Predictor) Predict(ctx context.Context, req Request) (Response, error) {
	if missing := missingFields(req); len(missing) > 0 {
		return Response{}, &MissingFeatureError{Fields: missing}
	}

	b, err := p.cache.GetOrLoad(ctx, req.Make)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return Response{}, &ModelUnavailableError{Make: req.Make}
		}
		return Response{}, err
	}

	x, err := feature.Vector(feature.Input{
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		Mileage:      *req.Mileage,
		Color:        req.Color,
		Transmission: req.Transmission,
	}, b.Encoders)
	if err != nil {
		return Response{}, err
	}

	logPrice, err := b.Regressor.Predict(x)
	if err != nil {
		return Response{}, fmt.Errorf("predicting for %s: %w", req.Make, err)
	}

	resp := Response{Prediction: math.Exp(logPrice)}
	if p.echoInputs {
		echo := req
		resp.Inputs = &echo
	}
	return resp, nil
}

// Invalidate drops the make's cached bundle.
func (p *Predictor) Invalidate(makeName string) {
	p.cache.Invalidate(makeName)
}

func missingFields(req Request) []string {
	var missing []string
	if req.Make == "" {
		missing = append(missing, "make")
	}
	if req.Model == "" {
		missing = append(missing, "model")
	}
	if req.Year <= 0 {
		missing = append(missing, "year")
	}
	if req.Mileage == nil || *req.Mileage < 0 {
		missing = append(missing, "mileage")
	}
	if req.Color == "" {
		missing = append(missing, "normalized_color")
	}
	if req.Transmission == "" {
		missing = append(missing, "transmission")
	}
	sort.Strings(missing)
	return missing
}
