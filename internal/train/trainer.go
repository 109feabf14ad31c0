// Package train produces one model bundle per make from historical auction
// results: filter, transform, cross-validated grid search, score gate,
// bundle upload, metadata upsert. It runs as an offline batch process and
// shares nothing with the serving process beyond the object store and the
// metadata table.
package train

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/appraise/internal/blob"
	"github.com/kalambet/appraise/internal/bundle"
	"github.com/kalambet/appraise/internal/feature"
	"github.com/kalambet/appraise/internal/model"
	"github.com/kalambet/appraise/internal/storage"
)

// InsufficientDataError reports a make skipped for having too few usable
// rows. It is a skip, not a failure: no bundle and no metadata are written.
type InsufficientDataError struct {
	Make string
	Rows int
	Min  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("make %s has %d usable rows, need at least %d", e.Make, e.Rows, e.Min)
}

// LowScoreError reports a make whose fitted model missed the accuracy floor.
// Also a skip: the previous bundle, if any, stays in place.
type LowScoreError struct {
	Make  string
	Score float64
	Floor float64
}

func (e *LowScoreError) Error() string {
	return fmt.Sprintf("make %s scored %.3f, below floor %.3f", e.Make, e.Score, e.Floor)
}

// Config holds the training thresholds. Zero values fall back to defaults.
type Config struct {
	MinObservations int     // minimum listings per model value (default 10)
	MinRows         int     // minimum usable rows per make (default 20)
	PriceCeiling    float64 // outlier cutoff, exclusive (default 1,000,000)
	ScoreFloor      float64 // R² a bundle must exceed (default 0.8)
	Holdout         bool    // gate on cross-validation score instead of in-sample
	Seed            int64
}

func (c Config) withDefaults() Config {
	if c.MinObservations <= 0 {
		c.MinObservations = 10
	}
	if c.MinRows <= 0 {
		c.MinRows = 20
	}
	if c.PriceCeiling <= 0 {
		c.PriceCeiling = 1_000_000
	}
	if c.ScoreFloor <= 0 {
		c.ScoreFloor = 0.8
	}
	if c.Seed == 0 {
		c.Seed = 33
	}
	return c
}

// AuctionSource provides the raw rows and the make catalog.
type AuctionSource interface {
	AuctionsByMake(makeName string) ([]storage.AuctionRecord, error)
	Makes() ([]string, error)
}

// ScoreSink persists training outcomes.
type ScoreSink interface {
	UpsertModelScore(storage.ModelScore) error
}

// Trainer runs the per-make training pipeline.
type Trainer struct {
	source AuctionSource
	scores ScoreSink
	blobs  blob.ObjectStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Trainer with the given dependencies.
func New(source AuctionSource, scores ScoreSink, blobs blob.ObjectStore, cfg Config) *Trainer {
	return &Trainer{
		source: source,
		scores: scores,
		blobs:  blobs,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Result is one accepted make's training outcome.
type Result struct {
	Make   string
	RunID  string
	Score  float64
	Params Params
	Rows   int
}

// TrainMake runs the full pipeline for one make: on success the bundle is
// uploaded (replacing any previous one) and the score row upserted. Skips are
// reported as *InsufficientDataError or *LowScoreError.
func (t *Trainer) TrainMake(ctx context.Context, makeName string) (*Result, error) {
	records, err := t.source.AuctionsByMake(makeName)
	if err != nil {
		return nil, fmt.Errorf("fetching auctions for %s: %w", makeName, err)
	}

	usable := filterFrequentModels(records, t.cfg.MinObservations)
	if len(usable) < t.cfg.MinRows {
		return nil, &InsufficientDataError{Make: makeName, Rows: len(usable), Min: t.cfg.MinRows}
	}

	ds, encoders, err := buildDataset(usable, t.now().UTC(), t.cfg.PriceCeiling)
	if err != nil {
		return nil, fmt.Errorf("preparing training rows for %s: %w", makeName, err)
	}
	if ds.Len() < t.cfg.MinRows {
		return nil, &InsufficientDataError{Make: makeName, Rows: ds.Len(), Min: t.cfg.MinRows}
	}

	reg, params, score, err := gridSearch(ctx, ds, t.cfg.Seed, t.cfg.Holdout)
	if err != nil {
		return nil, fmt.Errorf("grid search for %s: %w", makeName, err)
	}
	if score <= t.cfg.ScoreFloor {
		return nil, &LowScoreError{Make: makeName, Score: score, Floor: t.cfg.ScoreFloor}
	}

	runID := uuid.New().String()
	b := &bundle.Bundle{
		Regressor: reg,
		Encoders:  encoders,
		Manifest: bundle.Manifest{
			Make:      makeName,
			RunID:     runID,
			Family:    params.Family,
			CreatedAt: t.now().UTC(),
		},
	}
	if err := t.upload(ctx, makeName, b); err != nil {
		return nil, err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("serializing params for %s: %w", makeName, err)
	}
	if err := t.scores.UpsertModelScore(storage.ModelScore{
		Make:       makeName,
		Score:      score,
		ParamsJSON: string(paramsJSON),
		RunID:      runID,
		UpdatedAt:  t.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("recording score for %s: %w", makeName, err)
	}

	return &Result{Make: makeName, RunID: runID, Score: score, Params: params, Rows: ds.Len()}, nil
}

// upload packs the bundle in a transient workspace and writes the archive to
// the object store under the make's key.
func (t *Trainer) upload(ctx context.Context, makeName string, b *bundle.Bundle) error {
	dir, err := os.MkdirTemp("", "appraise-bundle-*")
	if err != nil {
		return fmt.Errorf("creating bundle workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	archivePath, err := bundle.Pack(dir, b)
	if err != nil {
		return fmt.Errorf("packing bundle for %s: %w", makeName, err)
	}
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("reading packed bundle: %w", err)
	}
	if err := t.blobs.Put(ctx, bundle.Key(makeName), data); err != nil {
		return fmt.Errorf("uploading bundle for %s: %w", makeName, err)
	}
	return nil
}

// RunSummary counts outcomes of a batch run over all makes.
type RunSummary struct {
	Trained int
	Skipped int
	Failed  int
}

// Run processes every known make sequentially. A single make's skip or
// failure is logged and the run continues.
func (t *Trainer) Run(ctx context.Context) (RunSummary, error) {
	makes, err := t.source.Makes()
	if err != nil {
		return RunSummary{}, fmt.Errorf("listing makes: %w", err)
	}
	t.logger.Info("training run starting", "makes", len(makes))

	var summary RunSummary
	for _, m := range makes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := t.TrainMake(ctx, m)
		switch {
		case err == nil:
			summary.Trained++
			t.logger.Info("trained make", "make", m, "score", res.Score, "family", res.Params.Family, "rows", res.Rows)
		case isSkip(err):
			summary.Skipped++
			t.logger.Info("skipped make", "make", m, "reason", err.Error())
		default:
			summary.Failed++
			t.logger.Error("make failed", "make", m, "error", err)
		}
	}

	t.logger.Info("training run finished",
		"trained", summary.Trained, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func isSkip(err error) bool {
	var insufficient *InsufficientDataError
	var lowScore *LowScoreError
	return errors.As(err, &insufficient) || errors.As(err, &lowScore)
}

// filterFrequentModels drops rows whose model value occurs fewer than min
// times within the make, so rare models never enter the encoder vocabulary.
func filterFrequentModels(records []storage.AuctionRecord, min int) []storage.AuctionRecord {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		counts[r.Model]++
	}

	out := records[:0:0]
	for _, r := range records {
		if counts[r.Model] >= min {
			out = append(out, r)
		}
	}
	return out
}

// buildDataset turns auction rows into the training matrix: price resolution
// with bid fallback, outlier cutoff, log transforms, recency weights, and the
// three fitted encoders.
func buildDataset(records []storage.AuctionRecord, ref time.Time, priceCeiling float64) (model.Dataset, feature.Encoders, error) {
	type row struct {
		in     feature.Input
		price  float64
		weight float64
	}

	var rows []row
	var models, colors, transmissions []string
	for _, r := range records {
		price := r.SoldPrice
		if price <= 0 {
			price = r.BidAmount
		}
		if price <= 0 || price >= priceCeiling {
			continue
		}

		rows = append(rows, row{
			in: feature.Input{
				Make:         r.Make,
				Model:        r.Model,
				Year:         r.Year,
				Mileage:      r.Mileage,
				Color:        r.Color,
				Transmission: r.Transmission,
			},
			price:  price,
			weight: feature.RecencyWeight(r.EndDate, ref),
		})
		models = append(models, r.Model)
		colors = append(colors, r.Color)
		transmissions = append(transmissions, r.Transmission)
	}

	encoders := feature.Encoders{
		Model:        feature.FitLabelEncoder("model", models),
		Color:        feature.FitLabelEncoder("normalized_color", colors),
		Transmission: feature.FitLabelEncoder("transmission", transmissions),
	}

	ds := model.Dataset{
		X: make([][]float64, 0, len(rows)),
		Y: make([]float64, 0, len(rows)),
		W: make([]float64, 0, len(rows)),
	}
	for _, r := range rows {
		x, err := feature.Vector(r.in, encoders)
		if err != nil {
			return model.Dataset{}, feature.Encoders{}, fmt.Errorf("transforming training row: %w", err)
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, math.Log(r.price))
		ds.W = append(ds.W, r.weight)
	}
	return ds, encoders, nil
}
