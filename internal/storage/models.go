package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AuctionRecord is one completed auction listing. Zero-valued SoldPrice or
// BidAmount means the column was null; training resolves the price as
// sold_price falling back to bid_amount and drops rows with neither.
type AuctionRecord struct {
	Make         string
	Model        string
	Year         int
	Mileage      float64
	Color        string // normalized color name
	Transmission string
	SoldPrice    float64
	BidAmount    float64
	EndDate      time.Time
	Status       string
}

// ModelScore is the persisted training outcome for one make.
type ModelScore struct {
	Make       string
	Score      float64
	ParamsJSON string // chosen hyperparameters, JSON object
	RunID      string
	UpdatedAt  time.Time
}
