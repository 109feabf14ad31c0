package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	s2.Close()
}

func TestAuctionsByMakeFiltersIncomplete(t *testing.T) {
	s := openTestStore(t)
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	complete := AuctionRecord{
		Make: "Porsche", Model: "911", Year: 2015, Mileage: 40000,
		Color: "black", Transmission: "manual", SoldPrice: 85000,
		EndDate: end, Status: "sold",
	}
	noModel := complete
	noModel.Model = ""
	noPrice := complete
	noPrice.SoldPrice = 0
	noPrice.BidAmount = 0
	bidOnly := complete
	bidOnly.Model = "Cayman"
	bidOnly.SoldPrice = 0
	bidOnly.BidAmount = 42000
	otherMake := complete
	otherMake.Make = "Ferrari"

	for _, a := range []AuctionRecord{complete, noModel, noPrice, bidOnly, otherMake} {
		if err := s.InsertAuction(a); err != nil {
			t.Fatalf("InsertAuction: %v", err)
		}
	}

	rows, err := s.AuctionsByMake("Porsche")
	if err != nil {
		t.Fatalf("AuctionsByMake: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (complete + bid-only)", len(rows))
	}
	for _, r := range rows {
		if r.Make != "Porsche" {
			t.Errorf("row for make %q leaked into Porsche query", r.Make)
		}
		if r.SoldPrice == 0 && r.BidAmount == 0 {
			t.Error("row without any price survived the filter")
		}
	}
}

func TestAuctionEndDateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	end := time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

	if err := s.InsertAuction(AuctionRecord{
		Make: "Porsche", Model: "911", Year: 2010, Mileage: 90000,
		Color: "red", Transmission: "automatic", BidAmount: 30000, EndDate: end,
	}); err != nil {
		t.Fatalf("InsertAuction: %v", err)
	}

	rows, err := s.AuctionsByMake("Porsche")
	if err != nil {
		t.Fatalf("AuctionsByMake: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if !rows[0].EndDate.Equal(end) {
		t.Errorf("EndDate = %v, want %v", rows[0].EndDate, end)
	}
}

func TestReplaceMakes(t *testing.T) {
	s := openTestStore(t)

	if err := s.ReplaceMakes([]string{"Porsche", "Ferrari"}, []string{"porsche", "ferrari"}); err != nil {
		t.Fatalf("ReplaceMakes: %v", err)
	}
	if err := s.ReplaceMakes([]string{"BMW"}, []string{"bmw"}); err != nil {
		t.Fatalf("second ReplaceMakes: %v", err)
	}

	makes, err := s.Makes()
	if err != nil {
		t.Fatalf("Makes: %v", err)
	}
	if len(makes) != 1 || makes[0] != "BMW" {
		t.Errorf("Makes = %v, want [BMW]", makes)
	}
}

func TestUpsertModelScore(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := ModelScore{Make: "Porsche", Score: 0.85, ParamsJSON: `{"n_estimators":100}`, RunID: "run-1", UpdatedAt: now}
	if err := s.UpsertModelScore(first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	second := first
	second.Score = 0.91
	second.RunID = "run-2"
	if err := s.UpsertModelScore(second); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.ModelScore("Porsche")
	if err != nil {
		t.Fatalf("ModelScore: %v", err)
	}
	if got.Score != 0.91 || got.RunID != "run-2" {
		t.Errorf("upsert did not update: %+v", got)
	}

	all, err := s.ModelScores()
	if err != nil {
		t.Fatalf("ModelScores: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d score rows, want 1 after upsert", len(all))
	}
}

func TestModelScoreNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ModelScore("Lancia")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ModelScore of absent make = %v, want ErrNotFound", err)
	}
}
