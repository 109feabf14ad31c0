package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/appraise/internal/blob"
	"github.com/kalambet/appraise/internal/catalog"
	"github.com/kalambet/appraise/internal/config"
	"github.com/kalambet/appraise/internal/storage"
	"github.com/kalambet/appraise/internal/train"
)

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train prediction models from stored auction results",
	Long: `Train prediction models from stored auction results.

Without flags every known make is processed; makes with too little data or a
weak fit are skipped. Use --make to train a single make.

Examples:
  appraise train
  appraise train --make Porsche
  appraise train --holdout`,
	RunE: func(cmd *cobra.Command, args []string) error {
		makeName, _ := cmd.Flags().GetString("make")
		holdout, _ := cmd.Flags().GetBool("holdout")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		bundles, err := blob.NewFSStore(cfg.Storage.BundleDir)
		if err != nil {
			return fmt.Errorf("opening bundle store: %w", err)
		}

		trainer := train.New(store, store, bundles, train.Config{
			MinObservations: cfg.Training.MinObservations,
			MinRows:         cfg.Training.MinRows,
			PriceCeiling:    cfg.Training.PriceCeiling,
			ScoreFloor:      cfg.Training.ScoreFloor,
			Holdout:         cfg.Training.Holdout || holdout,
			Seed:            cfg.Training.Seed,
		})

		ctx := cmd.Context()
		if makeName != "" {
			res, err := trainer.TrainMake(ctx, makeName)
			if err != nil {
				return err
			}
			printSuccess("Trained %s: score %.3f (%s, %d rows), run %s",
				res.Make, res.Score, res.Params.Family, res.Rows, res.RunID)
			return nil
		}

		summary, err := trainer.Run(ctx)
		if err != nil {
			return err
		}
		printStatus("Trained", "%d", summary.Trained)
		printStatus("Skipped", "%d", summary.Skipped)
		printStatus("Failed", "%d", summary.Failed)
		if summary.Failed > 0 {
			return fmt.Errorf("%d makes failed", summary.Failed)
		}
		return nil
	},
}

// --- makes ---

var makesCmd = &cobra.Command{
	Use:   "makes",
	Short: "List known makes, or refresh them from the auction site",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		if refresh {
			printStep("Fetching make catalog from %s", cfg.Catalog.URL)
			scraper := catalog.NewScraper(&http.Client{Timeout: 30 * time.Second}, cfg.Catalog.URL)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			n, err := scraper.Refresh(ctx, store)
			if err != nil {
				return err
			}
			printSuccess("Stored %d makes", n)
			return nil
		}

		makes, err := store.Makes()
		if err != nil {
			return err
		}
		if len(makes) == 0 {
			printWarning("No makes stored. Run: appraise makes --refresh")
			return nil
		}
		for _, m := range makes {
			fmt.Println(m)
		}
		return nil
	},
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List trained models and their scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		scores, err := store.ModelScores()
		if err != nil {
			return err
		}
		if len(scores) == 0 {
			printWarning("No trained models. Run: appraise train")
			return nil
		}
		for _, s := range scores {
			fmt.Printf("  %-20s score %.3f  updated %s\n",
				s.Make, s.Score, s.UpdatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show appraise system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus("Server", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			printError("storage error: %v", err)
			return nil
		}
		defer store.Close()

		if count, err := store.AuctionCount(); err == nil {
			printStatus("Auctions", "%d", count)
		}
		if makes, err := store.Makes(); err == nil {
			printStatus("Makes", "%d", len(makes))
		}
		if scores, err := store.ModelScores(); err == nil {
			printStatus("Models", "%d", len(scores))
		}
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		printStatus("Bundle dir", "%s", cfg.Storage.BundleDir)
		return nil
	},
}

func init() {
	trainCmd.Flags().String("make", "", "train only this make")
	trainCmd.Flags().Bool("holdout", false, "gate on cross-validation score instead of in-sample")
	makesCmd.Flags().Bool("refresh", false, "scrape the auction site and replace the stored makes")
}
