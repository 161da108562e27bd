package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/permit-intel/internal/extract"
	"github.com/sells-group/permit-intel/internal/permit"
	"github.com/sells-group/permit-intel/internal/resilience"
	"github.com/sells-group/permit-intel/pkg/geocode"
)

var (
	extractLookback int
	extractNoGeo    bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run an incremental permit extraction",
	Long:  "Pages the source API from the last successful cursor, normalizes and geocodes records, stages them locally, and loads the stage into Postgres in one transaction.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		limiter := resilience.WindowFromConfig(cfg.Source.CallsPerWindow, cfg.Source.WindowMinutes)
		client := extract.NewClient(cfg.Source.BaseURL, limiter,
			extract.WithAppToken(cfg.Source.AppToken),
			extract.WithPageSize(cfg.Source.PageSize),
		)

		normalizer := permit.NewNormalizer("socrata", cfg.Geocode.DefaultCity, cfg.Geocode.DefaultState)

		opts := []extract.ExtractorOption{
			extract.WithLookbackDays(lookbackDays()),
			extract.WithRetryConfig(resilience.RetryFromConfig(cfg.Extract.MaxRetries)),
		}
		if !extractNoGeo {
			provider := geocode.NewCensusProvider(
				geocode.WithBaseURL(cfg.Geocode.BaseURL),
				geocode.WithRateLimit(cfg.Geocode.RatePerSec),
			)
			opts = append(opts, extract.WithGeocoder(provider, cfg.Geocode.BatchParallel))
		}

		ex := extract.NewExtractor(
			client,
			permit.NewStore(pool),
			extract.NewRunLog(pool),
			extract.NewStaging(cfg.Extract.StagingDir),
			normalizer,
			opts...,
		)

		res, err := ex.Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("extract finished",
			zap.String("run_id", res.RunID),
			zap.Int64("loaded", res.Loaded),
			zap.String("staging", res.StagingPath),
		)
		return nil
	},
}

func lookbackDays() int {
	if extractLookback > 0 {
		return extractLookback
	}
	return cfg.Extract.LookbackDays
}

func init() {
	extractCmd.Flags().IntVar(&extractLookback, "lookback", 0, "first-run lookback window in days (default from config)")
	extractCmd.Flags().BoolVar(&extractNoGeo, "no-geocode", false, "skip geocode fallback for permits without coordinates")
	rootCmd.AddCommand(extractCmd)
}
