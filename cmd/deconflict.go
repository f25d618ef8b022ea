package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/cluster"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/deconflict"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/pipeline"
)

var (
	deconflictCountry string
	deconflictDate    string
	deconflictBatch   int
	deconflictDryRun  bool
)

var deconflictCmd = &cobra.Command{
	Use:   "deconflict",
	Short: "Review ambiguous clusters with the LLM judge",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, err := parseDate(deconflictDate)
		if err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		client, err := newAnthropic()
		if err != nil {
			return err
		}

		judge := deconflict.NewClaudeJudge(client,
			cfg.Anthropic.JudgeModel, cfg.Anthropic.MaxTokens, cfg.Anthropic.RequestsPerSec)
		r := deconflict.NewReviewer(cluster.NewPostgresStore(pool), judge, deconflict.Options{
			Concurrency: cfg.Deconflict.Concurrency,
			DryRun:      deconflictDryRun,
		})

		runLog := pipeline.NewRunLog(pool)
		runID, err := runLog.Start(ctx, pipeline.StageDeconflict, deconflictCountry, &date)
		if err != nil {
			return err
		}

		sum, err := r.Run(ctx, deconflictCountry, date, deconflictBatch)
		if err != nil {
			_ = runLog.Fail(ctx, runID, err.Error())
			return eris.Wrap(err, "deconflict")
		}
		if err := runLog.Complete(ctx, runID, sum); err != nil {
			return err
		}

		zap.L().Info("deconfliction complete",
			zap.String("country", deconflictCountry),
			zap.String("date", deconflictDate),
			zap.Int("processed", sum.Processed),
			zap.Int("skipped", sum.Skipped),
			zap.Int("confirmed", sum.Confirmed),
			zap.Int("split", sum.Split),
			zap.Int("errors", sum.Errors),
			zap.Bool("dry_run", sum.DryRun),
		)
		return nil
	},
}

func init() {
	deconflictCmd.Flags().StringVar(&deconflictCountry, "country", "", "initiating country (required)")
	deconflictCmd.Flags().StringVar(&deconflictDate, "date", "", "cluster date YYYY-MM-DD (required)")
	deconflictCmd.Flags().IntVar(&deconflictBatch, "batch", 0, "review a single batch (0 = all)")
	deconflictCmd.Flags().BoolVar(&deconflictDryRun, "dry-run", false, "review without writing verdicts")
	_ = deconflictCmd.MarkFlagRequired("country")
	_ = deconflictCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(deconflictCmd)
}
