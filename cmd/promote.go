package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/canonical"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/cluster"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/pipeline"
)

var (
	promoteCountry string
	promoteDate    string
	promoteBatch   int
	promoteDryRun  bool
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote reviewed clusters into canonical events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, err := parseDate(promoteDate)
		if err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		embedder, err := newEmbedder()
		if err != nil {
			return err
		}

		b := canonical.NewBuilder(
			canonical.NewPostgresStore(pool),
			cluster.NewPostgresStore(pool),
			embedder,
			canonical.Options{
				MergeWindowDays: cfg.Canonical.MergeWindowDays,
				DryRun:          promoteDryRun,
			})

		runLog := pipeline.NewRunLog(pool)
		runID, err := runLog.Start(ctx, pipeline.StagePromote, promoteCountry, &date)
		if err != nil {
			return err
		}

		sum, err := b.Run(ctx, promoteCountry, date, promoteBatch)
		if err != nil {
			_ = runLog.Fail(ctx, runID, err.Error())
			return eris.Wrap(err, "promote")
		}
		if err := runLog.Complete(ctx, runID, sum); err != nil {
			return err
		}

		zap.L().Info("promotion complete",
			zap.String("country", promoteCountry),
			zap.String("date", promoteDate),
			zap.Int("groups", sum.Groups),
			zap.Int("created", sum.Created),
			zap.Int("merged", sum.Merged),
			zap.Int("errors", sum.Errors),
			zap.Bool("dry_run", sum.DryRun),
		)
		return nil
	},
}

func init() {
	promoteCmd.Flags().StringVar(&promoteCountry, "country", "", "initiating country (required)")
	promoteCmd.Flags().StringVar(&promoteDate, "date", "", "cluster date YYYY-MM-DD (required)")
	promoteCmd.Flags().IntVar(&promoteBatch, "batch", 0, "promote a single batch (0 = all)")
	promoteCmd.Flags().BoolVar(&promoteDryRun, "dry-run", false, "resolve without writing")
	_ = promoteCmd.MarkFlagRequired("country")
	_ = promoteCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(promoteCmd)
}
