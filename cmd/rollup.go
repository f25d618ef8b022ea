package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/pipeline"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/rollup"
)

var (
	rollupCountry string
	rollupPeriod  string
	rollupDate    string
	rollupDryRun  bool
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Build a narrative period summary",
	Long:  "Synthesizes a daily narrative from master-event headlines, or aggregates child-period summaries into weekly, monthly, or yearly rollups.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, err := parseDate(rollupDate)
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

		r := rollup.NewRoller(rollup.NewPostgresStore(pool), client, rollup.Options{
			Model:     cfg.Anthropic.SummaryModel,
			MaxTokens: cfg.Anthropic.MaxTokens,
			DryRun:    rollupDryRun,
		})

		runLog := pipeline.NewRunLog(pool)
		runID, err := runLog.Start(ctx, pipeline.StageRollup, rollupCountry, &date)
		if err != nil {
			return err
		}

		sum, err := r.Run(ctx, rollupCountry, rollupPeriod, date)
		if err != nil {
			_ = runLog.Fail(ctx, runID, err.Error())
			return eris.Wrap(err, "rollup")
		}
		if err := runLog.Complete(ctx, runID, sum); err != nil {
			return err
		}

		zap.L().Info("rollup complete",
			zap.String("country", rollupCountry),
			zap.String("period", sum.PeriodType),
			zap.String("start", sum.PeriodStart.Format("2006-01-02")),
			zap.Int("sources", sum.Sources),
			zap.Bool("saved", sum.Saved),
		)
		return nil
	},
}

func init() {
	rollupCmd.Flags().StringVar(&rollupCountry, "country", "", "initiating country (required)")
	rollupCmd.Flags().StringVar(&rollupPeriod, "period", rollup.PeriodDaily, "period type: daily, weekly, monthly, yearly")
	rollupCmd.Flags().StringVar(&rollupDate, "date", "", "any date inside the period, YYYY-MM-DD (required)")
	rollupCmd.Flags().BoolVar(&rollupDryRun, "dry-run", false, "synthesize without writing")
	_ = rollupCmd.MarkFlagRequired("country")
	_ = rollupCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(rollupCmd)
}
