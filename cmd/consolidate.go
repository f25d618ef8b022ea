package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/consolidate"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/pipeline"
)

var (
	consolidateCountry string
	consolidateDryRun  bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Link same-event canonical records across time",
	Long:  "Builds the embedding-similarity graph over a country's unconsolidated canonical events and links each connected component to its master. Run at most one instance per country at a time.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		c := consolidate.NewConsolidator(consolidate.NewPostgresStore(pool), consolidate.Options{
			SimilarityThreshold: cfg.Consolidate.SimilarityThreshold,
			ChunkSize:           cfg.Consolidate.ChunkSize,
			DryRun:              consolidateDryRun,
		})

		runLog := pipeline.NewRunLog(pool)
		runID, err := runLog.Start(ctx, pipeline.StageConsolidate, consolidateCountry, nil)
		if err != nil {
			return err
		}

		sum, err := c.Run(ctx, consolidateCountry)
		if err != nil {
			_ = runLog.Fail(ctx, runID, err.Error())
			return eris.Wrap(err, "consolidate")
		}
		if err := runLog.Complete(ctx, runID, sum); err != nil {
			return err
		}

		zap.L().Info("consolidation complete",
			zap.String("country", consolidateCountry),
			zap.Int("events", sum.Events),
			zap.Int("components", sum.Components),
			zap.Int("linked", sum.Linked),
			zap.Int("no_embedding", sum.NoEmbedding),
			zap.Bool("dry_run", sum.DryRun),
		)
		return nil
	},
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateCountry, "country", "", "initiating country (required)")
	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "report would-be links without writing")
	_ = consolidateCmd.MarkFlagRequired("country")
	rootCmd.AddCommand(consolidateCmd)
}
