package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/canonical"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/cluster"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/consolidate"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/deconflict"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/pipeline"
)

var (
	pipelineCountry     string
	pipelineDate        string
	pipelineConsolidate bool
	pipelineDryRun      bool
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run cluster, deconflict, and promote for one (country, date)",
	Long:  "Runs the full daily pipeline in order: cluster mentions, review ambiguous clusters, promote verdicts to canonical events, and optionally consolidate the country's events across time.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, err := parseDate(pipelineDate)
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
		llm, err := newAnthropic()
		if err != nil {
			return err
		}

		clusterStore := cluster.NewPostgresStore(pool)
		runLog := pipeline.NewRunLog(pool)
		log := zap.L().With(
			zap.String("country", pipelineCountry),
			zap.String("date", pipelineDate),
		)

		// Each stage gets its own run-log row; a stage failure stops the
		// chain so later stages never see partial input.
		stage := func(name string, run func() (any, error)) error {
			runID, err := runLog.Start(ctx, name, pipelineCountry, &date)
			if err != nil {
				return err
			}
			counts, err := run()
			if err != nil {
				_ = runLog.Fail(ctx, runID, err.Error())
				return eris.Wrapf(err, "pipeline: %s", name)
			}
			if err := runLog.Complete(ctx, runID, counts); err != nil {
				return err
			}
			log.Info("stage complete", zap.String("stage", name))
			return nil
		}

		err = stage(pipeline.StageCluster, func() (any, error) {
			c := cluster.NewClusterer(clusterStore, embedder, cluster.Options{
				Epsilon:         cfg.Cluster.Epsilon,
				MinSamples:      cfg.Cluster.MinSamples,
				MaxBatchMembers: cfg.Cluster.MaxBatchMembers,
				Targets:         cfg.Cluster.TargetRecipients,
				Stoplist:        cfg.Cluster.Stoplist,
				DryRun:          pipelineDryRun,
			})
			return c.Run(ctx, pipelineCountry, date)
		})
		if err != nil {
			return err
		}

		err = stage(pipeline.StageDeconflict, func() (any, error) {
			judge := deconflict.NewClaudeJudge(llm,
				cfg.Anthropic.JudgeModel, cfg.Anthropic.MaxTokens, cfg.Anthropic.RequestsPerSec)
			r := deconflict.NewReviewer(clusterStore, judge, deconflict.Options{
				Concurrency: cfg.Deconflict.Concurrency,
				DryRun:      pipelineDryRun,
			})
			return r.Run(ctx, pipelineCountry, date, 0)
		})
		if err != nil {
			return err
		}

		err = stage(pipeline.StagePromote, func() (any, error) {
			b := canonical.NewBuilder(canonical.NewPostgresStore(pool), clusterStore, embedder,
				canonical.Options{
					MergeWindowDays: cfg.Canonical.MergeWindowDays,
					DryRun:          pipelineDryRun,
				})
			return b.Run(ctx, pipelineCountry, date, 0)
		})
		if err != nil {
			return err
		}

		if pipelineConsolidate {
			err = stage(pipeline.StageConsolidate, func() (any, error) {
				c := consolidate.NewConsolidator(consolidate.NewPostgresStore(pool), consolidate.Options{
					SimilarityThreshold: cfg.Consolidate.SimilarityThreshold,
					ChunkSize:           cfg.Consolidate.ChunkSize,
					DryRun:              pipelineDryRun,
				})
				return c.Run(ctx, pipelineCountry)
			})
			if err != nil {
				return err
			}
		}

		log.Info("pipeline complete")
		return nil
	},
}

func init() {
	pipelineCmd.Flags().StringVar(&pipelineCountry, "country", "", "initiating country (required)")
	pipelineCmd.Flags().StringVar(&pipelineDate, "date", "", "pipeline date YYYY-MM-DD (required)")
	pipelineCmd.Flags().BoolVar(&pipelineConsolidate, "consolidate", false, "also run cross-time consolidation")
	pipelineCmd.Flags().BoolVar(&pipelineDryRun, "dry-run", false, "run all stages without writing")
	_ = pipelineCmd.MarkFlagRequired("country")
	_ = pipelineCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(pipelineCmd)
}
