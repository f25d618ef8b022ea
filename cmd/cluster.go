package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/cluster"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/pipeline"
)

var (
	clusterCountry string
	clusterDate    string
	clusterDryRun  bool
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster one day's event mentions into candidate events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, err := parseDate(clusterDate)
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

		c := cluster.NewClusterer(cluster.NewPostgresStore(pool), embedder, cluster.Options{
			Epsilon:         cfg.Cluster.Epsilon,
			MinSamples:      cfg.Cluster.MinSamples,
			MaxBatchMembers: cfg.Cluster.MaxBatchMembers,
			Targets:         cfg.Cluster.TargetRecipients,
			Stoplist:        cfg.Cluster.Stoplist,
			DryRun:          clusterDryRun,
		})

		runLog := pipeline.NewRunLog(pool)
		runID, err := runLog.Start(ctx, pipeline.StageCluster, clusterCountry, &date)
		if err != nil {
			return err
		}

		res, err := c.Run(ctx, clusterCountry, date)
		if err != nil {
			_ = runLog.Fail(ctx, runID, err.Error())
			return eris.Wrap(err, "cluster")
		}
		if err := runLog.Complete(ctx, runID, res); err != nil {
			return err
		}

		zap.L().Info("clustering complete",
			zap.String("country", clusterCountry),
			zap.String("date", clusterDate),
			zap.Int("mentions", res.Mentions),
			zap.Int("clusters", res.Clusters),
			zap.Int("noise", res.NoiseClusters),
			zap.Int("batches", res.Batches),
			zap.Bool("dry_run", res.DryRun),
		)
		return nil
	},
}

func init() {
	clusterCmd.Flags().StringVar(&clusterCountry, "country", "", "initiating country (required)")
	clusterCmd.Flags().StringVar(&clusterDate, "date", "", "cluster date YYYY-MM-DD (required)")
	clusterCmd.Flags().BoolVar(&clusterDryRun, "dry-run", false, "cluster without writing")
	_ = clusterCmd.MarkFlagRequired("country")
	_ = clusterCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(clusterCmd)
}
