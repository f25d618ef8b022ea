package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/ingest"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/pipeline"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import documents and event mentions from a JSONL export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		f, err := os.Open(importFilePath)
		if err != nil {
			return eris.Wrapf(err, "open %s", importFilePath)
		}
		defer f.Close()

		runLog := pipeline.NewRunLog(pool)
		runID, err := runLog.Start(ctx, pipeline.StageImport, "", nil)
		if err != nil {
			return err
		}

		sum, err := ingest.NewImporter(pool).Run(ctx, f)
		if err != nil {
			_ = runLog.Fail(ctx, runID, err.Error())
			return eris.Wrap(err, "import")
		}
		if err := runLog.Complete(ctx, runID, sum); err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", importFilePath),
			zap.Int("documents", sum.Documents),
			zap.Int("mentions", sum.Mentions),
			zap.Int("skipped", sum.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to JSONL file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
