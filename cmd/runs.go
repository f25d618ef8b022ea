package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/pipeline"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent pipeline stage invocations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := pipeline.NewRunLog(pool).ListRecent(ctx, runsLimit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			zap.L().Info("no pipeline runs recorded yet")
			return nil
		}

		formatRunEntries(os.Stdout, entries)
		return nil
	},
}

func formatRunEntries(out io.Writer, entries []pipeline.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tCOUNTRY\tDATE\tSTATUS\tSTARTED\tDURATION\tERROR")

	for _, e := range entries {
		date := "-"
		if e.RunDate != nil {
			date = e.RunDate.Format("2006-01-02")
		}
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}
		errMsg := e.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Stage, e.Country, date, e.Status,
			e.StartedAt.Format("2006-01-02 15:04"), dur, errMsg)
	}
	_ = w.Flush()
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum runs to show")
	rootCmd.AddCommand(runsCmd)
}
