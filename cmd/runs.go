package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/permit-intel/internal/cluster"
	"github.com/sells-group/permit-intel/internal/extract"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long:  "Commands for listing extraction runs and clustering runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extraction runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := extract.NewRunLog(pool).List(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, entries)
		return nil
	},
}

// -- runs clusters --

var runsClustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List clustering runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := cluster.NewStore(pool).ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs clusters")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No clustering runs found.")
			return nil
		}

		formatClusterRuns(os.Stdout, recs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsClustersCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsClustersCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of extraction runs to w.
func formatRunsList(out io.Writer, entries []extract.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tPIPELINE\tSTATUS\tSTARTED\tRECORDS\tDURATION")
	for _, e := range entries {
		dur := "-"
		if e.DurationSecs != nil {
			dur = fmt.Sprintf("%.1fs", *e.DurationSecs)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(e.ID), e.Pipeline, e.Status,
			e.StartedAt.Format(time.RFC3339), e.RecordCount, dur,
		)
	}
	w.Flush()
}

// formatClusterRuns writes a tabular list of clustering runs to w.
func formatClusterRuns(out io.Writer, recs []cluster.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREATED\tCLUSTERS\tNOISE\tDUPES\tMEGA")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
			shortID(r.RunID), r.CreatedAt.Format(time.RFC3339),
			r.ClustersFound, r.NoisePoints, r.Duplicates, r.Megaprojects,
		)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
