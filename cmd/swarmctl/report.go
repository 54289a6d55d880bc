package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BrianEstime1/drone-swarm/internal/report"
)

var (
	reportInput string
	reportOut   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize formation accuracy from a flight log",
	Long:  "report aggregates per-vehicle formation error from a recorded flight and renders an HTML chart of error over cycles.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			rep *report.Report
			err error
		)
		if strings.EqualFold(filepath.Ext(reportInput), ".db") {
			rep, err = report.FromArchive(reportInput)
		} else {
			rep, err = report.FromJSONL(reportInput)
		}
		if err != nil {
			return err
		}

		printReport(rep)

		if reportOut != "" {
			if err := rep.WriteChart(reportOut); err != nil {
				return err
			}
			fmt.Printf("chart written to %s\n", reportOut)
		}
		return nil
	},
}

// printReport renders the per-vehicle error statistics as a table.
func printReport(r *report.Report) {
	fmt.Printf("swarm %s run %s cycles %d..%d rows %d\n\n",
		r.SwarmID, r.RunID, r.FirstCycle, r.LastCycle, r.Rows)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VEHICLE\tROLE\tSAMPLES\tMEAN\tSTDDEV\tMIN\tMAX\tP95")
	for _, v := range r.Vehicles {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2fm\t%.2fm\t%.2fm\t%.2fm\t%.2fm\n",
			v.VehicleID, v.Role, v.Samples, v.MeanM, v.StdDevM, v.MinM, v.MaxM, v.P95M)
	}
	w.Flush()
}

func init() {
	reportCmd.Flags().StringVar(&reportInput, "input", "", "Path to a JSONL flight log or .db archive")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Path for the HTML error chart (skipped when empty)")
	reportCmd.MarkFlagRequired("input")
}
