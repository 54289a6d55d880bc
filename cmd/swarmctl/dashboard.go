package main

import (
	"github.com/spf13/cobra"

	"github.com/BrianEstime1/drone-swarm/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the Grafana dashboard templates",
	Long:  "dashboard renders the repo's Grafana dashboards against the GreptimeDB datasource named in the environment.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboard.Render(dashboardOut)
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory for rendered dashboards")
}
