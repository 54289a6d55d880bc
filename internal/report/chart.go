package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderChart writes an HTML line chart of formation error over cycles,
// one series per follower. Cycles a vehicle has no sample for render as
// gaps.
func (r *Report) RenderChart(w io.Writer) error {
	cycleSet := make(map[uint64]bool)
	for _, pts := range r.series {
		for _, p := range pts {
			cycleSet[p.cycle] = true
		}
	}
	cycles := make([]uint64, 0, len(cycleSet))
	for c := range cycleSet {
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i] < cycles[j] })

	xs := make([]string, len(cycles))
	index := make(map[uint64]int, len(cycles))
	for i, c := range cycles {
		xs[i] = strconv.FormatUint(c, 10)
		index[c] = i
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Formation error",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Formation error by cycle",
			Subtitle: fmt.Sprintf("swarm=%s run=%s cycles=%d..%d", r.SwarmID, r.RunID, r.FirstCycle, r.LastCycle),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error (m)"}),
	)
	line.SetXAxis(xs)

	for _, vs := range r.Vehicles {
		data := make([]opts.LineData, len(cycles))
		for i := range data {
			// echarts renders "-" as a gap in the series
			data[i] = opts.LineData{Value: "-"}
		}
		for _, p := range r.series[vs.VehicleID] {
			data[index[p.cycle]] = opts.LineData{Value: p.errorM}
		}
		line.AddSeries(vs.VehicleID, data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	}
	return line.Render(w)
}

// WriteChart renders the chart to an HTML file.
func (r *Report) WriteChart(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.RenderChart(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
