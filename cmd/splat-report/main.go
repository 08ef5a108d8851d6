// Command splat-report builds a static HTML activity report from the
// service database: job throughput per kind, latency, and reconstruction
// sizes over time.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/splatview/splatview/internal/db"
	"github.com/splatview/splatview/internal/version"
)

var (
	dbPath     = flag.String("db", "splatview.db", "Path to the service sqlite database")
	outputPath = flag.String("out", "splat-report.html", "Output HTML file")
	window     = flag.Duration("window", 7*24*time.Hour, "How far back to report")
)

func main() {
	flag.Parse()

	log.Printf("splat-report %s (%s)", version.Version, version.GitSHA)

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	sinceNs := time.Now().Add(-*window).UnixNano()

	stats, err := database.JobKindStats(sinceNs)
	if err != nil {
		log.Fatalf("failed to load job stats: %v", err)
	}
	sessions, err := database.ListSessions(500)
	if err != nil {
		log.Fatalf("failed to load sessions: %v", err)
	}

	page := components.NewPage()
	page.PageTitle = "Splatview activity report"
	page.AddCharts(
		jobThroughputChart(stats),
		jobLatencyChart(stats),
		sessionSizeChart(sessions),
	)

	f, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s (%d job kinds, %d sessions, window %v)", *outputPath, len(stats), len(sessions), *window)
}

// jobThroughputChart shows completed vs failed jobs per kind.
func jobThroughputChart(stats []*db.JobKindStat) *charts.Bar {
	kinds := make([]string, 0, len(stats))
	ok := make([]opts.BarData, 0, len(stats))
	failed := make([]opts.BarData, 0, len(stats))
	for _, s := range stats {
		kinds = append(kinds, s.Kind)
		ok = append(ok, opts.BarData{Value: s.Total - s.Failed})
		failed = append(failed, opts.BarData{Value: s.Failed})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Job throughput", Subtitle: "completed vs failed per kind"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(kinds).
		AddSeries("completed", ok).
		AddSeries("failed", failed,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}),
		)
	return bar
}

// jobLatencyChart shows average and worst-case latency per job kind.
func jobLatencyChart(stats []*db.JobKindStat) *charts.Bar {
	kinds := make([]string, 0, len(stats))
	avg := make([]opts.BarData, 0, len(stats))
	max := make([]opts.BarData, 0, len(stats))
	for _, s := range stats {
		kinds = append(kinds, s.Kind)
		avg = append(avg, opts.BarData{Value: s.AvgDurationMs})
		max = append(max, opts.BarData{Value: s.MaxDurationMs})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Job latency", Subtitle: "milliseconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(kinds).
		AddSeries("avg ms", avg).
		AddSeries("max ms", max)
	return bar
}

// sessionSizeChart shows Gaussian counts per session over time.
func sessionSizeChart(sessions []*db.SessionRow) *charts.Line {
	// rows arrive newest first; plot oldest to newest
	labels := make([]string, 0, len(sessions))
	counts := make([]opts.LineData, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		t := time.Unix(0, s.CreatedAtNs)
		labels = append(labels, fmt.Sprintf("%s\n%s", s.SessionID[:8], t.Format("01-02 15:04")))
		counts = append(counts, opts.LineData{Value: s.GaussianCount})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Reconstruction sizes", Subtitle: "Gaussian primitives per session"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels).
		AddSeries("primitives", counts,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		)
	return line
}
