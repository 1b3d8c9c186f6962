package dashboard

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sitepulse/internal/analytics"
	"sitepulse/internal/pkg/referrers"
)

// ChartDays is the span of the overview bar chart.
const ChartDays = 14

type StatCard struct {
	Label string
	Value int64
}

// ChartBar is one day of the chart. Height is relative to the tallest bar.
type ChartBar struct {
	Date      string
	Label     string
	PageViews int64
	Height    float64
}

// SourceBar is a traffic source sized as a percentage of all page views.
type SourceBar struct {
	Source  string
	Label   string
	Channel string
	Visits  int64
	Share   float64
}

// Overview is everything the dashboard's main screen renders.
type Overview struct {
	StartDate    string
	EndDate      string
	Cards        []StatCard
	Chart        []ChartBar
	Sources      []SourceBar
	TopPages     []analytics.PageMetric
	TopReferrers []analytics.ReferrerMetric
	Top404s      []analytics.NotFoundMetric
}

// BuildOverview shapes a summary for display. The chart always covers the
// ChartDays days ending on today, with missing days drawn as zero.
func BuildOverview(summary *analytics.AnalyticsSummary, today time.Time) *Overview {
	if summary == nil {
		summary = &analytics.AnalyticsSummary{}
	}

	return &Overview{
		StartDate: summary.StartDate,
		EndDate:   summary.EndDate,
		Cards: []StatCard{
			{Label: "Page Views", Value: summary.TotalPageViews},
			{Label: "Unique Visitors", Value: summary.UniqueVisitors},
			{Label: "404 Errors", Value: summary.Total404s},
		},
		Chart:        buildChart(summary.ViewsByDay, today),
		Sources:      buildSources(summary.TrafficSources, summary.TotalPageViews),
		TopPages:     nonNil(summary.TopPages),
		TopReferrers: nonNil(summary.TopReferrers),
		Top404s:      nonNil(summary.Top404s),
	}
}

func buildChart(days []analytics.DayMetric, today time.Time) []ChartBar {
	views := make(map[string]int64, len(days))
	for _, d := range days {
		views[d.Date] += d.PageViews
	}

	end := today.UTC()
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	bars := make([]ChartBar, ChartDays)
	var max int64
	for i := range bars {
		day := end.AddDate(0, 0, i-(ChartDays-1))
		date := day.Format("2006-01-02")
		bars[i] = ChartBar{Date: date, Label: day.Format("Jan 2"), PageViews: views[date]}
		if bars[i].PageViews > max {
			max = bars[i].PageViews
		}
	}
	if max > 0 {
		for i := range bars {
			bars[i].Height = float64(bars[i].PageViews) / float64(max)
		}
	}
	return bars
}

func buildSources(sources []analytics.TrafficSource, total int64) []SourceBar {
	caser := cases.Title(language.AmericanEnglish)

	bars := make([]SourceBar, 0, len(sources))
	for _, s := range sources {
		bar := SourceBar{
			Source:  s.Source,
			Channel: caser.String(referrers.Channel(s.Source)),
			Visits:  s.Visits,
		}
		if s.Source == analytics.DirectSource {
			bar.Label = caser.String(s.Source)
		} else {
			bar.Label = referrers.FriendlyName(s.Source)
		}
		if total > 0 {
			bar.Share = float64(s.Visits) / float64(total) * 100
		}
		bars = append(bars, bar)
	}
	return bars
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
