package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analytics"
)

func TestBuildOverview(t *testing.T) {
	today := time.Date(2026, 4, 14, 18, 30, 0, 0, time.UTC)
	summary := &analytics.AnalyticsSummary{
		StartDate:      "2026-03-16",
		EndDate:        "2026-04-14",
		TotalPageViews: 40,
		UniqueVisitors: 12,
		Total404s:      2,
		ViewsByDay: []analytics.DayMetric{
			{Date: "2026-03-20", PageViews: 99},
			{Date: "2026-04-01", PageViews: 10},
			{Date: "2026-04-14", PageViews: 5},
		},
		TrafficSources: []analytics.TrafficSource{
			{Source: "direct", Visits: 30},
			{Source: "google.com", Visits: 8},
			{Source: "myblog.dev", Visits: 2},
		},
	}

	o := BuildOverview(summary, today)

	assert.Equal(t, []StatCard{
		{Label: "Page Views", Value: 40},
		{Label: "Unique Visitors", Value: 12},
		{Label: "404 Errors", Value: 2},
	}, o.Cards)

	t.Run("chart is zero-filled", func(t *testing.T) {
		require.Len(t, o.Chart, ChartDays)
		assert.Equal(t, "2026-04-01", o.Chart[0].Date)
		assert.Equal(t, "Apr 1", o.Chart[0].Label)
		assert.Equal(t, int64(10), o.Chart[0].PageViews)
		assert.InDelta(t, 1.0, o.Chart[0].Height, 0.0001)
		assert.Equal(t, int64(0), o.Chart[1].PageViews)
		assert.Zero(t, o.Chart[1].Height)
		assert.Equal(t, "2026-04-14", o.Chart[13].Date)
		assert.InDelta(t, 0.5, o.Chart[13].Height, 0.0001)
	})

	t.Run("sources are shares of all views", func(t *testing.T) {
		require.Len(t, o.Sources, 3)
		assert.Equal(t, "Direct", o.Sources[0].Label)
		assert.Equal(t, "Direct", o.Sources[0].Channel)
		assert.InDelta(t, 75.0, o.Sources[0].Share, 0.0001)
		assert.Equal(t, "Google", o.Sources[1].Label)
		assert.Equal(t, "Search", o.Sources[1].Channel)
		assert.Equal(t, "Myblog.dev", o.Sources[2].Label)
		assert.Equal(t, "Other", o.Sources[2].Channel)
	})

	t.Run("tables are never nil", func(t *testing.T) {
		assert.NotNil(t, o.TopPages)
		assert.NotNil(t, o.TopReferrers)
		assert.NotNil(t, o.Top404s)
	})
}

func TestBuildOverviewEmpty(t *testing.T) {
	o := BuildOverview(nil, time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC))
	require.Len(t, o.Chart, ChartDays)
	for _, bar := range o.Chart {
		assert.Zero(t, bar.PageViews)
		assert.Zero(t, bar.Height)
	}
	assert.Empty(t, o.Sources)
}
