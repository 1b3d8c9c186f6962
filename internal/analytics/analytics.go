// Package analytics answers read-side questions about recorded page views.
//
// Summary queries (summary.go) return top-N views over a date range; drill-down
// queries (drilldown.go) return the full paginated lists behind them. Live
// metrics read page_view_events, the day chart reads daily_stats. Bot traffic is
// excluded everywhere.
package analytics

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"sitepulse/internal/events"
	"sitepulse/internal/timeframe"
)

// ReferrerStat is the all-time rollup for one referrer domain.
type ReferrerStat struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ReferrerDomain string `gorm:"uniqueIndex;size:255;not null"`
	TotalVisits    int    `gorm:"not null;default:0"`
	// UniqueVisitors is incremented per event and is an upper bound.
	UniqueVisitors    int       `gorm:"not null;default:0"`
	ReferrerURLSample string    `gorm:"size:1000"`
	FirstSeenAt       time.Time `gorm:"not null"`
	LastSeenAt        time.Time `gorm:"not null"`
}

func (ReferrerStat) TableName() string {
	return "referrer_stats"
}

// DailyStat is one (day, page, referrer domain) rollup cell. Direct traffic
// uses events.DirectReferrer as its domain.
type DailyStat struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Date           string `gorm:"uniqueIndex:idx_daily_stats_key;size:10;not null"`
	PagePath       string `gorm:"uniqueIndex:idx_daily_stats_key;size:500;not null"`
	ReferrerDomain string `gorm:"uniqueIndex:idx_daily_stats_key;size:255;not null"`
	PageViews      int    `gorm:"not null;default:0"`
	// UniqueVisitors is incremented per event; sessions are not deduplicated.
	UniqueVisitors int       `gorm:"not null;default:0"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (DailyStat) TableName() string {
	return "daily_stats"
}

// Summary limits.
const (
	TopPagesLimit        = 10
	TopReferrersLimit    = 10
	RecentReferrersLimit = 20
	TrafficSourcesLimit  = 15
	Top404sLimit         = 10
	TopCountriesLimit    = 10
)

// DirectSource labels traffic with neither a UTM source nor a referrer domain.
const DirectSource = "direct"

// PageMetric is a page with its view count.
type PageMetric struct {
	Path           string `json:"path"`
	Views          int64  `json:"views"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
}

// ReferrerMetric is a referrer domain with its visit count.
type ReferrerMetric struct {
	Domain         string     `json:"domain"`
	Visits         int64      `json:"visits"`
	UniqueVisitors int64      `json:"uniqueVisitors"`
	LastVisit      *time.Time `json:"lastVisit,omitempty"`
}

// RecentReferrer is one raw referred visit.
type RecentReferrer struct {
	Domain    string    `json:"domain"`
	URL       string    `json:"url"`
	VisitedAt time.Time `json:"visitedAt"`
}

// DayMetric is the rollup total for one day.
type DayMetric struct {
	Date           string `json:"date"`
	PageViews      int64  `json:"pageViews"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
}

// TrafficSource is a source label with its visit count.
type TrafficSource struct {
	Source string `json:"source"`
	Visits int64  `json:"visits"`
}

// NotFoundMetric is a 404 path with its hit count.
type NotFoundMetric struct {
	Path         string    `json:"path"`
	Hits         int64     `json:"hits"`
	LastHit      time.Time `json:"lastHit"`
	LastReferrer *string   `json:"lastReferrer,omitempty"`
}

// CountryMetric is a country with its visit count.
type CountryMetric struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Visits int64  `json:"visits"`
}

// AnalyticsSummary is everything the dashboard overview shows for a range.
type AnalyticsSummary struct {
	StartDate       string           `json:"startDate"`
	EndDate         string           `json:"endDate"`
	TotalPageViews  int64            `json:"totalPageViews"`
	UniqueVisitors  int64            `json:"uniqueVisitors"`
	Total404s       int64            `json:"total404s"`
	TopPages        []PageMetric     `json:"topPages"`
	TopReferrers    []ReferrerMetric `json:"topReferrers"`
	RecentReferrers []RecentReferrer `json:"recentReferrers"`
	ViewsByDay      []DayMetric      `json:"viewsByDay"`
	TrafficSources  []TrafficSource  `json:"trafficSources"`
	Top404s         []NotFoundMetric `json:"top404s"`
	TopCountries    []CountryMetric  `json:"topCountries"`
}

// EmptySummary returns a summary with every list present and empty.
func EmptySummary(r timeframe.DateRange) *AnalyticsSummary {
	return &AnalyticsSummary{
		StartDate:       r.StartDate(),
		EndDate:         r.EndDate(),
		TopPages:        []PageMetric{},
		TopReferrers:    []ReferrerMetric{},
		RecentReferrers: []RecentReferrer{},
		ViewsByDay:      []DayMetric{},
		TrafficSources:  []TrafficSource{},
		Top404s:         []NotFoundMetric{},
		TopCountries:    []CountryMetric{},
	}
}

// humanEvents scopes page_view_events to non-bot rows inside r.
func humanEvents(db *gorm.DB, r timeframe.DateRange) *gorm.DB {
	return db.Model(&events.PageViewEvent{}).
		Where("created_at >= ? AND created_at < ?", r.From(), r.Until()).
		Where("is_bot = ?", false)
}

// pageViews scopes to human views of existing pages.
func pageViews(db *gorm.DB, r timeframe.DateRange) *gorm.DB {
	return humanEvents(db, r).Where("status_code <> ?", events.StatusNotFound)
}

// notFoundHits scopes to human views that hit a missing page.
func notFoundHits(db *gorm.DB, r timeframe.DateRange) *gorm.DB {
	return humanEvents(db, r).Where("status_code = ?", events.StatusNotFound)
}

// sqliteTimeLayouts are the encodings the SQLite driver writes for time.Time,
// plus plain forms produced by aggregate functions.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp decodes a timestamp returned as text by MAX()/MIN().
func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "Z")
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func optionalTime(raw string) *time.Time {
	t := parseTimestamp(raw)
	if t.IsZero() {
		return nil
	}
	return &t
}
