package analytics

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"sitepulse/internal/events"
	"sitepulse/internal/pkg/async"
	"sitepulse/internal/timeframe"
)

// summaryWorkers bounds how many summary queries hit the database at once.
const summaryWorkers = 4

// Totals are the headline counters of a range.
type Totals struct {
	PageViews      int64
	UniqueVisitors int64
}

// GetSummary computes every overview metric for r. The queries are independent
// and run in parallel. An invalid range yields an empty summary.
func GetSummary(ctx context.Context, db *gorm.DB, r timeframe.DateRange) (*AnalyticsSummary, error) {
	summary := EmptySummary(r)
	if !r.Valid() {
		return summary, nil
	}

	tasks := []async.Task{
		{Name: "totals", Run: func(ctx context.Context) error {
			totals, err := GetTotals(db.WithContext(ctx), r)
			summary.TotalPageViews = totals.PageViews
			summary.UniqueVisitors = totals.UniqueVisitors
			return err
		}},
		{Name: "total404s", Run: func(ctx context.Context) (err error) {
			summary.Total404s, err = GetTotal404s(db.WithContext(ctx), r)
			return err
		}},
		{Name: "topPages", Run: func(ctx context.Context) (err error) {
			summary.TopPages, err = GetTopPages(db.WithContext(ctx), r, TopPagesLimit)
			return err
		}},
		{Name: "topReferrers", Run: func(ctx context.Context) (err error) {
			summary.TopReferrers, err = GetTopReferrers(db.WithContext(ctx), r, TopReferrersLimit)
			return err
		}},
		{Name: "recentReferrers", Run: func(ctx context.Context) (err error) {
			summary.RecentReferrers, err = GetRecentReferrers(db.WithContext(ctx), r, RecentReferrersLimit)
			return err
		}},
		{Name: "viewsByDay", Run: func(ctx context.Context) (err error) {
			summary.ViewsByDay, err = GetViewsByDay(db.WithContext(ctx), r)
			return err
		}},
		{Name: "trafficSources", Run: func(ctx context.Context) (err error) {
			summary.TrafficSources, err = GetTrafficSources(db.WithContext(ctx), r, TrafficSourcesLimit)
			return err
		}},
		{Name: "top404s", Run: func(ctx context.Context) (err error) {
			summary.Top404s, err = GetTop404s(db.WithContext(ctx), r, Top404sLimit)
			return err
		}},
		{Name: "topCountries", Run: func(ctx context.Context) (err error) {
			summary.TopCountries, err = GetTopCountries(db.WithContext(ctx), r, TopCountriesLimit)
			return err
		}},
	}

	results := async.NewPool(summaryWorkers).Execute(ctx, tasks)
	if err := async.FirstError(results); err != nil {
		return nil, fmt.Errorf("error computing analytics summary: %w", err)
	}
	return summary, nil
}

// GetTotals counts page views and distinct sessions. 404 hits are not page views.
func GetTotals(db *gorm.DB, r timeframe.DateRange) (Totals, error) {
	var totals Totals
	if !r.Valid() {
		return totals, nil
	}
	err := pageViews(db, r).
		Select("COUNT(*) AS page_views, COUNT(DISTINCT session_id) AS unique_visitors").
		Scan(&totals).Error
	if err != nil {
		return Totals{}, fmt.Errorf("error fetching totals: %w", err)
	}
	return totals, nil
}

// GetTotal404s counts human hits on missing pages.
func GetTotal404s(db *gorm.DB, r timeframe.DateRange) (int64, error) {
	var count int64
	if !r.Valid() {
		return 0, nil
	}
	if err := notFoundHits(db, r).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting 404s: %w", err)
	}
	return count, nil
}

// GetTopPages returns the most viewed pages.
func GetTopPages(db *gorm.DB, r timeframe.DateRange, limit int) ([]PageMetric, error) {
	results := []PageMetric{}
	if !r.Valid() {
		return results, nil
	}
	err := pageViews(db, r).
		Select("page_path AS path, COUNT(*) AS views, COUNT(DISTINCT session_id) AS unique_visitors").
		Group("page_path").
		Order("views DESC, path ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top pages: %w", err)
	}
	return results, nil
}

type referrerRow struct {
	Domain         string
	Visits         int64
	UniqueVisitors int64
	LastVisit      string
}

func (row referrerRow) metric() ReferrerMetric {
	return ReferrerMetric{
		Domain:         row.Domain,
		Visits:         row.Visits,
		UniqueVisitors: row.UniqueVisitors,
		LastVisit:      optionalTime(row.LastVisit),
	}
}

const referrerColumns = "referrer_domain AS domain, COUNT(*) AS visits, " +
	"COUNT(DISTINCT session_id) AS unique_visitors, MAX(created_at) AS last_visit"

// GetTopReferrers returns the referrer domains that sent the most page views.
func GetTopReferrers(db *gorm.DB, r timeframe.DateRange, limit int) ([]ReferrerMetric, error) {
	results := []ReferrerMetric{}
	if !r.Valid() {
		return results, nil
	}
	var rows []referrerRow
	err := pageViews(db, r).
		Where("referrer_domain IS NOT NULL").
		Select(referrerColumns).
		Group("referrer_domain").
		Order("visits DESC, domain ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top referrers: %w", err)
	}
	for _, row := range rows {
		results = append(results, row.metric())
	}
	return results, nil
}

// GetRecentReferrers returns the latest referred page views, newest first.
func GetRecentReferrers(db *gorm.DB, r timeframe.DateRange, limit int) ([]RecentReferrer, error) {
	results := []RecentReferrer{}
	if !r.Valid() {
		return results, nil
	}
	var rows []events.PageViewEvent
	err := pageViews(db, r).
		Where("referrer_domain IS NOT NULL").
		Select("id", "referrer_domain", "referrer_url", "created_at").
		Order("created_at DESC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching recent referrers: %w", err)
	}
	for _, row := range rows {
		entry := RecentReferrer{VisitedAt: row.CreatedAt.UTC()}
		if row.ReferrerDomain != nil {
			entry.Domain = *row.ReferrerDomain
		}
		if row.ReferrerURL != nil {
			entry.URL = *row.ReferrerURL
		}
		results = append(results, entry)
	}
	return results, nil
}

// GetViewsByDay sums the daily_stats rollup per day. Days without traffic are omitted.
func GetViewsByDay(db *gorm.DB, r timeframe.DateRange) ([]DayMetric, error) {
	results := []DayMetric{}
	if !r.Valid() {
		return results, nil
	}
	query := `
    SELECT
        date,
        SUM(page_views) AS page_views,
        SUM(unique_visitors) AS unique_visitors
    FROM daily_stats
    WHERE date BETWEEN ? AND ?
    GROUP BY date
    ORDER BY date ASC
    `
	if err := db.Raw(query, r.StartDate(), r.EndDate()).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching views by day: %w", err)
	}
	return results, nil
}

// GetTrafficSources labels each page view by its UTM source, else its
// referrer domain, else "direct", and counts the labels.
func GetTrafficSources(db *gorm.DB, r timeframe.DateRange, limit int) ([]TrafficSource, error) {
	results := []TrafficSource{}
	if !r.Valid() {
		return results, nil
	}
	err := pageViews(db, r).
		Select("COALESCE(utm_source, referrer_domain, ?) AS source, COUNT(*) AS visits", DirectSource).
		Group("source").
		Order("visits DESC, source ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching traffic sources: %w", err)
	}
	return results, nil
}

type notFoundRow struct {
	Path         string
	Hits         int64
	LastHit      string
	LastReferrer *string
}

func (row notFoundRow) metric() NotFoundMetric {
	return NotFoundMetric{
		Path:         row.Path,
		Hits:         row.Hits,
		LastHit:      parseTimestamp(row.LastHit),
		LastReferrer: row.LastReferrer,
	}
}

// GetTop404s returns the most hit missing pages.
func GetTop404s(db *gorm.DB, r timeframe.DateRange, limit int) ([]NotFoundMetric, error) {
	results := []NotFoundMetric{}
	if !r.Valid() {
		return results, nil
	}
	var rows []notFoundRow
	err := notFoundHits(db, r).
		Select("page_path AS path, COUNT(*) AS hits, MAX(created_at) AS last_hit").
		Group("page_path").
		Order("hits DESC, path ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top 404s: %w", err)
	}
	for _, row := range rows {
		results = append(results, row.metric())
	}
	return results, nil
}

// GetTopCountries returns the countries with the most page views.
func GetTopCountries(db *gorm.DB, r timeframe.DateRange, limit int) ([]CountryMetric, error) {
	results := []CountryMetric{}
	if !r.Valid() {
		return results, nil
	}
	var rows []struct {
		Code   string
		Visits int64
	}
	err := pageViews(db, r).
		Where("country IS NOT NULL").
		Select("country AS code, COUNT(*) AS visits").
		Group("country").
		Order("visits DESC, code ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top countries: %w", err)
	}
	for _, row := range rows {
		code := strings.ToUpper(row.Code)
		results = append(results, CountryMetric{Code: code, Name: CountryName(code), Visits: row.Visits})
	}
	return results, nil
}
