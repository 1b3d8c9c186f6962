package analytics

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"sitepulse/internal/events"
	"sitepulse/internal/timeframe"
)

// ErrMissingFilter is returned by the nested drill-downs when the page path
// or referrer domain is blank.
var ErrMissingFilter = errors.New("drill-down filter is required")

// Drill-down page sizes.
const (
	DefaultPageLimit = 25
	MaxPageLimit     = 100
)

// PageRequest selects one page of a drill-down over a date range.
type PageRequest struct {
	Range timeframe.DateRange
	Page  int
	Limit int
}

// Normalize clamps page to >= 1 and limit to [1, MaxPageLimit], defaulting
// limit to DefaultPageLimit.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p PageRequest) offset() int {
	return (p.Page - 1) * p.Limit
}

// Paginated is one page of a drill-down. Total counts distinct group keys.
type Paginated[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// paginate counts the group keys and fetches the requested slice. Invalid
// ranges and pages past the end return an empty page.
func paginate[T any](req PageRequest, count func() (int64, error), fetch func(limit, offset int) ([]T, error)) (*Paginated[T], error) {
	req = req.Normalize()
	page := &Paginated[T]{Data: []T{}, Page: req.Page, Limit: req.Limit}
	if !req.Range.Valid() {
		return page, nil
	}

	total, err := count()
	if err != nil {
		return nil, err
	}
	page.Total = total
	page.TotalPages = int((total + int64(req.Limit) - 1) / int64(req.Limit))

	if int64(req.offset()) >= total {
		return page, nil
	}

	items, err := fetch(req.Limit, req.offset())
	if err != nil {
		return nil, err
	}
	if items != nil {
		page.Data = items
	}
	return page, nil
}

// AllPages lists every viewed page, most viewed first.
func AllPages(db *gorm.DB, req PageRequest) (*Paginated[PageMetric], error) {
	return pagesFor(db, req, "")
}

// PagesFromReferrer lists the pages a single referrer domain sent visitors to.
func PagesFromReferrer(db *gorm.DB, req PageRequest, domain string) (*Paginated[PageMetric], error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("referrer domain: %w", ErrMissingFilter)
	}
	return pagesFor(db, req, domain)
}

func pagesFor(db *gorm.DB, req PageRequest, domain string) (*Paginated[PageMetric], error) {
	scope := func() *gorm.DB {
		q := pageViews(db, req.Range)
		if domain != "" {
			q = q.Where("referrer_domain = ?", domain)
		}
		return q
	}

	return paginate(req,
		func() (int64, error) {
			var total int64
			if err := scope().Select("COUNT(DISTINCT page_path)").Scan(&total).Error; err != nil {
				return 0, fmt.Errorf("error counting pages: %w", err)
			}
			return total, nil
		},
		func(limit, offset int) ([]PageMetric, error) {
			var rows []PageMetric
			err := scope().
				Select("page_path AS path, COUNT(*) AS views, COUNT(DISTINCT session_id) AS unique_visitors").
				Group("page_path").
				Order("views DESC, path ASC").
				Limit(limit).
				Offset(offset).
				Scan(&rows).Error
			if err != nil {
				return nil, fmt.Errorf("error fetching pages: %w", err)
			}
			return rows, nil
		},
	)
}

// AllReferrers lists every referrer domain, most visits first.
func AllReferrers(db *gorm.DB, req PageRequest) (*Paginated[ReferrerMetric], error) {
	return referrersFor(db, req, "")
}

// ReferrersForPage lists the referrer domains that sent visitors to one page.
func ReferrersForPage(db *gorm.DB, req PageRequest, pagePath string) (*Paginated[ReferrerMetric], error) {
	pagePath = events.NormalizePath(pagePath)
	if pagePath == "" {
		return nil, fmt.Errorf("page path: %w", ErrMissingFilter)
	}
	return referrersFor(db, req, pagePath)
}

func referrersFor(db *gorm.DB, req PageRequest, pagePath string) (*Paginated[ReferrerMetric], error) {
	scope := func() *gorm.DB {
		q := pageViews(db, req.Range).Where("referrer_domain IS NOT NULL")
		if pagePath != "" {
			q = q.Where("page_path = ?", pagePath)
		}
		return q
	}

	return paginate(req,
		func() (int64, error) {
			var total int64
			if err := scope().Select("COUNT(DISTINCT referrer_domain)").Scan(&total).Error; err != nil {
				return 0, fmt.Errorf("error counting referrers: %w", err)
			}
			return total, nil
		},
		func(limit, offset int) ([]ReferrerMetric, error) {
			var rows []referrerRow
			err := scope().
				Select(referrerColumns).
				Group("referrer_domain").
				Order("visits DESC, domain ASC").
				Limit(limit).
				Offset(offset).
				Scan(&rows).Error
			if err != nil {
				return nil, fmt.Errorf("error fetching referrers: %w", err)
			}
			results := make([]ReferrerMetric, 0, len(rows))
			for _, row := range rows {
				results = append(results, row.metric())
			}
			return results, nil
		},
	)
}

// All404s lists every missing page that was hit, with the most recent
// referrer seen for it. The referrer is a per-row subquery.
func All404s(db *gorm.DB, req PageRequest) (*Paginated[NotFoundMetric], error) {
	r := req.Range
	return paginate(req,
		func() (int64, error) {
			var total int64
			if err := notFoundHits(db, r).Select("COUNT(DISTINCT page_path)").Scan(&total).Error; err != nil {
				return 0, fmt.Errorf("error counting 404 paths: %w", err)
			}
			return total, nil
		},
		func(limit, offset int) ([]NotFoundMetric, error) {
			query := `
    SELECT
        e.page_path AS path,
        COUNT(*) AS hits,
        MAX(e.created_at) AS last_hit,
        (
            SELECT r.referrer_url
            FROM page_view_events r
            WHERE r.page_path = e.page_path
              AND r.status_code = ?
              AND r.is_bot = ?
              AND r.referrer_url IS NOT NULL
              AND r.created_at >= ? AND r.created_at < ?
            ORDER BY r.created_at DESC
            LIMIT 1
        ) AS last_referrer
    FROM page_view_events e
    WHERE e.status_code = ?
      AND e.is_bot = ?
      AND e.created_at >= ? AND e.created_at < ?
    GROUP BY e.page_path
    ORDER BY hits DESC, path ASC
    LIMIT ? OFFSET ?
    `
			var rows []notFoundRow
			err := db.Raw(query,
				events.StatusNotFound, false, r.From(), r.Until(),
				events.StatusNotFound, false, r.From(), r.Until(),
				limit, offset,
			).Scan(&rows).Error
			if err != nil {
				return nil, fmt.Errorf("error fetching 404 paths: %w", err)
			}
			results := make([]NotFoundMetric, 0, len(rows))
			for _, row := range rows {
				results = append(results, row.metric())
			}
			return results, nil
		},
	)
}
