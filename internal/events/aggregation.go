package events

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DirectReferrer is how daily_stats stores "no referrer domain". SQLite treats
// NULLs as distinct inside a unique index, so a NULL key would never conflict.
const DirectReferrer = ""

// UpdateRollups applies one event to referrer_stats (when it has a referrer
// domain) and daily_stats. Both statements are insert-or-increment upserts, so
// concurrent writers never lose counts.
func UpdateRollups(tx *gorm.DB, event *PageViewEvent) error {
	if event.ReferrerDomain != nil {
		sample := ""
		if event.ReferrerURL != nil {
			sample = *event.ReferrerURL
		}
		if err := upsertReferrerStat(tx, *event.ReferrerDomain, sample, event.CreatedAt); err != nil {
			return fmt.Errorf("failed to update referrer stats: %w", err)
		}
	}

	domain := DirectReferrer
	if event.ReferrerDomain != nil {
		domain = *event.ReferrerDomain
	}
	if err := upsertDailyStat(tx, event.CreatedAt, event.PagePath, domain); err != nil {
		return fmt.Errorf("failed to update daily stats: %w", err)
	}
	return nil
}

func upsertReferrerStat(tx *gorm.DB, domain, urlSample string, seenAt time.Time) error {
	query := `
		INSERT INTO referrer_stats (referrer_domain, total_visits, unique_visitors, referrer_url_sample, first_seen_at, last_seen_at)
		VALUES (?, 1, 1, ?, ?, ?)
		ON CONFLICT (referrer_domain) DO UPDATE SET
			total_visits = referrer_stats.total_visits + 1,
			unique_visitors = referrer_stats.unique_visitors + 1,
			referrer_url_sample = excluded.referrer_url_sample,
			last_seen_at = excluded.last_seen_at
	`
	return tx.Exec(query, domain, urlSample, seenAt, seenAt).Error
}

// upsertDailyStat counts every event as a unique visitor too; the rollup does
// not deduplicate sessions.
func upsertDailyStat(tx *gorm.DB, at time.Time, pagePath, domain string) error {
	query := `
		INSERT INTO daily_stats (date, page_path, referrer_domain, page_views, unique_visitors, updated_at)
		VALUES (?, ?, ?, 1, 1, ?)
		ON CONFLICT (date, page_path, referrer_domain) DO UPDATE SET
			page_views = daily_stats.page_views + 1,
			unique_visitors = daily_stats.unique_visitors + 1,
			updated_at = excluded.updated_at
	`
	return tx.Exec(query, at.UTC().Format("2006-01-02"), pagePath, domain, time.Now().UTC()).Error
}

// DeleteEventsBefore removes up to batchSize raw events created before cutoff.
func DeleteEventsBefore(db *gorm.DB, cutoff time.Time, batchSize int) (int64, error) {
	result := db.Exec(`
		DELETE FROM page_view_events WHERE id IN (
			SELECT id FROM page_view_events WHERE created_at < ? LIMIT ?
		)`, cutoff.UTC(), batchSize)
	return result.RowsAffected, result.Error
}

// DeleteDailyStatsBefore removes daily_stats cells older than the given day.
func DeleteDailyStatsBefore(db *gorm.DB, day string) (int64, error) {
	result := db.Exec(`DELETE FROM daily_stats WHERE date < ?`, day)
	return result.RowsAffected, result.Error
}
