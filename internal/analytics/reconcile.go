package analytics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/events"
	"sitepulse/internal/timeframe"
)

// RebuildDailyStats recomputes every daily_stats cell of one UTC day from the
// raw log. unique_visitors is rebuilt with the same one-per-event rule the
// live upsert uses, so a rebuilt day matches an undisturbed one.
func RebuildDailyStats(db *gorm.DB, logger *slog.Logger, day time.Time) (int64, error) {
	r := timeframe.LastDays(day, 1)
	date := r.StartDate()
	var rebuilt int64

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM daily_stats WHERE date = ?`, date).Error; err != nil {
			return fmt.Errorf("failed to clear daily stats for %s: %w", date, err)
		}
		result := tx.Exec(`
			INSERT INTO daily_stats (date, page_path, referrer_domain, page_views, unique_visitors, updated_at)
			SELECT ?, page_path, COALESCE(referrer_domain, ?), COUNT(*), COUNT(*), ?
			FROM page_view_events
			WHERE created_at >= ? AND created_at < ? AND is_bot = ?
			GROUP BY page_path, COALESCE(referrer_domain, ?)
		`, date, events.DirectReferrer, time.Now().UTC(), r.From(), r.Until(), false, events.DirectReferrer)
		if result.Error != nil {
			return fmt.Errorf("failed to rebuild daily stats for %s: %w", date, result.Error)
		}
		rebuilt = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Rebuilt daily stats", slog.String("date", date), slog.Int64("cells", rebuilt))
	return rebuilt, nil
}

// RebuildReferrerStats repairs referrer_stats from whatever raw events are
// still retained. The totals are all-time counters that outlive retention, so
// a rebuild only ever raises them: counts from the log replace a row's counts
// only when they are larger. Domains whose events were all pruned keep their
// row untouched.
func RebuildReferrerStats(db *gorm.DB, logger *slog.Logger) (int64, error) {
	var rebuilt int64

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Exec(`
			INSERT INTO referrer_stats (referrer_domain, total_visits, unique_visitors, referrer_url_sample, first_seen_at, last_seen_at)
			SELECT
				e.referrer_domain,
				COUNT(*),
				COUNT(*),
				(SELECT s.referrer_url FROM page_view_events s
				 WHERE s.referrer_domain = e.referrer_domain AND s.is_bot = ?
				 ORDER BY s.created_at DESC LIMIT 1),
				MIN(e.created_at),
				MAX(e.created_at)
			FROM page_view_events e
			WHERE e.referrer_domain IS NOT NULL AND e.is_bot = ?
			GROUP BY e.referrer_domain
			ON CONFLICT (referrer_domain) DO UPDATE SET
				total_visits = MAX(referrer_stats.total_visits, excluded.total_visits),
				unique_visitors = MAX(referrer_stats.unique_visitors, excluded.unique_visitors),
				referrer_url_sample = excluded.referrer_url_sample,
				first_seen_at = MIN(referrer_stats.first_seen_at, excluded.first_seen_at),
				last_seen_at = MAX(referrer_stats.last_seen_at, excluded.last_seen_at)
		`, false, false)
		if result.Error != nil {
			return fmt.Errorf("failed to rebuild referrer stats: %w", result.Error)
		}
		rebuilt = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Rebuilt referrer stats", slog.Int64("domains", rebuilt))
	return rebuilt, nil
}
