package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// Setting keys.
const (
	KeyExcludedIPs      = "excluded_ips"
	KeySiteTitle        = "site_title"
	KeySiteDescription  = "site_description"
	KeyAnalyticsEnabled = "analytics_enabled"
)

var defaults = []Setting{
	{Key: KeyExcludedIPs, Value: ""},
	{Key: KeySiteTitle, Value: "My Site"},
	{Key: KeySiteDescription, Value: ""},
	{Key: KeyAnalyticsEnabled, Value: "true"},
}

var excludedIPsCache *cache.Cache[string, []string]

// SetupDefaultSettings inserts any missing default settings and primes the
// excluded IP cache.
func SetupDefaultSettings(dbConn *gorm.DB, logger *slog.Logger) error {
	err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, setting := range defaults {
			err := tx.Exec(`
				INSERT INTO settings (key, value, created_at, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(key) DO NOTHING
			`, setting.Key, setting.Value, now, now).Error
			if err != nil {
				return fmt.Errorf("failed to insert default setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	loadCache(dbConn, logger)
	return err
}

// GetSetting retrieves a setting value from the database.
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	if err := dbConn.Where("key = ?", key).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

// UpdateSetting creates or replaces a setting.
func UpdateSetting(dbConn *gorm.DB, logger *slog.Logger, key, value string) error {
	err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		return tx.Exec(`
			INSERT INTO settings (key, value, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}

	if key == KeyExcludedIPs {
		if excludedIPsCache != nil {
			excludedIPsCache.Clear()
		}
		loadCache(dbConn, logger)
	}
	return nil
}

// IsIPExcluded reports whether ip is in the excluded_ips setting. Before
// SetupDefaultSettings runs nothing is excluded.
func IsIPExcluded(ip string) (bool, error) {
	if excludedIPsCache == nil {
		return false, nil
	}

	excluded, err := excludedIPsCache.Get(KeyExcludedIPs)
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}
	for _, candidate := range excluded {
		if candidate == ip {
			return true, nil
		}
	}
	return false, nil
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetch := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).
			Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).
			Scan(&value).Error
		if err != nil {
			return nil, err
		}
		return splitList(value), nil
	}
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetch)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsNotFound reports whether err means the setting does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
