package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gorm.io/gorm"
)

// PublicSettings are the site settings anyone may read.
type PublicSettings struct {
	SiteTitle        string `json:"siteTitle"`
	SiteDescription  string `json:"siteDescription"`
	AnalyticsEnabled bool   `json:"analyticsEnabled"`
}

// DefaultPublicSettings is used before anything has been loaded.
func DefaultPublicSettings() PublicSettings {
	return PublicSettings{SiteTitle: "My Site", AnalyticsEnabled: true}
}

// LoadPublicSettings reads the public settings from the database. Missing
// keys keep their defaults.
func LoadPublicSettings(ctx context.Context, db *gorm.DB) (PublicSettings, error) {
	var rows []Setting
	err := db.WithContext(ctx).
		Where("key IN ?", []string{KeySiteTitle, KeySiteDescription, KeyAnalyticsEnabled}).
		Find(&rows).Error
	if err != nil {
		return PublicSettings{}, fmt.Errorf("failed to load public settings: %w", err)
	}

	out := DefaultPublicSettings()
	for _, row := range rows {
		switch row.Key {
		case KeySiteTitle:
			out.SiteTitle = row.Value
		case KeySiteDescription:
			out.SiteDescription = row.Value
		case KeyAnalyticsEnabled:
			if enabled, err := strconv.ParseBool(row.Value); err == nil {
				out.AnalyticsEnabled = enabled
			}
		}
	}
	return out, nil
}

// Loader fetches fresh public settings.
type Loader func(ctx context.Context) (PublicSettings, error)

// Lookup results reported by SiteSettingsCache.Get.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupStale = "stale"
)

// SiteSettingsCache holds the public settings for ttl. When a refresh fails
// and a previous value exists, the stale value is served instead of the
// error. Each server owns its own instance.
type SiteSettingsCache struct {
	mu        sync.Mutex
	load      Loader
	ttl       time.Duration
	now       func() time.Time
	value     *PublicSettings
	expiresAt time.Time
}

// NewSiteSettingsCache creates an empty cache. A nil now uses time.Now.
func NewSiteSettingsCache(load Loader, ttl time.Duration, now func() time.Time) *SiteSettingsCache {
	if now == nil {
		now = time.Now
	}
	return &SiteSettingsCache{load: load, ttl: ttl, now: now}
}

// NewDBSiteSettingsCache caches LoadPublicSettings against db.
func NewDBSiteSettingsCache(db *gorm.DB, ttl time.Duration) *SiteSettingsCache {
	return NewSiteSettingsCache(func(ctx context.Context) (PublicSettings, error) {
		return LoadPublicSettings(ctx, db)
	}, ttl, nil)
}

// Get returns the cached settings, refreshing them once expired. The second
// result is one of LookupHit, LookupMiss or LookupStale.
func (c *SiteSettingsCache) Get(ctx context.Context) (PublicSettings, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.value != nil && now.Before(c.expiresAt) {
		return *c.value, LookupHit, nil
	}

	fresh, err := c.load(ctx)
	if err != nil {
		if c.value != nil {
			return *c.value, LookupStale, nil
		}
		return PublicSettings{}, LookupMiss, err
	}

	c.value = &fresh
	c.expiresAt = now.Add(c.ttl)
	return fresh, LookupMiss, nil
}

// Invalidate forces the next Get to reload.
func (c *SiteSettingsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiresAt = time.Time{}
}
