// Package events records page views and keeps the referrer and daily rollups in step with them.
package events

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

var (
	ErrMissingSessionID = errors.New("sessionId is required")
	ErrMissingPagePath  = errors.New("pagePath is required")
)

// RecordPageViewInput is one tracked page view plus the context the server derived for it.
type RecordPageViewInput struct {
	SessionID   string
	PagePath    string
	PageTitle   string
	Referrer    string
	StatusCode  int
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string

	DeviceType string
	Browser    string
	OS         string
	Country    string
	IsBot      bool

	// SiteHosts are hosts of the tracked site; referrers from them are dropped.
	SiteHosts []string
	// ReceivedAt is the server timestamp; zero means now.
	ReceivedAt time.Time
}

// RecordResult describes what RecordPageView wrote.
type RecordResult struct {
	Event *PageViewEvent
	// RollupsUpdated is false for bot traffic and when the rollup write failed.
	RollupsUpdated bool
	// RollupErr is set when the raw event was stored but its rollups were not.
	RollupErr error
}

// BuildPageViewEvent sanitizes input into the row that would be stored.
func BuildPageViewEvent(input *RecordPageViewInput) (*PageViewEvent, error) {
	sessionID := Truncate(input.SessionID, MaxSessionIDLength)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	pagePath := NormalizePath(input.PagePath)
	if pagePath == "" {
		return nil, ErrMissingPagePath
	}

	createdAt := input.ReceivedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	statusCode := input.StatusCode
	if statusCode <= 0 {
		statusCode = StatusOK
	}

	event := &PageViewEvent{
		SessionID:   sessionID,
		PagePath:    pagePath,
		PageTitle:   Optional(input.PageTitle, MaxPageTitleLength),
		UTMSource:   Optional(input.UTMSource, MaxUTMLength),
		UTMMedium:   Optional(input.UTMMedium, MaxUTMLength),
		UTMCampaign: Optional(input.UTMCampaign, MaxUTMLength),
		UTMTerm:     Optional(input.UTMTerm, MaxUTMLength),
		UTMContent:  Optional(input.UTMContent, MaxUTMLength),
		DeviceType:  Optional(input.DeviceType, MaxClassLength),
		Browser:     Optional(input.Browser, MaxClassLength),
		OS:          Optional(input.OS, MaxClassLength),
		Country:     Optional(input.Country, 2),
		IsBot:       input.IsBot,
		StatusCode:  statusCode,
		CreatedAt:   createdAt.UTC(),
	}

	if referrer := Truncate(input.Referrer, MaxReferrerLength); referrer != "" {
		domain := ReferrerDomain(referrer)
		self := false
		for _, host := range input.SiteHosts {
			if IsSelfReferral(domain, host) {
				self = true
				break
			}
		}
		if !self {
			event.ReferrerURL = &referrer
			if domain != "" {
				event.ReferrerDomain = &domain
			}
		}
	}

	return event, nil
}

// RecordPageView stores the raw event and then upserts its rollups.
//
// The raw insert and the rollup upserts are separate writes. A failed rollup
// write is logged and reported in the result but never undoes the raw event;
// the rollups can be rebuilt from the log.
func RecordPageView(dbManager cartridge.DBManager, logger *slog.Logger, input *RecordPageViewInput) (*RecordResult, error) {
	event, err := BuildPageViewEvent(input)
	if err != nil {
		return nil, err
	}

	db := dbManager.GetConnection()
	if err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(event).Error
	}); err != nil {
		logger.Error("Failed to store page view", slog.Any("error", err), slog.String("path", event.PagePath))
		return nil, fmt.Errorf("failed to store page view: %w", err)
	}

	result := &RecordResult{Event: event}
	if event.IsBot {
		logger.Debug("Bot page view logged without rollups", slog.String("path", event.PagePath))
		return result, nil
	}

	if err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return UpdateRollups(tx, event)
	}); err != nil {
		logger.Error("Failed to update rollups for page view",
			slog.Any("error", err),
			slog.String("event_id", event.ID),
			slog.String("path", event.PagePath))
		result.RollupErr = err
		return result, nil
	}

	result.RollupsUpdated = true
	return result, nil
}
