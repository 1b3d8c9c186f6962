// Package v1 serves the public tracking API: the page view endpoint and the
// browser tracker script.
package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/auth"
	"sitepulse/internal/events"
	"sitepulse/internal/metrics"
	"sitepulse/internal/pkg/geoip"
	"sitepulse/internal/pkg/useragent"
	"sitepulse/internal/settings"
)

// ActionTrack is the rate limit action for page view submissions.
const ActionTrack = "track"

const (
	errInvalidRequest = "Invalid request"
	errRecordFailed   = "Failed to record page view"
)

// TrackDeps are the collaborators of the track endpoint.
type TrackDeps struct {
	Metrics      *metrics.Collector
	Verifier     auth.Verifier
	SiteSettings *settings.SiteSettingsCache
	Geo          *geoip.Resolver
	// SiteDomain is the configured host of the tracked site.
	SiteDomain string
	Now        func() time.Time
}

// TrackHandler records page views posted by the beacon.
type TrackHandler struct {
	deps TrackDeps
}

// NewTrackHandler fills in defaults for any missing collaborator.
func NewTrackHandler(deps TrackDeps) *TrackHandler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &TrackHandler{deps: deps}
}

// trackPayload holds the decoded fields. A field sent with the wrong JSON
// type is left at its zero value, the same as if it were absent.
type trackPayload struct {
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
}

func decodeTrackPayload(body []byte) (*trackPayload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, errors.New("body must be a JSON object")
	}

	str := func(key string) string {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil {
			return s
		}
		return ""
	}

	p := &trackPayload{
		SessionID:   str("sessionId"),
		PagePath:    str("pagePath"),
		PageTitle:   str("pageTitle"),
		Referrer:    str("referrer"),
		UTMSource:   str("utmSource"),
		UTMMedium:   str("utmMedium"),
		UTMCampaign: str("utmCampaign"),
		UTMTerm:     str("utmTerm"),
		UTMContent:  str("utmContent"),
	}

	if raw, ok := fields["statusCode"]; ok {
		var code float64
		if json.Unmarshal(raw, &code) == nil && code >= 100 && code <= 599 && code == float64(int(code)) {
			p.StatusCode = int(code)
		}
	}
	return p, nil
}

// Track serves POST /api/v1/track. Rate limiting runs before it as route
// middleware keyed by ClientIP.
func (h *TrackHandler) Track(ctx *cartridge.Context) error {
	ip := ClientIP(ctx.Ctx)

	payload, err := decodeTrackPayload(ctx.Body())
	if err != nil {
		h.deps.Metrics.EventsIngested.WithLabelValues(metrics.OutcomeInvalid).Inc()
		ctx.Logger.Debug("Rejected page view body", slog.Any("error", err))
		return invalidRequest(ctx, err.Error())
	}

	if reason := h.skipReason(ctx, ip); reason != "" {
		h.deps.Metrics.EventsIngested.WithLabelValues(metrics.OutcomeSkipped).Inc()
		ctx.Logger.Debug("Skipped page view", slog.String("reason", reason))
		return accepted(ctx)
	}

	userAgent := ctx.Get(fiber.HeaderUserAgent)
	ua := useragent.Classify(userAgent)

	input := &events.RecordPageViewInput{
		SessionID:   payload.SessionID,
		PagePath:    payload.PagePath,
		PageTitle:   payload.PageTitle,
		Referrer:    payload.Referrer,
		StatusCode:  payload.StatusCode,
		UTMSource:   payload.UTMSource,
		UTMMedium:   payload.UTMMedium,
		UTMCampaign: payload.UTMCampaign,
		UTMTerm:     payload.UTMTerm,
		UTMContent:  payload.UTMContent,
		DeviceType:  ua.DeviceType,
		Browser:     ua.Browser,
		OS:          ua.OS,
		Country:     h.deps.Geo.Country(ip),
		IsBot:       ua.IsBot,
		SiteHosts:   h.siteHosts(ctx),
		ReceivedAt:  h.deps.Now(),
	}

	result, err := events.RecordPageView(ctx.DBManager, ctx.Logger, input)
	switch {
	case errors.Is(err, events.ErrMissingSessionID), errors.Is(err, events.ErrMissingPagePath):
		h.deps.Metrics.EventsIngested.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return invalidRequest(ctx, err.Error())
	case err != nil:
		h.deps.Metrics.EventsIngested.WithLabelValues(metrics.OutcomeFailed).Inc()
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": errRecordFailed,
			"code":  "RECORD_FAILED",
		})
	}

	if result.RollupErr != nil {
		h.deps.Metrics.RollupFailures.Inc()
	}
	outcome := metrics.OutcomeRecorded
	if result.Event.IsBot {
		outcome = metrics.OutcomeBot
	}
	h.deps.Metrics.EventsIngested.WithLabelValues(outcome).Inc()

	return accepted(ctx)
}

// skipReason returns why a valid submission should not be recorded, or "".
func (h *TrackHandler) skipReason(ctx *cartridge.Context, ip string) string {
	if auth.IsAdmin(h.deps.Verifier, ctx) {
		return "admin"
	}

	if h.deps.SiteSettings != nil {
		site, lookup, err := h.deps.SiteSettings.Get(ctx.UserContext())
		h.deps.Metrics.CacheLookups.WithLabelValues(lookup).Inc()
		if err != nil {
			ctx.Logger.Warn("Failed to load site settings, tracking anyway", slog.Any("error", err))
		} else if !site.AnalyticsEnabled {
			return "disabled"
		}
	}

	excluded, err := settings.IsIPExcluded(ip)
	if err != nil {
		ctx.Logger.Warn("Failed to check excluded IPs", slog.Any("error", err))
	} else if excluded {
		return "excluded_ip"
	}
	return ""
}

// siteHosts are the hosts whose referrers count as internal navigation.
func (h *TrackHandler) siteHosts(ctx *cartridge.Context) []string {
	var hosts []string
	if h.deps.SiteDomain != "" {
		hosts = append(hosts, h.deps.SiteDomain)
	}
	if origin := ctx.Get(fiber.HeaderOrigin); origin != "" {
		if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
			hosts = append(hosts, strings.ToLower(u.Hostname()))
		}
	}
	return hosts
}

func accepted(ctx *cartridge.Context) error {
	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
}

func invalidRequest(ctx *cartridge.Context, detail string) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  errInvalidRequest,
		"code":   "INVALID_REQUEST",
		"detail": detail,
	})
}
