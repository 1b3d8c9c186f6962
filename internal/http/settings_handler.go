package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/metrics"
	"sitepulse/internal/settings"
)

// PublicSettingsHandler serves the cached public site settings.
type PublicSettingsHandler struct {
	cache   *settings.SiteSettingsCache
	metrics *metrics.Collector
}

func NewPublicSettingsHandler(cache *settings.SiteSettingsCache, collector *metrics.Collector) *PublicSettingsHandler {
	if collector == nil {
		collector = metrics.New()
	}
	return &PublicSettingsHandler{cache: cache, metrics: collector}
}

func (h *PublicSettingsHandler) PublicSettingsAction(ctx *cartridge.Context) error {
	site, lookup, err := h.cache.Get(ctx.UserContext())
	h.metrics.CacheLookups.WithLabelValues(lookup).Inc()
	if err != nil {
		ctx.Logger.Error("Failed to load public settings", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load settings",
			"code":  "SETTINGS_UNAVAILABLE",
		})
	}

	ctx.Set(fiber.HeaderCacheControl, "public, max-age=60")
	return ctx.JSON(site)
}
