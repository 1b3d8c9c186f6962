package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "sitepulse/api/v1"
	"sitepulse/internal/auth"
	"sitepulse/internal/config"
	"sitepulse/internal/http"
	"sitepulse/internal/metrics"
	"sitepulse/internal/pkg/geoip"
	"sitepulse/internal/ratelimit"
	"sitepulse/internal/settings"
	"sitepulse/internal/timeframe"
)

// Deps are the collaborators shared by the route handlers. Nil fields get
// defaults when the routes are mounted.
type Deps struct {
	Metrics      *metrics.Collector
	Verifier     auth.Verifier
	SiteSettings *settings.SiteSettingsCache
	Geo          *geoip.Resolver
	Clock        timeframe.TimeProvider

	// RateLimitStorage holds the track and analytics limiter counters. Nil
	// keeps them in memory.
	RateLimitStorage fiber.Storage

	// TrackRateLimit and AnalyticsRateLimit override the configured
	// per-minute limits when positive.
	TrackRateLimit     int
	AnalyticsRateLimit int
}

func (d *Deps) withDefaults(srv *cartridge.Server, cfg *config.Config) *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.TrackRateLimit <= 0 {
		out.TrackRateLimit = cfg.TrackRateLimitPerMinute
	}
	if out.AnalyticsRateLimit <= 0 {
		out.AnalyticsRateLimit = cfg.QueryRateLimitPerMinute
	}
	if out.Metrics == nil {
		out.Metrics = metrics.New()
	}
	if out.Verifier == nil {
		out.Verifier = auth.SessionVerifier{}
	}
	if out.SiteSettings == nil {
		out.SiteSettings = settings.NewDBSiteSettingsCache(
			srv.GetDBManager().GetConnection(),
			time.Duration(cfg.SettingsCacheTTLSeconds)*time.Second,
		)
	}
	if out.Geo == nil {
		geo, err := geoip.Open(cfg.GeoDBPath, srv.GetLogger())
		if err != nil {
			srv.GetLogger().Warn("GeoIP disabled", "error", err)
		}
		out.Geo = geo
	}
	if out.Clock == nil {
		out.Clock = timeframe.DefaultTimeProvider{}
	}
	return &out
}

// SetupSession configures the admin session cookie on the server.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/api/auth/login",
	})
	srv.SetSession(sessionMgr)
}

// MountAppRoutes mounts every route with default collaborators.
func MountAppRoutes(srv *cartridge.Server) {
	MountAppRoutesWithDeps(srv, nil)
}

// MountAppRoutesWithDeps mounts every route using deps, filling gaps with defaults.
func MountAppRoutesWithDeps(srv *cartridge.Server, deps *Deps) {
	cfg := config.GetConfig()
	SetupSession(srv)
	deps = deps.withDefaults(srv, cfg)

	authRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		WriteConcurrency:   false,
		EnableSecFetchSite: cartridge.Bool(false),
		CORSConfig: &cors.Config{
			AllowOrigins: cfg.GetAllowedOrigins(),
			AllowMethods: "POST,GET,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept, User-Agent",
		},
	}

	countLimited := func(action string) func(*fiber.Ctx) {
		return func(*fiber.Ctx) {
			deps.Metrics.RateLimitHits.WithLabelValues(action).Inc()
		}
	}

	// Public ingestion is limited per client IP, admin queries per admin.
	trackRateLimiter := ratelimit.New(ratelimit.PerMinute(ratelimit.Config{
		Action:    v1.ActionTrack,
		Key:       v1.ClientIP,
		Storage:   deps.RateLimitStorage,
		OnLimited: countLimited(v1.ActionTrack),
	}, deps.TrackRateLimit))
	analyticsRateLimiter := ratelimit.New(ratelimit.PerMinute(ratelimit.Config{
		Action:    http.ActionAnalytics,
		Key:       http.AdminKey,
		Storage:   deps.RateLimitStorage,
		OnLimited: countLimited(http.ActionAnalytics),
	}, deps.AnalyticsRateLimit))

	trackConfig := *publicAPIConfig
	trackConfig.CustomMiddleware = []fiber.Handler{trackRateLimiter}

	analyticsConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			http.RequireAdmin(srv, deps.Verifier, deps.Metrics),
			analyticsRateLimiter,
		},
	}

	loginConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}

	noSecFetch := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	track := v1.NewTrackHandler(v1.TrackDeps{
		Metrics:      deps.Metrics,
		Verifier:     deps.Verifier,
		SiteSettings: deps.SiteSettings,
		Geo:          deps.Geo,
		SiteDomain:   cfg.Domain,
		Now:          deps.Clock.Now,
	})
	analyticsHandler := http.NewAnalyticsHandler(http.AnalyticsDeps{
		Metrics: deps.Metrics,
		Clock:   deps.Clock,
	})
	authHandler := http.NewAuthHandler(deps.Verifier, deps.Metrics)
	publicSettings := http.NewPublicSettingsHandler(deps.SiteSettings, deps.Metrics)

	// === HEALTH & METRICS ===
	srv.Get("/_health", http.HealthIndexAction, noSecFetch)
	srv.Head("/_health", http.HealthIndexAction, noSecFetch)
	if cfg.MetricsEnabled {
		metricsHandler := deps.Metrics.Handler()
		srv.Get("/metrics", func(ctx *cartridge.Context) error {
			return metricsHandler(ctx.Ctx)
		}, noSecFetch)
	}

	// === PUBLIC TRACKING API ===
	srv.Post("/api/v1/track", track.Track, &trackConfig)
	srv.Options("/api/v1/track", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Get("/api/v1/tracker.js", v1.TrackerScriptAction, publicAPIConfig)
	srv.Get("/api/settings/public", publicSettings.PublicSettingsAction, publicAPIConfig)

	// === AUTHENTICATION ===
	srv.Post("/api/auth/login", authHandler.LoginAction, loginConfig)
	srv.Post("/api/auth/logout", authHandler.LogoutAction)
	srv.Get("/api/auth/me", authHandler.MeAction)

	// === ADMIN ANALYTICS ===
	srv.Get("/api/admin/analytics", analyticsHandler.AnalyticsAction, analyticsConfig)
}
