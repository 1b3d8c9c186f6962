package http

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/analytics"
	"sitepulse/internal/metrics"
	"sitepulse/internal/timeframe"
)

// Analytics actions accepted by AnalyticsAction.
const (
	ActionSummary       = "summary"
	ActionAllPages      = "all-pages"
	ActionAllReferrers  = "all-referrers"
	ActionAll404s       = "all-404s"
	ActionPageReferrers = "page-referrers"
	ActionReferrerPages = "referrer-pages"
)

// ActionAnalytics is the rate limit action shared by every analytics query.
const ActionAnalytics = "analytics"

// ErrUnknownAction is returned for an unsupported action parameter.
var ErrUnknownAction = errors.New("unknown analytics action")

// AnalyticsDeps are the collaborators of the admin analytics endpoint.
type AnalyticsDeps struct {
	Metrics *metrics.Collector
	Clock   timeframe.TimeProvider
}

// AnalyticsHandler answers summary and drill-down queries for signed-in admins.
type AnalyticsHandler struct {
	deps AnalyticsDeps
}

func NewAnalyticsHandler(deps AnalyticsDeps) *AnalyticsHandler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Clock == nil {
		deps.Clock = timeframe.DefaultTimeProvider{}
	}
	return &AnalyticsHandler{deps: deps}
}

// analyticsQuery is the parsed query string.
type analyticsQuery struct {
	Action   string
	Range    timeframe.DateRange
	Page     int
	Limit    int
	PagePath string
	Domain   string
}

func (h *AnalyticsHandler) parseQuery(ctx *cartridge.Context) (analyticsQuery, error) {
	q := analyticsQuery{
		Action:   ctx.Query("action", ActionSummary),
		Page:     ctx.QueryInt("page", 1),
		Limit:    ctx.QueryInt("limit", analytics.DefaultPageLimit),
		PagePath: strings.TrimSpace(ctx.Query("pagePath")),
		Domain:   strings.TrimSpace(ctx.Query("domain")),
	}

	start, end := ctx.Query("startDate"), ctx.Query("endDate")
	if start != "" || end != "" {
		r, err := timeframe.ParseDateRange(start, end)
		if err != nil {
			return q, err
		}
		q.Range = r
		return q, nil
	}

	q.Range = timeframe.LastDays(h.deps.Clock.Now(), timeframe.ParseWindow(ctx.Query("days")))
	return q, nil
}

// AnalyticsAction serves GET /api/admin/analytics. It is mounted behind
// RequireAdmin and the per-admin rate limiter.
func (h *AnalyticsHandler) AnalyticsAction(ctx *cartridge.Context) error {
	if _, ok := AdminFrom(ctx.Ctx); !ok {
		return unauthorized(ctx.Ctx)
	}

	q, err := h.parseQuery(ctx)
	if err != nil {
		return badRequest(ctx, err)
	}

	started := time.Now()
	body, err := h.run(ctx, q)
	if err != nil {
		var invalid invalidQueryError
		if errors.As(err, &invalid) || errors.Is(err, ErrUnknownAction) || errors.Is(err, analytics.ErrMissingFilter) {
			return badRequest(ctx, err)
		}
		ctx.Logger.Error("Analytics query failed",
			slog.String("action", q.Action),
			slog.String("range", q.Range.String()),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load analytics",
			"code":  "QUERY_FAILED",
		})
	}
	h.deps.Metrics.ObserveQuery(q.Action, started)

	return ctx.JSON(body)
}

type invalidQueryError struct {
	msg string
}

func (e invalidQueryError) Error() string {
	return e.msg
}

func (h *AnalyticsHandler) run(ctx *cartridge.Context, q analyticsQuery) (any, error) {
	db := ctx.DB()
	req := analytics.PageRequest{Range: q.Range, Page: q.Page, Limit: q.Limit}

	switch q.Action {
	case ActionSummary:
		return analytics.GetSummary(ctx.UserContext(), db, q.Range)
	case ActionAllPages:
		pages, err := analytics.AllPages(db, req)
		return wrap("pages", pages, err)
	case ActionAllReferrers:
		referrers, err := analytics.AllReferrers(db, req)
		return wrap("referrers", referrers, err)
	case ActionAll404s:
		errs, err := analytics.All404s(db, req)
		return wrap("errors", errs, err)
	case ActionPageReferrers:
		if q.PagePath == "" {
			return nil, invalidQueryError{"pagePath is required for " + ActionPageReferrers}
		}
		referrers, err := analytics.ReferrersForPage(db, req, q.PagePath)
		return wrap("referrers", referrers, err)
	case ActionReferrerPages:
		if q.Domain == "" {
			return nil, invalidQueryError{"domain is required for " + ActionReferrerPages}
		}
		pages, err := analytics.PagesFromReferrer(db, req, q.Domain)
		return wrap("pages", pages, err)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, q.Action)
	}
}

func wrap(key string, value any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return fiber.Map{key: value}, nil
}

func badRequest(ctx *cartridge.Context, err error) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "INVALID_REQUEST",
	})
}
