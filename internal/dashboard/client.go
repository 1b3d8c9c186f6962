package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"sitepulse/internal/analytics"
)

const (
	MessageUnauthorized = "You must be logged in to view analytics"
	MessageLoadFailed   = "Failed to load analytics"
)

// StatusError is a non-200 answer from the analytics endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analytics request failed with status %d", e.Code)
}

// ErrorMessage is the text shown when loading fails. Only a missing session
// gets its own wording.
func ErrorMessage(err error) string {
	var status *StatusError
	if errors.As(err, &status) && status.Code == fiber.StatusUnauthorized {
		return MessageUnauthorized
	}
	return MessageLoadFailed
}

// DrillDown is one decoded drill-down page. Exactly one field is set,
// depending on the view.
type DrillDown struct {
	Pages     *analytics.Paginated[analytics.PageMetric]     `json:"pages"`
	Referrers *analytics.Paginated[analytics.ReferrerMetric] `json:"referrers"`
	Errors    *analytics.Paginated[analytics.NotFoundMetric] `json:"errors"`
}

// Client reads the admin analytics endpoint with a session cookie.
type Client struct {
	baseURL    string
	cookieName string
	session    string
	timeout    time.Duration
}

// NewClient targets the server at baseURL, authenticating with the given
// session cookie value.
func NewClient(baseURL, cookieName, session string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookieName: cookieName,
		session:    session,
		timeout:    10 * time.Second,
	}
}

// Summary loads the overview for a window of days.
func (c *Client) Summary(ctx context.Context, days int) (*analytics.AnalyticsSummary, error) {
	q := Query{Action: "summary", Days: days, Page: 1, Limit: analytics.DefaultPageLimit}
	var summary analytics.AnalyticsSummary
	if err := c.get(ctx, q, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// DrillDown loads the page described by q, usually from Navigator.Request.
func (c *Client) DrillDown(ctx context.Context, q Query) (*DrillDown, error) {
	var out DrillDown
	if err := c.get(ctx, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, q Query, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	agent := fiber.Get(c.baseURL + "/api/admin/analytics?" + q.Values().Encode())
	agent.Timeout(timeout)
	if c.session != "" {
		agent.Cookie(c.cookieName, c.session)
	}
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("failed to prepare analytics request: %w", err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("analytics request failed: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return &StatusError{Code: code, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode analytics response: %w", err)
	}
	return nil
}
