package beacon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HTTPSender posts events to a sitepulse server with the Fiber client.
type HTTPSender struct {
	endpoint  string
	userAgent string
}

// NewHTTPSender targets the track endpoint of the server at baseURL.
// userAgent is forwarded so the server can classify the visitor.
func NewHTTPSender(baseURL, userAgent string) *HTTPSender {
	return &HTTPSender{
		endpoint:  strings.TrimRight(baseURL, "/") + "/api/v1/track",
		userAgent: userAgent,
	}
}

func (s *HTTPSender) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := DefaultSendTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	agent := fiber.Post(s.endpoint)
	agent.Timeout(timeout)
	if s.userAgent != "" {
		agent.UserAgent(s.userAgent)
	}
	agent.JSON(ev)
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("failed to prepare track request: %w", err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("track request failed: %w", errors.Join(errs...))
	}
	if code != fiber.StatusAccepted && code != fiber.StatusOK {
		return fmt.Errorf("track request returned %d: %s", code, body)
	}
	return nil
}
