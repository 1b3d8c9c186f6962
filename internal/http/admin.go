package http

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/auth"
	"sitepulse/internal/metrics"
)

const adminLocal = "sitepulse_admin"

// RequireAdmin verifies the admin session ahead of the route's other
// middleware and stores the principal for them. Requests without a session
// get 401; verifier failures get 500.
func RequireAdmin(srv *cartridge.Server, verifier auth.Verifier, m *metrics.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := &cartridge.Context{
			Ctx:       c,
			Logger:    srv.GetLogger(),
			DBManager: srv.GetDBManager(),
			Session:   srv.Session(),
		}

		principal, err := verifier.VerifyAdmin(ctx)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				m.AuthFailures.WithLabelValues("no_session").Inc()
				return unauthorized(c)
			}
			srv.GetLogger().Error("Failed to verify admin session", slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to verify session",
				"code":  "AUTH_ERROR",
			})
		}

		c.Locals(adminLocal, principal)
		return c.Next()
	}
}

// AdminFrom returns the principal stored by RequireAdmin.
func AdminFrom(c *fiber.Ctx) (*auth.Principal, bool) {
	p, ok := c.Locals(adminLocal).(*auth.Principal)
	return p, ok && p != nil
}

// AdminKey keys rate limits by admin user id. It is empty when RequireAdmin
// has not run.
func AdminKey(c *fiber.Ctx) string {
	p, ok := AdminFrom(c)
	if !ok {
		return ""
	}
	return strconv.FormatUint(uint64(p.UserID), 10)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
		"code":  "UNAUTHORIZED",
	})
}
