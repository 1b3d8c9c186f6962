package http

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/auth"
	"sitepulse/internal/metrics"
	"sitepulse/internal/users"
)

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// AuthHandler manages the admin session cookie.
type AuthHandler struct {
	verifier auth.Verifier
	metrics  *metrics.Collector
}

func NewAuthHandler(verifier auth.Verifier, collector *metrics.Collector) *AuthHandler {
	if verifier == nil {
		verifier = auth.SessionVerifier{}
	}
	if collector == nil {
		collector = metrics.New()
	}
	return &AuthHandler{verifier: verifier, metrics: collector}
}

// LoginAction checks credentials and starts a session. The error message
// never says whether the email exists.
func (h *AuthHandler) LoginAction(ctx *cartridge.Context) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request",
			"code":  "INVALID_REQUEST",
		})
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
			"code":  "INVALID_REQUEST",
		})
	}

	user, err := users.Authenticate(ctx.DB(), ctx.Logger, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.metrics.AuthFailures.WithLabelValues("bad_credentials").Inc()
			ctx.Logger.Debug("Rejected login", slog.String("email", req.Email))
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid email or password",
				"code":  "INVALID_CREDENTIALS",
			})
		}
		ctx.Logger.Error("Login lookup failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
			"code":  "LOGIN_FAILED",
		})
	}

	if err := ctx.Session.SetSession(ctx.Ctx, user.ID); err != nil {
		ctx.Logger.Error("Failed to set session", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
			"code":  "LOGIN_FAILED",
		})
	}

	ctx.Logger.Info("Admin logged in", slog.Uint64("user_id", uint64(user.ID)))
	return ctx.JSON(fiber.Map{"user": auth.Principal{UserID: user.ID, Email: user.Email}})
}

// LogoutAction clears the session. It succeeds even without one.
func (h *AuthHandler) LogoutAction(ctx *cartridge.Context) error {
	if ctx.Session != nil {
		ctx.Session.ClearSession(ctx.Ctx)
	}
	return ctx.JSON(fiber.Map{"success": true})
}

// MeAction reports the signed-in admin. The beacon uses it to skip owner visits.
func (h *AuthHandler) MeAction(ctx *cartridge.Context) error {
	principal, err := h.verifier.VerifyAdmin(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
		}
		ctx.Logger.Error("Failed to verify admin session", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to verify session",
			"code":  "AUTH_ERROR",
		})
	}
	return ctx.JSON(fiber.Map{"user": principal})
}
