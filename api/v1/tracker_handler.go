package v1

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"log/slog"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

//go:embed tracker.js
var trackerSource string

var trackerTemplate = template.Must(template.New("tracker.js").Parse(trackerSource))

// generateETag creates a strong ETag from content using SHA-256
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}

func renderTracker(baseURL string) ([]byte, error) {
	var buf bytes.Buffer
	if err := trackerTemplate.Execute(&buf, map[string]string{"BaseURL": baseURL}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TrackerScriptAction serves the browser beacon, answering 304 when the
// client already holds the current version.
func TrackerScriptAction(ctx *cartridge.Context) error {
	content, err := renderTracker(ctx.BaseURL())
	if err != nil {
		ctx.Logger.Error("Failed to render tracker script", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	etag := generateETag(content)
	ctx.Set(fiber.HeaderETag, etag)
	ctx.Set(fiber.HeaderCacheControl, "public, max-age=3600")

	if ctx.Get(fiber.HeaderIfNoneMatch) == etag {
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set(fiber.HeaderContentType, "application/javascript; charset=utf-8")
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}
