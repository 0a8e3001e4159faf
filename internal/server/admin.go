package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/sirupsen/logrus"
)

// NewAdminApp builds the Fiber application served on AdminListen. Diagnostic
// routes live here so the proxy listener never shadows an upstream path.
func NewAdminApp(logger *logrus.Logger) (*fiber.App, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})
	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(func(c fiber.Ctx) error {
		if reqID := RequestID(c); reqID != "" {
			c.Set("X-Request-ID", reqID)
		}
		return c.Next()
	})

	return app, nil
}
