package routes

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tapehub/tapehub/internal/config"
	"github.com/tapehub/tapehub/internal/tape"
)

// StatusSource 汇总 /-/status 所需的运行时信息。
type StatusSource struct {
	Config  *config.Config
	Store   tape.Store
	Version string
}

type statusPayload struct {
	Upstream   string `json:"upstream"`
	TapePath   string `json:"tape_path"`
	ReplayOnly bool   `json:"replay_only"`
	Tapes      int    `json:"tapes"`
	Version    string `json:"version"`
}

// RegisterAdminRoutes 暴露 /-/status 与 /-/metrics 诊断接口，供运维查看录音库状态。
func RegisterAdminRoutes(app *fiber.App, source StatusSource) {
	if app == nil || source.Config == nil || source.Store == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		count, err := source.Store.Count(ctx)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "tape_count_failed"})
		}
		return c.JSON(statusPayload{
			Upstream:   source.Config.Tape.Upstream,
			TapePath:   source.Config.Tape.TapePath,
			ReplayOnly: source.Config.Tape.ReplayOnly,
			Tapes:      count,
			Version:    source.Version,
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
