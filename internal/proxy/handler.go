package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/tapehub/tapehub/internal/logging"
	"github.com/tapehub/tapehub/internal/recording"
	"github.com/tapehub/tapehub/internal/server"
	"github.com/tapehub/tapehub/internal/tape"
)

const outcomeError = "error"

// Handler 把 Fiber 请求交给 Dispatcher，并负责渲染结果、映射错误与输出结构化日志。
type Handler struct {
	dispatcher *Dispatcher
	logger     *logrus.Logger
}

// NewHandler constructs the fiber-facing proxy handler.
func NewHandler(dispatcher *Dispatcher, logger *logrus.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handle 实现 server.ProxyHandler；每个请求输出一行日志。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	in := inboundFromFiber(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := h.dispatcher.Dispatch(ctx, in)
	if err == nil {
		err = render(c, out)
	}
	if err != nil {
		status, code := classifyError(err)
		requestsTotal.WithLabelValues(outcomeError).Inc()
		h.logResult(in, outcomeError, status, requestID, started, err)
		return writeError(c, status, code, requestID)
	}

	requestsTotal.WithLabelValues(out.Name()).Inc()
	h.logResult(in, out.Name(), out.Status(), requestID, started, nil)
	return nil
}

// render 对封闭的 Outcome 集合做类型分派。
func render(c fiber.Ctx, out Outcome) error {
	switch o := out.(type) {
	case Playback:
		return writeRecording(c, o.Response)
	case Recorded:
		return writeRecording(c, o.Response)
	case NotImplemented:
		c.Status(fiber.StatusNotImplemented)
		header := &c.Response().Header
		header.SetNoDefaultContentType(true)
		for _, accept := range o.Accept {
			header.Add(fiber.HeaderAccept, accept)
		}
		c.Response().ResetBody()
		return nil
	default:
		return fmt.Errorf("unknown outcome %T", out)
	}
}

// writeRecording 只设置数字状态码，原因短语由 HTTP 层按状态码补全。
// Date 与 Transfer-Encoding 由 fasthttp 自行管理。
// 录音中的头部值保持原样，写回时去掉首尾空白（OWS），手工编辑的录音也按此处理。
func writeRecording(c fiber.Ctx, resp recording.Response) error {
	c.Status(resp.StatusCode)
	header := &c.Response().Header
	header.SetNoDefaultContentType(true)
	for _, field := range resp.Headers {
		header.Add(field.Name, textproto.TrimString(field.Value))
	}
	return c.Send(resp.Body)
}

// classifyError 将错误映射为 HTTP 状态与稳定的错误码。
func classifyError(err error) (int, string) {
	var storageErr *tape.StorageError
	switch {
	case errors.As(err, &storageErr):
		return fiber.StatusInternalServerError, "tape_storage_failed"
	case errors.Is(err, recording.ErrMalformed):
		return fiber.StatusInternalServerError, "tape_malformed"
	case errors.Is(err, ErrUpstreamUnavailable):
		return fiber.StatusBadGateway, "upstream_unavailable"
	default:
		return fiber.StatusInternalServerError, "proxy_failed"
	}
}

func writeError(c fiber.Ctx, status int, code, requestID string) error {
	c.Response().Reset()
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(in Inbound, outcome string, status int, requestID string, started time.Time, err error) {
	if h.logger == nil {
		return
	}
	fields := logging.RequestFields(in.Method, in.PathAndQuery, outcome, status)
	fields["action"] = "proxy"
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}
