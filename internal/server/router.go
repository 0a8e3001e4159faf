package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tapehub/tapehub/internal/config"
)

// ProxyHandler describes the component that answers every request arriving
// on the proxy listener. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the proxy Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	Proxy  ProxyHandler
	// BodyLimit 为 0 时使用 config.DefaultMaxBodySize。
	BodyLimit int
	// ReadBufferSize 为 0 时使用 config.DefaultReadBufferSize。
	ReadBufferSize int
}

// extraMethods 是 fiber 默认方法集合之外仍需转发的方法（WebDAV 与缓存清理）。
var extraMethods = []string{
	"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE", "LOCK", "UNLOCK", "REPORT", "PURGE",
}

// proxyMethods 复制 fiber.DefaultMethods，避免 append 改写共享的底层数组。
func proxyMethods() []string {
	methods := make([]string, 0, len(fiber.DefaultMethods)+len(extraMethods))
	methods = append(methods, fiber.DefaultMethods...)
	return append(methods, extraMethods...)
}

const contextKeyRequestID = "_tapehub_request_id"

// NewApp builds the proxy Fiber application. Every method and path is handed
// to the proxy handler; the listener carries no routes of its own.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}

	bodyLimit := opts.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = config.DefaultMaxBodySize
	}
	readBuffer := opts.ReadBufferSize
	if readBuffer <= 0 {
		readBuffer = config.DefaultReadBufferSize
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:  true,
		StrictRouting:  true,
		BodyLimit:      bodyLimit,
		ReadBufferSize: readBuffer,
		RequestMethods: proxyMethods(),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		return opts.Proxy.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 生成请求 ID，仅写入 Locals；代理响应的头部保持与录音一致。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals(contextKeyRequestID, uuid.NewString())
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
