package proxy

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
)

// Inbound 是与 HTTP 框架无关的入站请求快照，Dispatcher 只依赖它。
type Inbound struct {
	Method       string
	PathAndQuery string
	Header       http.Header
	Body         []byte
}

// inboundFromFiber 复制 fasthttp 的请求数据；fiber 在 handler 返回后会复用这些缓冲区。
func inboundFromFiber(c fiber.Ctx) Inbound {
	req := c.Request()

	header := make(http.Header)
	for key, value := range req.Header.All() {
		header.Add(string(key), string(value))
	}

	return Inbound{
		Method:       string(req.Header.Method()),
		PathAndQuery: requestPath(c),
		Header:       header,
		Body:         append([]byte(nil), req.Body()...),
	}
}

// requestPath 优先使用原始请求行中的 path+query，避免 fiber 的解码与规范化。
func requestPath(c fiber.Ctx) string {
	if uri := c.OriginalURL(); len(uri) > 0 && uri[0] == '/' {
		return uri
	}
	if uri := string(c.Request().URI().RequestURI()); uri != "" {
		return uri
	}
	return "/"
}
