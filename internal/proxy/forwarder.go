package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tapehub/tapehub/internal/recording"
)

// Upstream abstracts the outbound half of the proxy so the dispatcher can be
// exercised against fakes.
type Upstream interface {
	BuildOutbound(ctx context.Context, in Inbound) (*http.Request, error)
	Dispatch(req *http.Request) (recording.Response, error)
}

// Forwarder 将入站请求原样转发到上游，复用共享 http.Client；自身无状态。
type Forwarder struct {
	client *http.Client
	base   string
}

// NewForwarder 创建 Forwarder，upstream 末尾的单个 "/" 会被去掉以便直接拼接 path+query。
func NewForwarder(client *http.Client, upstream string) *Forwarder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Forwarder{
		client: client,
		base:   strings.TrimSuffix(upstream, "/"),
	}
}

// BuildOutbound 构造上游请求：method、所有头（含 Host）与 body 均不做修改。
func (f *Forwarder) BuildOutbound(ctx context.Context, in Inbound) (*http.Request, error) {
	target := f.base + in.PathAndQuery

	var body io.Reader = http.NoBody
	if len(in.Body) > 0 {
		body = bytes.NewReader(in.Body)
	}

	req, err := http.NewRequestWithContext(ctx, in.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request %s %s: %w", in.Method, target, err)
	}
	// net/http 发送时以 req.Host（即目标 URL 的 host）覆盖 Header 中的 Host。
	for key, values := range in.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return req, nil
}

// Dispatch 执行请求并完整读取 body；任何传输、超时或读取失败都返回 *UpstreamError。
func (f *Forwarder) Dispatch(req *http.Request) (recording.Response, error) {
	started := time.Now()
	defer func() {
		upstreamDuration.Observe(time.Since(started).Seconds())
	}()

	resp, err := f.client.Do(req)
	if err != nil {
		return recording.Response{}, &UpstreamError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return recording.Response{}, &UpstreamError{
			URL: req.URL.String(),
			Err: fmt.Errorf("read body: %w", err),
		}
	}

	return recording.Response{
		Proto:      resp.Proto,
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Headers:    sortedHeaders(resp.Header),
		Body:       body,
	}, nil
}

// reasonPhrase 从 "200 OK" 形式的 Status 中取出原因短语，缺失时退回标准短语。
func reasonPhrase(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode)
	if reason, ok := strings.CutPrefix(resp.Status, prefix); ok {
		if reason = strings.TrimPrefix(reason, " "); reason != "" {
			return reason
		}
	}
	return http.StatusText(resp.StatusCode)
}

// sortedHeaders 按规范名升序输出；同名多值保持接收顺序。
func sortedHeaders(header http.Header) []recording.Header {
	names := make([]string, 0, len(header))
	total := 0
	for name, values := range header {
		names = append(names, name)
		total += len(values)
	}
	sort.Strings(names)

	out := make([]recording.Header, 0, total)
	for _, name := range names {
		for _, value := range header[name] {
			out = append(out, recording.Header{Name: name, Value: value})
		}
	}
	return out
}
