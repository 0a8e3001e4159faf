package proxy

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable 表示上游无法给出完整响应（连接失败、超时、取消或读 body 失败）。
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// UpstreamError 记录失败的目标地址与底层原因。
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

// Unwrap 同时暴露哨兵错误与底层错误，便于 errors.Is 判断超时或取消。
func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}
