package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.BindAddress == "" {
		return newFieldError("Global.BindAddress", "不能为空")
	}
	if net.ParseIP(g.BindAddress) == nil {
		return newFieldError("Global.BindAddress", fmt.Sprintf("不是合法的 IP: %s", g.BindAddress))
	}
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MaxBodySize < 0 {
		return newFieldError("Global.MaxBodySize", "不能为负数")
	}
	if g.ReadBufferSize < 0 {
		return newFieldError("Global.ReadBufferSize", "不能为负数")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxSize/LogMaxBackups", "不能为负数")
	}
	if g.AdminListen != "" {
		if err := validateListen(g.AdminListen); err != nil {
			return wrapFieldError("Global.AdminListen", err)
		}
		if g.AdminListen == c.ListenAddr() {
			return newFieldError("Global.AdminListen", "不能与代理监听地址相同")
		}
	}

	t := c.Tape
	if err := validateUpstream(t.Upstream); err != nil {
		return wrapFieldError("Tape.Upstream", err)
	}
	if t.TapePath == "" {
		return newFieldError("Tape.TapePath", "不能为空")
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("上游不能包含 query 或 fragment: %s", raw)
	}
	return nil
}

func validateListen(raw string) error {
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return err
	}
	if host != "" && net.ParseIP(host) == nil {
		return fmt.Errorf("不是合法的 IP: %s", host)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("端口必须在 1-65535: %s", port)
	}
	return nil
}
