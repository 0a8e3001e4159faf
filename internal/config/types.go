package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 识别 "30s"、"5m"、纯数字秒值（含 0x 前缀与小数）等写法；
// 配置文件与环境变量中的字符串都经由 durationDecodeHook 走到这里。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("无法解析 Duration 字段: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级行为：监听地址、日志与上游超时。
type GlobalConfig struct {
	BindAddress     string   `mapstructure:"BindAddress"`
	ListenPort      int      `mapstructure:"ListenPort"`
	AdminListen     string   `mapstructure:"AdminListen"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	// MaxBodySize 是代理监听接受的最大请求体字节数，超出时连接在进入代理前被拒绝。
	MaxBodySize int `mapstructure:"MaxBodySize"`
	// ReadBufferSize 限制单个请求的请求行加头部大小。
	ReadBufferSize int `mapstructure:"ReadBufferSize"`
}

// TapeConfig 决定录音存放位置、上游地址以及是否只回放。
type TapeConfig struct {
	Upstream   string `mapstructure:"Upstream"`
	TapePath   string `mapstructure:"TapePath"`
	ReplayOnly bool   `mapstructure:"ReplayOnly"`
}

// Config 是 TOML 文件映射的整体结构。加载完成后只读，按指针在所有请求间共享。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Tape   TapeConfig   `mapstructure:",squash"`
}

// ListenAddr 返回 BindAddress:ListenPort 形式的监听地址。
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Global.BindAddress, strconv.Itoa(c.Global.ListenPort))
}

// Mode 输出 `replay-only` 或 `record`，供日志字段使用。
func (t TapeConfig) Mode() string {
	if t.ReplayOnly {
		return "replay-only"
	}
	return "record"
}
