package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 请求体与头部缓冲的默认上限。录制上传类接口时请求体可能很大，默认值远高于 fiber 的 4 MiB。
const (
	DefaultMaxBodySize    = 1 << 30
	DefaultReadBufferSize = 64 << 10
)

// EnvPrefix 是所有环境变量覆盖项的前缀，例如 TAPEHUB_BIND_ADDRESS。
const EnvPrefix = "TAPEHUB"

// envBindings 将配置键映射到环境变量名，环境变量优先于配置文件。
var envBindings = map[string]string{
	"BindAddress":     "BIND_ADDRESS",
	"ListenPort":      "LISTEN_PORT",
	"AdminListen":     "ADMIN_LISTEN",
	"LogLevel":        "LOG_LEVEL",
	"LogFilePath":     "LOG_FILE_PATH",
	"LogMaxSize":      "LOG_MAX_SIZE",
	"LogMaxBackups":   "LOG_MAX_BACKUPS",
	"LogCompress":     "LOG_COMPRESS",
	"UpstreamTimeout": "UPSTREAM_TIMEOUT",
	"MaxBodySize":     "MAX_BODY_SIZE",
	"ReadBufferSize":  "READ_BUFFER_SIZE",
	"Upstream":        "UPSTREAM",
	"TapePath":        "TAPE_PATH",
	"ReplayOnly":      "REPLAY_ONLY",
}

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyTapeDefaults(&cfg.Tape)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absTapes, err := filepath.Abs(cfg.Tape.TapePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析录音目录: %w", err)
	}
	cfg.Tape.TapePath = absTapes

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("AdminListen", "")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxBodySize", DefaultMaxBodySize)
	v.SetDefault("ReadBufferSize", DefaultReadBufferSize)
	v.SetDefault("TapePath", "./tapes")
	v.SetDefault("ReplayOnly", false)
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+env); err != nil {
			return fmt.Errorf("绑定环境变量失败: %w", err)
		}
	}
	return nil
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.MaxBodySize == 0 {
		g.MaxBodySize = DefaultMaxBodySize
	}
	if g.ReadBufferSize == 0 {
		g.ReadBufferSize = DefaultReadBufferSize
	}
}

func applyTapeDefaults(t *TapeConfig) {
	if t.TapePath == "" {
		t.TapePath = "./tapes"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
