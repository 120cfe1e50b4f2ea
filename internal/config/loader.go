package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/arena-cache/arena-cache/internal/cache"
	"github.com/arena-cache/arena-cache/internal/lock"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectLegacyKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, dir := range []*string{&cfg.Global.CacheDir, &cfg.Global.DataDir} {
		if *dir == "" {
			continue
		}
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("无法解析目录 %s: %w", *dir, err)
		}
		*dir = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDir", "./cache")
	v.SetDefault("DataDir", "./data")
	v.SetDefault("SiteID", "wiki")
	v.SetDefault("Charset", cache.DefaultCharset)
	v.SetDefault("Locking", true)
	v.SetDefault("LockTimeout", "1s")
	v.SetDefault("LockMaxHold", "60s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.Charset) == "" {
		g.Charset = cache.DefaultCharset
	}
	if g.LockTimeout.DurationValue() == 0 {
		g.LockTimeout = Duration(lock.DefaultTimeout)
	}
	if g.LockMaxHold.DurationValue() == 0 {
		g.LockMaxHold = Duration(lock.DefaultMaxHold)
	}
	g.SiteID = strings.TrimSpace(g.SiteID)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return parseDuration(v)
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

// rejectLegacyKeys 拒绝旧版 page_or_wiki 混合模式相关的配置，要求显式声明 scope。
func rejectLegacyKeys(v *viper.Viper) error {
	if v.IsSet("DefaultScope") {
		scope := strings.ToLower(strings.TrimSpace(v.GetString("DefaultScope")))
		if scope == "page_or_wiki" {
			return newFieldError("Global.DefaultScope", "page_or_wiki 混合模式已移除，请在调用方显式指定 item/wiki/farm")
		}
		return newFieldError("Global.DefaultScope", "字段已弃用，scope 由调用方显式指定")
	}
	return nil
}
