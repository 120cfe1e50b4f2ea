package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arena-cache/arena-cache/internal/cache"
	"github.com/arena-cache/arena-cache/internal/lock"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "500ms"、"1s" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseDuration 是文本形式 Duration 的唯一解析入口：先按 Go Duration 解析，
// 再按（可带小数的）秒数解析。
func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Duration(0), nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return Duration(parsed), nil
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(seconds * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("无法解析 Duration 字段: %s", raw)
}

// GlobalConfig 描述进程级参数，所有 arena 共享同一份。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	// CacheDir 是 wiki/farm arena 的根目录。
	CacheDir string `mapstructure:"CacheDir"`
	// DataDir 是 item scope 条目目录的根：<DataDir>/pages/<name>/cache。
	DataDir string `mapstructure:"DataDir"`
	SiteID  string `mapstructure:"SiteID"`
	Charset string `mapstructure:"Charset"`
	Locking bool   `mapstructure:"Locking"`
	// LockTimeout 是单次获取锁的等待上限。
	LockTimeout Duration `mapstructure:"LockTimeout"`
	// LockMaxHold 是锁被视为遗弃前的最长持有时间。
	LockMaxHold Duration `mapstructure:"LockMaxHold"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// CacheSettings 把配置转换为缓存核心使用的共享依赖。调用前应已通过 Validate。
func (c *Config) CacheSettings(logger logrus.FieldLogger) (cache.Settings, error) {
	g := c.Global
	resolver, err := cache.NewResolver(g.CacheDir, g.SiteID)
	if err != nil {
		return cache.Settings{}, err
	}
	charset, err := cache.LookupCharset(g.Charset)
	if err != nil {
		return cache.Settings{}, err
	}
	settings := cache.Settings{
		Resolver:       resolver,
		DisableLocking: !g.Locking,
		Charset:        charset,
	}
	if g.Locking {
		settings.Locks = lock.NewCoordinator(g.LockTimeout.DurationValue(), g.LockMaxHold.DurationValue())
	}
	if logger != nil {
		settings.Logger = logger
	}
	return settings, nil
}
