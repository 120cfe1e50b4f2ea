package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arena-cache/arena-cache/internal/cache"
)

// reservedSiteID 是 farm scope 的共享目录名，不能作为站点目录。
const reservedSiteID = "__common__"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		return newFieldError("Global.CacheDir", "不能为空")
	}
	if err := validateSiteID(g.SiteID); err != nil {
		return err
	}
	if _, err := cache.LookupCharset(g.Charset); err != nil {
		return newFieldError("Global.Charset", fmt.Sprintf("无法识别的字符集 %q", g.Charset))
	}
	if g.LockTimeout.DurationValue() <= 0 {
		return newFieldError("Global.LockTimeout", "必须大于 0")
	}
	if g.LockMaxHold.DurationValue() <= 0 {
		return newFieldError("Global.LockMaxHold", "必须大于 0")
	}
	if g.LockMaxHold.DurationValue() < g.LockTimeout.DurationValue() {
		return newFieldError("Global.LockMaxHold", "不能小于 LockTimeout")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxSize/LogMaxBackups", "不能为负数")
	}

	return nil
}

func validateSiteID(siteID string) error {
	switch {
	case siteID == "":
		return newFieldError("Global.SiteID", "不能为空")
	case strings.ContainsAny(siteID, `/\`):
		return newFieldError("Global.SiteID", "不允许包含路径分隔符")
	case strings.HasPrefix(siteID, "."):
		return newFieldError("Global.SiteID", "不能以 . 开头")
	case siteID == reservedSiteID:
		return newFieldError("Global.SiteID", "__common__ 为 farm 共享目录保留")
	}
	return nil
}
