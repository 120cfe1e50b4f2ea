package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arena-cache/arena-cache/internal/cache"
	"github.com/arena-cache/arena-cache/internal/server"
)

// SettingsSummary 是 /-/healthz 中输出的只读运行参数。
type SettingsSummary struct {
	SiteID      string
	Charset     string
	Locking     bool
	LockTimeout time.Duration
	LockMaxHold time.Duration
}

// RegisterDiagnosticRoutes 暴露 /-/healthz 与 /-/stat 诊断接口，均不加锁。
func RegisterDiagnosticRoutes(app *fiber.App, store cache.Store, summary SettingsSummary) {
	if app == nil || store == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"settings": encodeSettings(summary),
		})
	})

	app.Get("/-/stat/:scope/:arena/:key", func(c fiber.Ctx) error {
		locator, err := server.ParseLocator(c)
		if err != nil {
			status, code := server.ErrorStatus(err)
			return c.Status(status).JSON(fiber.Map{"error": code})
		}
		info, err := store.Stat(c.Context(), locator)
		if err != nil {
			status, code := server.ErrorStatus(err)
			return c.Status(status).JSON(fiber.Map{"error": code})
		}
		return c.JSON(encodeInfo(info))
	})
}

type settingsPayload struct {
	SiteID             string  `json:"site_id"`
	Charset            string  `json:"charset"`
	Locking            bool    `json:"locking"`
	LockTimeoutSeconds float64 `json:"lock_timeout_seconds"`
	LockMaxHoldSeconds float64 `json:"lock_max_hold_seconds"`
}

type statPayload struct {
	Scope    string `json:"scope"`
	Arena    string `json:"arena"`
	Key      string `json:"key"`
	Exists   bool   `json:"exists"`
	ModTime  string `json:"mod_time,omitempty"`
	FilePath string `json:"path"`
}

func encodeSettings(s SettingsSummary) settingsPayload {
	return settingsPayload{
		SiteID:             s.SiteID,
		Charset:            s.Charset,
		Locking:            s.Locking,
		LockTimeoutSeconds: s.LockTimeout.Seconds(),
		LockMaxHoldSeconds: s.LockMaxHold.Seconds(),
	}
}

func encodeInfo(info cache.Info) statPayload {
	payload := statPayload{
		Scope:    string(info.Locator.Scope),
		Arena:    info.Locator.Arena,
		Key:      info.Locator.Key,
		Exists:   info.Exists,
		FilePath: info.FilePath,
	}
	if info.Exists {
		payload.ModTime = info.ModTime.UTC().Format(time.RFC3339Nano)
	}
	return payload
}
