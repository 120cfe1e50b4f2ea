package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arena-cache/arena-cache/internal/cache"
	"github.com/arena-cache/arena-cache/internal/logging"
)

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Store      cache.Store
	ListenPort int
	// MaxBodySize 限制 PUT 正文大小，0 时使用 Fiber 默认值。
	MaxBodySize int
}

const contextKeyRequestID = "_arenacache_request_id"

// NewApp builds a Fiber application exposing the cache store with request IDs
// and structured error responses.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		BodyLimit:     opts.MaxBodySize,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	h := &entryHandler{store: opts.Store, logger: opts.Logger}
	app.Get("/:scope/:arena/:key", h.get)
	app.Put("/:scope/:arena/:key", h.put)
	app.Delete("/:scope/:arena/:key", h.remove)

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID 并回写到响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// ParseLocator 从路由参数构造 Locator，scope 非法时返回 cache.ErrInvalidArena。
// 路径不做整体反转义，arena 中的 %2F 才能作为子页面名的一部分保留在同一段内。
func ParseLocator(c fiber.Ctx) (cache.Locator, error) {
	scope, err := cache.ParseScope(c.Params("scope"))
	if err != nil {
		return cache.Locator{}, err
	}
	arena, err := url.PathUnescape(c.Params("arena"))
	if err != nil {
		return cache.Locator{}, fmt.Errorf("%w: %v", cache.ErrInvalidArena, err)
	}
	key, err := url.PathUnescape(c.Params("key"))
	if err != nil {
		return cache.Locator{}, fmt.Errorf("%w: %v", cache.ErrInvalidKey, err)
	}
	return cache.Locator{
		Scope: scope,
		Arena: arena,
		Key:   key,
	}, nil
}

type entryHandler struct {
	store  cache.Store
	logger *logrus.Logger
}

func (h *entryHandler) get(c fiber.Ctx) error {
	started := time.Now()
	locator, err := ParseLocator(c)
	if err != nil {
		return h.fail(c, locator, started, err)
	}

	data, info, err := h.store.Get(c.Context(), locator)
	if err != nil {
		return h.fail(c, locator, started, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Set(fiber.HeaderLastModified, info.ModTime.UTC().Format(http.TimeFormat))
	h.log(c, locator, "hit", fiber.StatusOK, started).Debug("cache_get")
	return c.Status(fiber.StatusOK).Send(data)
}

func (h *entryHandler) put(c fiber.Ctx) error {
	started := time.Now()
	locator, err := ParseLocator(c)
	if err != nil {
		return h.fail(c, locator, started, err)
	}

	// fasthttp 会复用请求缓冲区，写盘前复制一份。
	body := append([]byte(nil), c.Body()...)
	info, err := h.store.Put(c.Context(), locator, body)
	if err != nil {
		return h.fail(c, locator, started, err)
	}

	c.Set(fiber.HeaderLastModified, info.ModTime.UTC().Format(http.TimeFormat))
	h.log(c, locator, "stored", fiber.StatusNoContent, started).Info("cache_put")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *entryHandler) remove(c fiber.Ctx) error {
	started := time.Now()
	locator, err := ParseLocator(c)
	if err != nil {
		return h.fail(c, locator, started, err)
	}

	if err := h.store.Remove(c.Context(), locator); err != nil {
		return h.fail(c, locator, started, err)
	}

	h.log(c, locator, "removed", fiber.StatusNoContent, started).Info("cache_remove")
	return c.SendStatus(fiber.StatusNoContent)
}

// fail 把缓存错误映射为 HTTP 状态码；未命中与锁超时都不是致命错误，调用方应重新计算。
func (h *entryHandler) fail(c fiber.Ctx, locator cache.Locator, started time.Time, err error) error {
	status, code := ErrorStatus(err)
	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}

	entry := h.log(c, locator, code, status, started)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		entry.WithError(err).Error("cache_request_failed")
	} else {
		entry.WithError(err).Debug("cache_request_rejected")
	}

	return c.Status(status).JSON(fiber.Map{
		"error": code,
	})
}

// ErrorStatus 返回错误对应的 HTTP 状态码与错误码。
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return fiber.StatusNotFound, "cache_miss"
	case errors.Is(err, cache.ErrLockTimeout):
		return fiber.StatusServiceUnavailable, "cache_locked"
	case errors.Is(err, cache.ErrInvalidKey), errors.Is(err, cache.ErrInvalidArena):
		return fiber.StatusBadRequest, "invalid_locator"
	default:
		return fiber.StatusInternalServerError, "cache_error"
	}
}

func (h *entryHandler) log(c fiber.Ctx, locator cache.Locator, result string, status int, started time.Time) *logrus.Entry {
	fields := logging.ResultFields(locator, c.Method(), result, status, time.Since(started).Milliseconds())
	fields["request_id"] = RequestID(c)
	return h.logger.WithFields(fields)
}
