package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound 表示缓存条目不存在，同时满足 errors.Is(err, fs.ErrNotExist)。
	ErrNotFound = errors.New("cache entry not found")
	// ErrLockTimeout 表示在等待上限内未能拿到锁，调用方应视作未命中并重新计算。
	ErrLockTimeout = errors.New("cache lock timeout")
	// ErrInvalidKey 表示 key 不是合法的文件名。
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrInvalidArena 表示 scope/arena 组合无法解析。
	ErrInvalidArena = errors.New("invalid cache arena")
	// ErrEncoding 表示文本编解码失败。
	ErrEncoding = errors.New("cache content encoding failed")
	// ErrUnknownCharset 表示配置了无法识别的字符集。
	ErrUnknownCharset = errors.New("unknown charset")
)

// Locator 唯一定位一个缓存条目。Arena 对 wiki/farm 为 arena 名，对 item 为条目名。
type Locator struct {
	Scope Scope  `json:"scope"`
	Arena string `json:"arena"`
	Key   string `json:"key"`
}

// Info 描述一次 Stat 的结果。
type Info struct {
	Locator  Locator   `json:"locator"`
	FilePath string    `json:"file_path"`
	Exists   bool      `json:"exists"`
	ModTime  time.Time `json:"mod_time"`
}

// Store 为 HTTP 层等调用方提供按 Locator 访问条目的入口，每次调用都构造新的 Entry。
type Store interface {
	// Get 返回条目正文；不存在时返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) ([]byte, Info, error)

	// Put 以临时文件 + rename 原子替换条目正文。
	Put(ctx context.Context, locator Locator, content []byte) (Info, error)

	// Remove 删除条目，不存在不视为错误。
	Remove(ctx context.Context, locator Locator) error

	// Stat 返回条目元信息，不加锁。
	Stat(ctx context.Context, locator Locator) (Info, error)
}
