package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arena-cache/arena-cache/internal/lock"
)

// Settings 汇总构造 Entry 所需的共享依赖，通常由进程启动时创建一次。
type Settings struct {
	Resolver *Resolver
	// Locks 为 nil 时使用默认的目录锁 Coordinator。
	Locks lock.Provider
	// DisableLocking 表示调用方通过其它方式保证独占访问，跳过所有加锁。
	DisableLocking bool
	// Charset 用于 UpdateText/Text 的文本编解码，零值为 UTF-8。
	Charset Charset
	Logger  logrus.FieldLogger
}

// Entry 是 (arena, key) 对应的单个缓存文件。构造开销很小，按次创建、用完即弃；
// 同一个 Entry 也可以被多个 goroutine 并发使用。
type Entry struct {
	arena    Arena
	arenaDir string
	key      string

	locking bool
	lockDir string
	locks   lock.Provider
	timeout time.Duration

	charset Charset
	logger  logrus.FieldLogger
}

// NewEntry 解析 arena 目录（必要时创建）并绑定 key。
// 读写锁共享 <arenaDir>/__lock__ 这一个标识，同一 arena 的所有 key 共用一把锁。
func NewEntry(settings Settings, arena Arena, key string) (*Entry, error) {
	if settings.Resolver == nil && arena.scope != ScopeItem {
		return nil, errors.New("cache resolver required")
	}
	if err := validateName(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	var (
		dir string
		err error
	)
	if settings.Resolver != nil {
		dir, err = settings.Resolver.Dir(arena)
	} else {
		dir, err = (&Resolver{}).Dir(arena)
	}
	if err != nil {
		return nil, err
	}

	logger := settings.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Entry{
		arena:    arena,
		arenaDir: dir,
		key:      key,
		locking:  !settings.DisableLocking,
		charset:  settings.Charset,
		logger:   logger,
	}
	if e.locking {
		provider := settings.Locks
		if provider == nil {
			provider = lock.NewCoordinator(lock.DefaultTimeout, lock.DefaultMaxHold)
		}
		e.lockDir = filepath.Join(dir, lockDirName)
		e.locks = provider
		e.timeout = provider.Timeout()
	}
	return e, nil
}

// Path 返回条目正文的绝对路径。
func (e *Entry) Path() string {
	return filepath.Join(e.arenaDir, e.key)
}

func (e *Entry) Dir() string   { return e.arenaDir }
func (e *Entry) Key() string   { return e.key }
func (e *Entry) Arena() Arena  { return e.arena }
func (e *Entry) Locking() bool { return e.locking }

// Exists 不加锁地检查正文文件是否存在，结果仅供参考。
func (e *Entry) Exists() bool {
	info, err := os.Stat(e.Path())
	return err == nil && !info.IsDir()
}

// ModTime 返回正文的修改时间；文件缺失或不可访问时返回零值（早于任何真实时间）。
func (e *Entry) ModTime() time.Time {
	info, err := os.Stat(e.Path())
	if err != nil || info.IsDir() {
		return time.Time{}
	}
	return info.ModTime()
}

// NeedsUpdate 判断条目相对 sourcePath（以及可选的 dependencyDir）是否过期。
// 读取任何时间戳失败都倾向于重新计算。
func (e *Entry) NeedsUpdate(sourcePath, dependencyDir string) bool {
	cached, err := os.Stat(e.Path())
	if err != nil || cached.IsDir() {
		return true
	}
	source, err := os.Stat(sourcePath)
	if err != nil {
		return true
	}
	if source.ModTime().After(cached.ModTime()) {
		return true
	}
	if dependencyDir == "" {
		return false
	}
	dep, err := os.Stat(dependencyDir)
	if err != nil {
		// 依赖目录不存在说明没有可依赖的内容。
		return false
	}
	return dep.ModTime().After(cached.ModTime())
}

// Update 原子替换正文：写入同目录下的唯一临时文件后 rename 覆盖目标。
func (e *Entry) Update(ctx context.Context, content []byte) error {
	return e.withLock(ctx, true, "cache_update", func() error {
		return e.replace(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		})
	})
}

// UpdateText 按 Settings.Charset 编码文本后调用 Update。
func (e *Entry) UpdateText(ctx context.Context, text string) error {
	content, err := e.charset.Encode(text)
	if err != nil {
		return err
	}
	return e.Update(ctx, content)
}

// CopyFrom 以与 Update 相同的暂存 + rename 协议复制外部文件到条目。
func (e *Entry) CopyFrom(ctx context.Context, sourcePath string) error {
	return e.withLock(ctx, true, "cache_copy", func() error {
		src, err := os.Open(sourcePath)
		if err != nil {
			return fmt.Errorf("open copy source: %w", err)
		}
		defer src.Close()
		return e.replace(func(w io.Writer) error {
			_, err := io.Copy(w, src)
			return err
		})
	})
}

// Remove 删除正文文件，文件不存在不视为错误。
func (e *Entry) Remove(ctx context.Context) error {
	return e.withLock(ctx, true, "cache_remove", func() error {
		if err := os.Remove(e.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove cache entry: %w", err)
		}
		return nil
	})
}

// Content 在读锁保护下读取完整正文。条目不存在时返回 ErrNotFound。
func (e *Entry) Content(ctx context.Context) ([]byte, error) {
	var data []byte
	err := e.withLock(ctx, false, "cache_read", func() error {
		var err error
		data, err = os.ReadFile(e.Path())
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %w", ErrNotFound, err)
			}
			return fmt.Errorf("read cache entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Text 读取正文并按 Settings.Charset 解码。
func (e *Entry) Text(ctx context.Context) (string, error) {
	data, err := e.Content(ctx)
	if err != nil {
		return "", err
	}
	return e.charset.Decode(data)
}

// replace 把 write 产出的全部字节写入临时文件，刷盘后 rename 到目标路径。
// 任一步失败都会清理临时文件，目标保持原内容。
func (e *Entry) replace(write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(e.arenaDir, "."+e.key+".tmp-*")
	if err != nil {
		return fmt.Errorf("stage cache entry: %w", err)
	}
	tmpName := tmp.Name()

	err = write(tmp)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}

	if err := os.Rename(tmpName, e.Path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache entry: %w", err)
	}
	return nil
}

// withLock 在有界等待内获取读锁或写锁后执行 fn，任何退出路径都会释放锁。
// 每次调用都从 Provider 取新的锁句柄，同一 Entry 可被多个 goroutine 共用。
func (e *Entry) withLock(ctx context.Context, write bool, action string, fn func() error) (err error) {
	if !e.locking {
		return fn()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var l lock.Locker
	if write {
		l = e.locks.WriteLocker(e.lockDir)
	} else {
		l = e.locks.ReadLocker(e.lockDir)
	}

	ok, acqErr := l.Acquire(ctx, e.timeout)
	if acqErr != nil {
		e.fields(action).WithError(acqErr).Warn("cache_lock_failed")
		return fmt.Errorf("acquire lock %s: %w", e.lockDir, acqErr)
	}
	if !ok {
		e.fields(action).Warn("cache_lock_timeout")
		return fmt.Errorf("%w: %s after %s", ErrLockTimeout, e.lockDir, e.timeout)
	}

	defer func() {
		if relErr := l.Release(); relErr != nil {
			e.fields(action).WithError(relErr).Warn("cache_lock_release_failed")
			if err == nil {
				err = fmt.Errorf("release lock %s: %w", e.lockDir, relErr)
			}
		}
	}()
	return fn()
}

func (e *Entry) fields(action string) *logrus.Entry {
	arena := e.arena.name
	if e.arena.scope == ScopeItem {
		arena = fmt.Sprint(e.arena.item)
	}
	return e.logger.WithFields(logrus.Fields{
		"action":   action,
		"scope":    string(e.arena.scope),
		"arena":    arena,
		"key":      e.key,
		"lock_dir": e.lockDir,
		"timeout":  e.timeout.String(),
	})
}
