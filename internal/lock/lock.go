package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	writeLockName  = "write_lock"
	readLockPrefix = "read_lock_"

	// DefaultTimeout 是单次获取锁的默认等待上限。
	DefaultTimeout = time.Second
	// DefaultMaxHold 是锁被视为遗弃之前允许持有的最长时间。
	DefaultMaxHold = 60 * time.Second
)

// errBusy 仅在轮询内部使用，表示锁仍被他人持有。
var errBusy = errors.New("lock busy")

// Locker 是缓存核心消费的锁句柄契约：有界等待获取 + 显式释放。
// 超时返回 (false, nil)；文件系统异常返回 error。
type Locker interface {
	Acquire(ctx context.Context, timeout time.Duration) (bool, error)
	Release() error
}

// exclusive 通过 mkdir 的原子性实现跨进程互斥。
type exclusive struct {
	path    string
	maxHold time.Duration
}

func (e exclusive) tryLock() error {
	err := os.Mkdir(e.path, 0o755)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return backoff.Permanent(err)
	}
	expired, expErr := expire(e.path, e.maxHold)
	if expErr != nil {
		return backoff.Permanent(expErr)
	}
	if expired {
		if err := os.Mkdir(e.path, 0o755); err == nil {
			return nil
		}
	}
	return errBusy
}

func (e exclusive) unlock() error {
	if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

const staleSuffix = ".stale-"

// expire 回收超过 maxHold 仍未释放的锁目录，返回路径是否已空出。
func expire(path string, maxHold time.Duration) (bool, error) {
	if maxHold <= 0 {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	if time.Since(info.ModTime()) <= maxHold {
		return false, nil
	}
	return takeOver(path, maxHold)
}

// takeOver 先把锁目录原子地改名到唯一的旁路名，再对改名后的目录复核是否过期。
// Stat 与改名之间锁可能已被他人回收并重新创建；复核发现是新锁时原样归还。
func takeOver(path string, maxHold time.Duration) (bool, error) {
	aside := path + staleSuffix + uuid.NewString()
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// 已被其它竞争者回收
			return true, nil
		}
		return false, err
	}
	info, err := os.Stat(aside)
	if err != nil {
		return false, err
	}
	if time.Since(info.ModTime()) > maxHold {
		if err := os.RemoveAll(aside); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		return true, nil
	}

	// 误取了刚创建的锁：用 Mkdir 归还而不是 Rename，避免覆盖他人同时创建的空目录。
	if err := os.Mkdir(path, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return false, err
	}
	if err := os.Remove(aside); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return false, nil
}

// poll 以指数退避重复执行 op，直到成功、永久失败或 timeout 耗尽。
func poll(ctx context.Context, timeout time.Duration, op func() error) (bool, error) {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if timeout > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = time.Millisecond
		exp.MaxInterval = 100 * time.Millisecond
		exp.MaxElapsedTime = timeout
		b = exp
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errBusy):
		return false, nil
	default:
		return false, err
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	return nil
}

// WriteLock 在 dir 上提供独占锁，同时排斥读者与其它写者。
type WriteLock struct {
	dir     string
	maxHold time.Duration

	mu     sync.Mutex
	locked bool
}

// NewWriteLock 返回惰性创建目录的写锁句柄。
func NewWriteLock(dir string, maxHold time.Duration) *WriteLock {
	return &WriteLock{dir: dir, maxHold: maxHold}
}

func (l *WriteLock) excl() exclusive {
	return exclusive{path: filepath.Join(l.dir, writeLockName), maxHold: l.maxHold}
}

// Acquire 先占有独占区，再在同一 timeout 内等待所有读者退出。
func (l *WriteLock) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return false, errors.New("write lock already held by this handle")
	}
	if err := ensureDir(l.dir); err != nil {
		return false, err
	}

	deadline := time.Now().Add(timeout)
	ex := l.excl()
	ok, err := poll(ctx, timeout, ex.tryLock)
	if !ok || err != nil {
		return false, err
	}

	ok, err = poll(ctx, time.Until(deadline), l.drainReaders)
	if !ok || err != nil {
		if relErr := ex.unlock(); relErr != nil && err == nil {
			err = relErr
		}
		return false, err
	}
	l.locked = true
	return true, nil
}

func (l *WriteLock) drainReaders() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return backoff.Permanent(err)
	}
	busy := false
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), readLockPrefix) {
			continue
		}
		expired, err := expire(filepath.Join(l.dir, entry.Name()), l.maxHold)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !expired {
			busy = true
		}
	}
	if busy {
		return errBusy
	}
	return nil
}

// Release 释放写锁；未持有时为空操作。
func (l *WriteLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return nil
	}
	l.locked = false
	return l.excl().unlock()
}

// ReadLock 允许多个读者并发持有，但在写者持有独占区时无法获取。
type ReadLock struct {
	dir     string
	maxHold time.Duration

	mu    sync.Mutex
	entry string
}

// NewReadLock 返回惰性创建目录的读锁句柄。
func NewReadLock(dir string, maxHold time.Duration) *ReadLock {
	return &ReadLock{dir: dir, maxHold: maxHold}
}

// Acquire 短暂占有独占区以登记读者目录，随后立即让出独占区。
func (l *ReadLock) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entry != "" {
		return false, errors.New("read lock already held by this handle")
	}
	if err := ensureDir(l.dir); err != nil {
		return false, err
	}

	ex := exclusive{path: filepath.Join(l.dir, writeLockName), maxHold: l.maxHold}
	ok, err := poll(ctx, timeout, ex.tryLock)
	if !ok || err != nil {
		return false, err
	}

	entry := filepath.Join(l.dir, readLockPrefix+uuid.NewString())
	mkErr := os.Mkdir(entry, 0o755)
	if err := ex.unlock(); err != nil && mkErr == nil {
		_ = os.Remove(entry)
		return false, err
	}
	if mkErr != nil {
		return false, mkErr
	}
	l.entry = entry
	return true, nil
}

// Release 注销读者目录；未持有时为空操作。
func (l *ReadLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entry == "" {
		return nil
	}
	entry := l.entry
	l.entry = ""
	if err := os.Remove(entry); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
