package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scope 选择 arena 的目录解析规则。
type Scope string

const (
	ScopeItem Scope = "item"
	ScopeWiki Scope = "wiki"
	ScopeFarm Scope = "farm"
)

const (
	// farmDirName 是多站点共享缓存所在的目录名。
	farmDirName = "__common__"
	// lockDirName 是每个 arena 目录下保留给锁协调器的子目录。
	lockDirName = "__lock__"
)

// ParseScope 将外部输入的 scope 标准化。
func ParseScope(raw string) (Scope, error) {
	switch s := Scope(strings.ToLower(strings.TrimSpace(raw))); s {
	case ScopeItem, ScopeWiki, ScopeFarm:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidArena, raw)
	}
}

// Item 是 item scope 下的协作方，负责提供并创建自身私有的缓存目录。
type Item interface {
	CacheDir() (string, error)
}

// Arena 是显式标注 scope 的 arena 标识。通过 WikiArena/FarmArena/ItemArena 构造。
type Arena struct {
	scope Scope
	name  string
	item  Item
}

// WikiArena 表示站点私有的命名 arena。
func WikiArena(name string) Arena {
	return Arena{scope: ScopeWiki, name: name}
}

// FarmArena 表示所有站点共享的命名 arena。
func FarmArena(name string) Arena {
	return Arena{scope: ScopeFarm, name: name}
}

// ItemArena 表示挂在某个内容条目下的 arena。
func ItemArena(item Item) Arena {
	return Arena{scope: ScopeItem, item: item}
}

func (a Arena) Scope() Scope { return a.scope }

// Name 返回 arena 名称；item scope 下为空。
func (a Arena) Name() string { return a.name }

func (a Arena) String() string {
	if a.scope == ScopeItem {
		return fmt.Sprintf("%s:%v", a.scope, a.item)
	}
	return fmt.Sprintf("%s:%s", a.scope, a.name)
}

// Resolver 把 Arena 映射到磁盘目录，并保证目录存在。
type Resolver struct {
	cacheDir string
	siteID   string
}

// NewResolver 以 cacheDir 为根目录、siteID 为站点目录名构建 Resolver。
func NewResolver(cacheDir, siteID string) (*Resolver, error) {
	if cacheDir == "" {
		return nil, errors.New("cache dir required")
	}
	if err := validateName(siteID); err != nil {
		return nil, fmt.Errorf("site id: %w", err)
	}
	if siteID == farmDirName {
		return nil, fmt.Errorf("site id %q is reserved", siteID)
	}
	abs, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	return &Resolver{cacheDir: abs, siteID: siteID}, nil
}

// Dir 计算 arena 目录并在缺失时创建，创建失败直接返回。
func (r *Resolver) Dir(a Arena) (string, error) {
	var dir string
	switch a.scope {
	case ScopeItem:
		if a.item == nil {
			return "", fmt.Errorf("%w: item arena without item", ErrInvalidArena)
		}
		itemDir, err := a.item.CacheDir()
		if err != nil {
			return "", fmt.Errorf("item cache dir: %w", err)
		}
		return itemDir, nil
	case ScopeWiki:
		if err := validateName(a.name); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArena, err)
		}
		dir = filepath.Join(r.cacheDir, r.siteID, a.name)
	case ScopeFarm:
		if err := validateName(a.name); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArena, err)
		}
		dir = filepath.Join(r.cacheDir, farmDirName, a.name)
	default:
		return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidArena, a.scope)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create arena dir: %w", err)
	}
	return dir, nil
}

// validateName 拒绝会导致路径逃逸或与保留名冲突的 arena 名 / key。
func validateName(name string) error {
	switch {
	case name == "":
		return errors.New("empty name")
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return fmt.Errorf("name %q contains a path separator", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("name %q must not start with a dot", name)
	case name == lockDirName:
		return fmt.Errorf("name %q is reserved", name)
	}
	return nil
}

// PageItem 是基于数据目录的 Item 实现：<DataDir>/pages/<quoted name>/cache。
type PageItem struct {
	DataDir string
	Name    string
}

func (p PageItem) CacheDir() (string, error) {
	if p.DataDir == "" || p.Name == "" {
		return "", errors.New("page item requires data dir and name")
	}
	dir := filepath.Join(p.DataDir, "pages", QuoteName(p.Name), "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create item cache dir: %w", err)
	}
	return dir, nil
}

func (p PageItem) String() string { return p.Name }

// QuoteName 把任意条目名转换为文件系统安全的目录名：
// [A-Za-z0-9] 之外的字节以 (xx) 十六进制分组表示，连续字节合并在同一括号内。
func QuoteName(name string) string {
	var b strings.Builder
	open := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		safe := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
		if safe {
			if open {
				b.WriteByte(')')
				open = false
			}
			b.WriteByte(c)
			continue
		}
		if !open {
			b.WriteByte('(')
			open = true
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	if open {
		b.WriteByte(')')
	}
	return b.String()
}
