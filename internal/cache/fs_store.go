package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NewStore 基于共享 Settings 构建 Store。dataDir 是 item scope 条目目录的根。
func NewStore(settings Settings, dataDir string) (Store, error) {
	if settings.Resolver == nil {
		return nil, errors.New("cache resolver required")
	}
	return &fileStore{
		settings: settings,
		dataDir:  dataDir,
	}, nil
}

// fileStore 不缓存 Entry 对象：条目身份完全由路径决定。
type fileStore struct {
	settings Settings
	dataDir  string
}

func (s *fileStore) Get(ctx context.Context, locator Locator) ([]byte, Info, error) {
	select {
	case <-ctx.Done():
		return nil, Info{}, ctx.Err()
	default:
	}

	entry, err := s.entry(locator)
	if err != nil {
		return nil, Info{}, err
	}
	data, err := entry.Content(ctx)
	if err != nil {
		return nil, Info{}, err
	}
	return data, infoFor(locator, entry), nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, content []byte) (Info, error) {
	entry, err := s.entry(locator)
	if err != nil {
		return Info{}, err
	}
	if err := entry.Update(ctx, content); err != nil {
		return Info{}, err
	}
	return infoFor(locator, entry), nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	entry, err := s.entry(locator)
	if err != nil {
		return err
	}
	return entry.Remove(ctx)
}

func (s *fileStore) Stat(ctx context.Context, locator Locator) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	entry, err := s.entry(locator)
	if err != nil {
		return Info{}, err
	}
	return infoFor(locator, entry), nil
}

func (s *fileStore) entry(locator Locator) (*Entry, error) {
	arena, err := s.arena(locator)
	if err != nil {
		return nil, err
	}
	return NewEntry(s.settings, arena, locator.Key)
}

func (s *fileStore) arena(locator Locator) (Arena, error) {
	name := strings.TrimSpace(locator.Arena)
	switch locator.Scope {
	case ScopeWiki:
		return WikiArena(name), nil
	case ScopeFarm:
		return FarmArena(name), nil
	case ScopeItem:
		if s.dataDir == "" {
			return Arena{}, fmt.Errorf("%w: item scope requires a data dir", ErrInvalidArena)
		}
		if name == "" {
			return Arena{}, fmt.Errorf("%w: empty item name", ErrInvalidArena)
		}
		return ItemArena(PageItem{DataDir: s.dataDir, Name: name}), nil
	default:
		return Arena{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidArena, locator.Scope)
	}
}

func infoFor(locator Locator, entry *Entry) Info {
	modTime := entry.ModTime()
	return Info{
		Locator:  locator,
		FilePath: entry.Path(),
		Exists:   !modTime.IsZero() && entry.Exists(),
		ModTime:  modTime,
	}
}
