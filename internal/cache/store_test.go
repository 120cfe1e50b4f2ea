package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Scope: ScopeWiki, Arena: "macro", Key: "TableOfContents"}

	payload := []byte("payload")
	info, err := store.Put(context.Background(), locator, payload)
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	if !info.Exists || info.ModTime.IsZero() {
		t.Fatalf("unexpected info after put: %+v", info)
	}

	body, got, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if got.FilePath != info.FilePath {
		t.Fatalf("path mismatch: %s vs %s", got.FilePath, info.FilePath)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Get(context.Background(), Locator{Scope: ScopeFarm, Arena: "i18n", Key: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Scope: ScopeWiki, Arena: "macro", Key: "remove"}
	if _, err := store.Put(context.Background(), locator, []byte("data")); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, _, err := store.Get(context.Background(), locator); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	info, err := store.Stat(context.Background(), locator)
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if info.Exists {
		t.Fatalf("entry should not exist after remove")
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Scope: ScopeWiki, Arena: "macro", Key: "v2"}

	fs, ok := store.(*fileStore)
	if !ok {
		t.Fatalf("unexpected store type %T", store)
	}
	entry, err := fs.entry(locator)
	if err != nil {
		t.Fatalf("entry error: %v", err)
	}
	if err := os.MkdirAll(entry.Path(), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	info, err := store.Stat(context.Background(), locator)
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if info.Exists {
		t.Fatalf("directory must not count as a cache entry")
	}
}

func TestStoreItemScope(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Scope: ScopeItem, Arena: "Front Page", Key: "text_html"}
	info, err := store.Put(context.Background(), locator, []byte("<p>x</p>"))
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	if filepath.Base(filepath.Dir(filepath.Dir(info.FilePath))) != "Front(20)Page" {
		t.Fatalf("unexpected item path %s", info.FilePath)
	}
}

func TestStoreRejectsUnknownScope(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Put(context.Background(), Locator{Scope: "page_or_wiki", Arena: "x", Key: "y"}, nil)
	if !errors.Is(err, ErrInvalidArena) {
		t.Fatalf("expected ErrInvalidArena, got %v", err)
	}
}

func TestStoreGetHonoursCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := store.Get(ctx, Locator{Scope: ScopeWiki, Arena: "macro", Key: "k"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// newTestStore returns a Store backed by temporary cache and data directories.
func newTestStore(t *testing.T) Store {
	t.Helper()
	resolver, err := NewResolver(t.TempDir(), "testwiki")
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	store, err := NewStore(Settings{Resolver: resolver}, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
