package server

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/arena-cache/arena-cache/internal/cache"
	"github.com/arena-cache/arena-cache/internal/lock"
)

func TestRouterEntryLifecycle(t *testing.T) {
	app := newTestApp(t, 5000)

	resp, err := app.Test(httptest.NewRequest("GET", "/wiki/macro/TableOfContents", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 before put, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"cache_miss"`)) {
		t.Fatalf("expected cache_miss error, got %s", string(body))
	}

	resp, err = app.Test(httptest.NewRequest("PUT", "/wiki/macro/TableOfContents", strings.NewReader("<ol>...</ol>")))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 after put, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/wiki/macro/TableOfContents", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ = io.ReadAll(resp.Body)
	if string(body) != "<ol>...</ol>" {
		t.Fatalf("unexpected body %q", string(body))
	}
	if resp.Header.Get("Last-Modified") == "" {
		t.Fatalf("expected Last-Modified header")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	resp, err = app.Test(httptest.NewRequest("DELETE", "/wiki/macro/TableOfContents", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 after delete, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/wiki/macro/TableOfContents", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestRouterItemScopeUnescapesName(t *testing.T) {
	app := newTestApp(t, 5000)

	resp, err := app.Test(httptest.NewRequest("PUT", "/item/Front%20Page/text_html", strings.NewReader("<p/>")))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	info, err := app.store.Stat(context.Background(), cache.Locator{Scope: cache.ScopeItem, Arena: "Front Page", Key: "text_html"})
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if !info.Exists {
		t.Fatalf("expected item entry to exist at %s", info.FilePath)
	}
}

func TestRouterItemScopeSubPage(t *testing.T) {
	app := newTestApp(t, 5000)
	locator := cache.Locator{Scope: cache.ScopeItem, Arena: "Parent/Child", Key: "text_html"}
	if _, err := app.store.Put(context.Background(), locator, []byte("<p>child</p>")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/item/Parent%2FChild/text_html", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for sub-page, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<p>child</p>" {
		t.Fatalf("unexpected body %q", string(body))
	}

	resp, err = app.Test(httptest.NewRequest("DELETE", "/item/Parent%2FChild/text_html", nil))
	if err != nil || resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete failed: %v %v", err, resp)
	}
	resp, err = app.Test(httptest.NewRequest("GET", "/item/Parent%2FChild/text_html", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
	body, _ = io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"cache_miss"`)) {
		t.Fatalf("expected cache_miss JSON, got %s", string(body))
	}
}

func TestRouterRejectsEscapedSeparatorInKey(t *testing.T) {
	app := newTestApp(t, 5000)
	resp, err := app.Test(httptest.NewRequest("PUT", "/wiki/macro/a%2Fb", strings.NewReader("x")))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for key with separator, got %d", resp.StatusCode)
	}
}

func TestRouterRejectsInvalidLocator(t *testing.T) {
	app := newTestApp(t, 5000)

	for _, target := range []string{"/page_or_wiki/macro/x", "/wiki/macro/__lock__", "/wiki/macro/.hidden"} {
		resp, err := app.Test(httptest.NewRequest("PUT", target, strings.NewReader("x")))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.StatusCode)
		}
	}
}

func TestRouterReportsLockTimeout(t *testing.T) {
	app := newTestApp(t, 5000)

	resp, err := app.Test(httptest.NewRequest("PUT", "/farm/i18n/meta", strings.NewReader("before")))
	if err != nil || resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("initial put failed: %v %v", err, resp)
	}

	info, err := app.store.Stat(context.Background(), cache.Locator{Scope: cache.ScopeFarm, Arena: "i18n", Key: "meta"})
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	holder := lock.NewWriteLock(filepath.Join(filepath.Dir(info.FilePath), "__lock__"), time.Minute)
	if ok, err := holder.Acquire(context.Background(), time.Second); !ok || err != nil {
		t.Fatalf("holder acquire failed: %v", err)
	}
	defer holder.Release()

	resp, err = app.Test(httptest.NewRequest("PUT", "/farm/i18n/meta", strings.NewReader("after")))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 while locked, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
}

type testApp struct {
	*fiber.App
	store cache.Store
}

func newTestApp(t *testing.T, port int) *testApp {
	t.Helper()

	resolver, err := cache.NewResolver(t.TempDir(), "testwiki")
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := cache.NewStore(cache.Settings{
		Resolver: resolver,
		Locks:    lock.NewCoordinator(30*time.Millisecond, time.Minute),
		Logger:   logger,
	}, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	app, err := NewApp(AppOptions{
		Logger:     logger,
		Store:      store,
		ListenPort: port,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, store: store}
}
