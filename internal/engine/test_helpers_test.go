package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellsync/shellsync/internal/cachestore"
	"github.com/shellsync/shellsync/internal/manifest"
	"github.com/shellsync/shellsync/internal/upstream"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testBundle() *manifest.Bundle {
	return &manifest.Bundle{
		Resources: manifest.Manifest{
			"/":           "h-root",
			"/app.js":     "h-app",
			"/styles.css": "h-css",
		},
		Core: []string{"/", "/app.js"},
	}
}

func newTestEngine(t *testing.T, originURL string, bundle *manifest.Bundle, wait bool) (*Engine, *cachestore.Manager) {
	t.Helper()

	manager, err := cachestore.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager error: %v", err)
	}
	origin, err := upstream.ParseOrigin(originURL)
	if err != nil {
		t.Fatalf("parse origin error: %v", err)
	}
	eng, err := New(Options{
		Bundle:            bundle,
		Origin:            origin,
		Client:            http.DefaultClient,
		Caches:            manager,
		Logger:            testLogger(),
		WaitForActivation: wait,
	})
	if err != nil {
		t.Fatalf("new engine error: %v", err)
	}
	return eng, manager
}

// runEngine 在后台启动引擎并等待其接管请求，测试结束时取消。
func runEngine(t *testing.T, eng *Engine) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = eng.Run(ctx) }()

	select {
	case <-eng.Ready():
	case <-time.After(5 * time.Second):
		t.Fatalf("引擎未在期望时间内完成激活")
	}
}

func seedRecord(t *testing.T, manager *cachestore.Manager, record manifest.Manifest) {
	t.Helper()

	area, err := manager.Open(cachestore.AreaManifest)
	if err != nil {
		t.Fatalf("open manifest area error: %v", err)
	}
	body, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record error: %v", err)
	}
	if err := area.Put(context.Background(), cachestore.RecordKey, &cachestore.Response{Status: 200, Body: body}); err != nil {
		t.Fatalf("seed record error: %v", err)
	}
}

func seedLive(t *testing.T, manager *cachestore.Manager, key string, body string) {
	t.Helper()

	area, err := manager.Open(cachestore.AreaLive)
	if err != nil {
		t.Fatalf("open live area error: %v", err)
	}
	if err := area.Put(context.Background(), key, &cachestore.Response{Status: 200, Body: []byte(body)}); err != nil {
		t.Fatalf("seed live error: %v", err)
	}
}

func liveKeys(t *testing.T, manager *cachestore.Manager) map[string]struct{} {
	t.Helper()

	area, err := manager.Open(cachestore.AreaLive)
	if err != nil {
		t.Fatalf("open live area error: %v", err)
	}
	keys, err := area.Keys(context.Background())
	if err != nil {
		t.Fatalf("list live keys error: %v", err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}
