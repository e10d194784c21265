package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/shellsync/shellsync/internal/cachestore"
	"github.com/shellsync/shellsync/internal/manifest"
)

func okOriginServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("content of " + r.URL.Path))
	}))
}

func TestColdStartPopulatesLiveWithCoreSet(t *testing.T) {
	server := okOriginServer()
	defer server.Close()

	bundle := testBundle()
	eng, manager := newTestEngine(t, server.URL, bundle, false)
	runEngine(t, eng)

	keys := liveKeys(t, manager)
	if len(keys) != len(bundle.Core) {
		t.Fatalf("live cache must hold exactly the core set, got %v", keys)
	}
	for _, core := range bundle.Core {
		url := server.URL + core
		if core == "/" {
			url = server.URL + "/"
		}
		if _, ok := keys[url]; !ok {
			t.Fatalf("core resource %s missing from live cache", core)
		}
	}

	area, err := manager.Open(cachestore.AreaManifest)
	if err != nil {
		t.Fatalf("open manifest area error: %v", err)
	}
	entry, err := area.Get(context.Background(), cachestore.RecordKey)
	if err != nil {
		t.Fatalf("manifest record must exist: %v", err)
	}
	var record manifest.Manifest
	if err := json.Unmarshal(entry.Body, &record); err != nil {
		t.Fatalf("decode record error: %v", err)
	}
	if !reflect.DeepEqual(record, bundle.Resources) {
		t.Fatalf("record mismatch: %v", record)
	}
}

func TestColdStartDropsIndeterminatePriorState(t *testing.T) {
	server := okOriginServer()
	defer server.Close()

	bundle := testBundle()
	eng, manager := newTestEngine(t, server.URL, bundle, false)

	// live 里有条目但没有清单记录：视为来路不明，必须整体丢弃。
	seedLive(t, manager, server.URL+"/orphan.js", "orphan")

	runEngine(t, eng)

	keys := liveKeys(t, manager)
	if _, ok := keys[server.URL+"/orphan.js"]; ok {
		t.Fatalf("orphaned entry must not survive a cold start")
	}
}

func TestInstallFailureKeepsEngineInactive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/app.js" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	bundle := testBundle()
	eng, manager := newTestEngine(t, server.URL, bundle, false)
	seedLive(t, manager, server.URL+"/styles.css", "previous instance data")

	err := eng.Run(context.Background())
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}
	if eng.Active() {
		t.Fatalf("engine must not claim after a failed install")
	}

	// live 区保持原样，上一实例继续服务。
	keys := liveKeys(t, manager)
	if _, ok := keys[server.URL+"/styles.css"]; !ok {
		t.Fatalf("failed install must not touch the live cache")
	}
}

func TestMigrationPreservesUnchangedFingerprints(t *testing.T) {
	server := okOriginServer()
	defer server.Close()

	bundle := testBundle()
	eng, manager := newTestEngine(t, server.URL, bundle, false)

	seedRecord(t, manager, manifest.Manifest{
		"/":           "old-root",
		"/app.js":     "old-app",
		"/styles.css": "h-css", // 与新清单一致，必须跨版本保留
	})
	seedLive(t, manager, server.URL+"/styles.css", "cached css payload")

	runEngine(t, eng)

	area, err := manager.Open(cachestore.AreaLive)
	if err != nil {
		t.Fatalf("open live area error: %v", err)
	}
	entry, err := area.Get(context.Background(), server.URL+"/styles.css")
	if err != nil {
		t.Fatalf("unchanged entry must survive migration: %v", err)
	}
	if string(entry.Body) != "cached css payload" {
		t.Fatalf("preserved entry must be untouched, got %q", entry.Body)
	}
}

func TestMigrationEvictsChangedAndRemovedKeys(t *testing.T) {
	server := okOriginServer()
	defer server.Close()

	bundle := testBundle()
	eng, manager := newTestEngine(t, server.URL, bundle, false)

	seedRecord(t, manager, manifest.Manifest{
		"/":           "h-root",
		"/app.js":     "h-app",
		"/styles.css": "old-css",  // 指纹变化
		"/vendor.js":  "h-vendor", // 新清单已移除
	})
	seedLive(t, manager, server.URL+"/styles.css", "stale css")
	seedLive(t, manager, server.URL+"/vendor.js", "removed vendor")

	runEngine(t, eng)

	keys := liveKeys(t, manager)
	if _, ok := keys[server.URL+"/vendor.js"]; ok {
		t.Fatalf("removed key must be evicted")
	}
	area, err := manager.Open(cachestore.AreaLive)
	if err != nil {
		t.Fatalf("open live area error: %v", err)
	}
	if entry, err := area.Get(context.Background(), server.URL+"/styles.css"); err == nil {
		if string(entry.Body) == "stale css" {
			t.Fatalf("changed fingerprint must evict the stale payload")
		}
	}
}

func TestMigrationDropsStagingAfterPromotion(t *testing.T) {
	server := okOriginServer()
	defer server.Close()

	eng, manager := newTestEngine(t, server.URL, testBundle(), false)
	runEngine(t, eng)

	staging, err := manager.Open(cachestore.AreaStaging)
	if err != nil {
		t.Fatalf("open staging area error: %v", err)
	}
	keys, err := staging.Keys(context.Background())
	if err != nil {
		t.Fatalf("list staging keys error: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("staging must be dropped after promotion, got %v", keys)
	}
}

func TestMigrationFaultResetsAllAreas(t *testing.T) {
	server := okOriginServer()
	defer server.Close()

	eng, manager := newTestEngine(t, server.URL, testBundle(), false)

	// 清单记录损坏会让迁移在 diff 之前就抛错。
	area, err := manager.Open(cachestore.AreaManifest)
	if err != nil {
		t.Fatalf("open manifest area error: %v", err)
	}
	if err := area.Put(context.Background(), cachestore.RecordKey, &cachestore.Response{Status: 200, Body: []byte("{broken")}); err != nil {
		t.Fatalf("seed broken record error: %v", err)
	}
	seedLive(t, manager, server.URL+"/styles.css", "stale")

	err = eng.Run(context.Background())
	if err == nil {
		t.Fatalf("broken manifest record must fail activation")
	}
	if eng.Active() {
		t.Fatalf("engine must not claim after a migration fault")
	}

	for _, name := range []string{cachestore.AreaLive, cachestore.AreaStaging, cachestore.AreaManifest} {
		reset, err := manager.Open(name)
		if err != nil {
			t.Fatalf("open %s error: %v", name, err)
		}
		keys, err := reset.Keys(context.Background())
		if err != nil {
			t.Fatalf("list %s keys error: %v", name, err)
		}
		if len(keys) != 0 {
			t.Fatalf("area %s must be empty after the fault reset", name)
		}
	}
}

func TestSkipWaitingUnblocksActivation(t *testing.T) {
	server := okOriginServer()
	defer server.Close()

	eng, _ := newTestEngine(t, server.URL, testBundle(), true)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = eng.Run(ctx) }()

	eng.Post(CommandSkipWaiting)

	select {
	case <-eng.Ready():
	case <-time.After(5 * time.Second):
		t.Fatalf("skip-waiting must unblock activation")
	}
}

func TestPostIgnoresUnknownMessages(t *testing.T) {
	server := okOriginServer()
	defer server.Close()

	eng, _ := newTestEngine(t, server.URL, testBundle(), false)
	eng.Post("definitely-not-a-command")

	select {
	case msg := <-eng.commands:
		t.Fatalf("unknown message must not be queued, got %q", msg)
	default:
	}
}
