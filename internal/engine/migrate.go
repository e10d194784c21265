package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shellsync/shellsync/internal/cachestore"
	"github.com/shellsync/shellsync/internal/logging"
	"github.com/shellsync/shellsync/internal/manifest"
)

// activate 执行迁移算法；任何故障都视为缓存状态不可信，
// 无条件删除三个缓存区后上抛（只记录，不重试），
// 下一次自然激活会按冷启动重建。
func (e *Engine) activate(ctx context.Context) error {
	if err := e.migrate(ctx); err != nil {
		fields := logging.LifecycleFields("migrate_reset", e.Phase().String())
		fields["error"] = err.Error()
		if resetErr := e.caches.Reset(); resetErr != nil {
			fields["reset_error"] = resetErr.Error()
		}
		e.logger.WithFields(fields).Error("迁移失败，已重置全部缓存区")
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (e *Engine) migrate(ctx context.Context) error {
	record, err := e.loadRecord(ctx)
	if err != nil {
		return err
	}

	coldStart := record == nil
	evicted := 0
	if coldStart {
		// 首次激活：整体丢弃 live，保证不会残留来路不明的条目。
		if err := e.caches.Drop(cachestore.AreaLive); err != nil {
			return err
		}
	} else {
		evicted, err = e.pruneLive(ctx, record)
		if err != nil {
			return err
		}
	}

	promoted, err := e.promoteStaging(ctx)
	if err != nil {
		return err
	}

	if err := e.caches.Drop(cachestore.AreaStaging); err != nil {
		return err
	}

	if err := e.saveRecord(ctx); err != nil {
		return err
	}

	fields := logging.LifecycleFields("migrate", e.Phase().String())
	fields["cold_start"] = coldStart
	fields["evicted"] = evicted
	fields["promoted"] = promoted
	e.logger.WithFields(fields).Info("缓存迁移完成")
	return nil
}

// pruneLive 按内容寻址规则清理 live 区：新清单不认识的键、
// 或指纹与旧清单记录不一致的键一律淘汰；指纹未变的条目原样保留，
// 跨版本复用，避免重复下载。
func (e *Engine) pruneLive(ctx context.Context, record manifest.Manifest) (int, error) {
	live, err := e.caches.Open(cachestore.AreaLive)
	if err != nil {
		return 0, err
	}

	storedURLs, err := live.Keys(ctx)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, storedURL := range storedURLs {
		logical, ok := e.origin.Strip(storedURL)
		if ok && !manifest.Stale(record, e.bundle.Resources, logical) {
			continue
		}
		if err := live.Delete(ctx, storedURL); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// promoteStaging 把 staging 的全部条目覆盖写入 live，
// 刚抓取的核心资源永远优先于迁移幸存的旧条目。
func (e *Engine) promoteStaging(ctx context.Context) (int, error) {
	staging, err := e.caches.Open(cachestore.AreaStaging)
	if err != nil {
		return 0, err
	}
	live, err := e.caches.Open(cachestore.AreaLive)
	if err != nil {
		return 0, err
	}

	keys, err := staging.Keys(ctx)
	if err != nil {
		return 0, err
	}

	for i, key := range keys {
		resp, err := staging.Get(ctx, key)
		if err != nil {
			return i, err
		}
		if err := live.Put(ctx, key, resp); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

// loadRecord 读取上一次成功应用的清单记录；从未激活过时返回 nil。
func (e *Engine) loadRecord(ctx context.Context) (manifest.Manifest, error) {
	area, err := e.caches.Open(cachestore.AreaManifest)
	if err != nil {
		return nil, err
	}

	entry, err := area.Get(ctx, cachestore.RecordKey)
	if errors.Is(err, cachestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record manifest.Manifest
	if err := json.Unmarshal(entry.Body, &record); err != nil {
		return nil, fmt.Errorf("decode manifest record: %w", err)
	}
	return record, nil
}

// saveRecord 把当前清单固化为 manifest 区的唯一条目，替换旧记录。
func (e *Engine) saveRecord(ctx context.Context) error {
	area, err := e.caches.Open(cachestore.AreaManifest)
	if err != nil {
		return err
	}

	body, err := json.Marshal(e.bundle.Resources)
	if err != nil {
		return fmt.Errorf("encode manifest record: %w", err)
	}

	return area.Put(ctx, cachestore.RecordKey, &cachestore.Response{
		Status: http.StatusOK,
		Body:   body,
	})
}
