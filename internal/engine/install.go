package engine

import (
	"context"
	"fmt"

	"github.com/shellsync/shellsync/internal/cachestore"
	"github.com/shellsync/shellsync/internal/logging"
	"github.com/shellsync/shellsync/internal/upstream"
)

// install 将核心资源逐个强制回源下载进 staging 区。
// staging 在此阶段是只写的，不影响正在服务的 live 区；
// 任何一个核心资源失败都会让本实例放弃激活。
func (e *Engine) install(ctx context.Context) error {
	staging, err := e.caches.Open(cachestore.AreaStaging)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	for _, key := range e.bundle.Core {
		url := e.origin.Resolve(key)
		resp, err := upstream.Fetch(ctx, e.client, url, true)
		if err != nil {
			return fmt.Errorf("%w: fetch %s: %v", ErrInstallFailed, key, err)
		}
		if !resp.OK() {
			return fmt.Errorf("%w: fetch %s: status %d", ErrInstallFailed, key, resp.Status)
		}
		if err := staging.Put(ctx, url, resp); err != nil {
			return fmt.Errorf("%w: store %s: %v", ErrInstallFailed, key, err)
		}
	}

	fields := logging.LifecycleFields("install", e.Phase().String())
	fields["core_resources"] = len(e.bundle.Core)
	e.logger.WithFields(fields).Info("核心资源安装完成")
	return nil
}
