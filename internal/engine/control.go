package engine

import (
	"context"
	"errors"

	"github.com/shellsync/shellsync/internal/cachestore"
	"github.com/shellsync/shellsync/internal/logging"
	"github.com/shellsync/shellsync/internal/upstream"
)

// 控制通道只识别两种消息，其余一律忽略。
const (
	CommandSkipWaiting    = "skip-waiting"
	CommandMaterializeAll = "materialize-all"
)

// Post 投递一条控制消息。skip-waiting 立即解除激活等待；
// materialize-all 排队交给引擎自己的循环处理；未识别的消息静默丢弃。
func (e *Engine) Post(msg string) {
	switch msg {
	case CommandSkipWaiting:
		e.skipOnce.Do(func() { close(e.skip) })
	case CommandMaterializeAll:
		select {
		case e.commands <- msg:
		default:
			// 队列已满说明积压的补全尚未执行，丢弃重复请求即可。
		}
	default:
		e.logger.WithFields(logging.LifecycleFields("control_ignored", e.Phase().String())).
			WithField("message", msg).Debug("忽略未识别的控制消息")
	}
}

// materializeAll 补全 live 区缺失的清单资源：已缓存的键直接跳过，
// 只抓取确实缺失的部分，抓取失败不重试、错误响应不落盘。
func (e *Engine) materializeAll(ctx context.Context) {
	fields := logging.LifecycleFields("materialize", e.Phase().String())

	live, err := e.caches.Open(cachestore.AreaLive)
	if err != nil {
		fields["error"] = err.Error()
		e.logger.WithFields(fields).Error("打开 live 缓存区失败")
		return
	}

	fetched, skipped, failed := 0, 0, 0
	for key := range e.bundle.Resources {
		url := e.origin.Resolve(key)

		_, err := live.Get(ctx, url)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, cachestore.ErrNotFound) {
			failed++
			continue
		}

		resp, err := upstream.Fetch(ctx, e.client, url, false)
		if err != nil || !resp.OK() {
			failed++
			continue
		}
		if err := live.Put(ctx, url, resp); err != nil {
			failed++
			continue
		}
		fetched++
	}

	fields["fetched"] = fetched
	fields["skipped"] = skipped
	fields["failed"] = failed
	e.logger.WithFields(fields).Info("缺失资源补全完成")
}
