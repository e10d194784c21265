package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shellsync/shellsync/internal/cachestore"
	"github.com/shellsync/shellsync/internal/engine"
	"github.com/shellsync/shellsync/internal/logging"
	"github.com/shellsync/shellsync/internal/manifest"
	"github.com/shellsync/shellsync/internal/server"
	"github.com/shellsync/shellsync/internal/upstream"
)

// 路由策略名称，用于日志与测试断言。
const (
	strategyOnlineFirst = "online-first"
	strategyCacheFirst  = "cache-first"
	strategyPassthrough = "passthrough"
)

// Handler 负责 orchestrate “逻辑键归一化 → 策略选择 → 缓存/回源” 的全流程，
// 对外暴露 Fiber handler，内部复用共享 http.Client 与缓存区管理器。
type Handler struct {
	client *http.Client
	logger *logrus.Logger
	caches *cachestore.Manager
	origin *upstream.Origin
	bundle *manifest.Bundle
	engine *engine.Engine
}

// NewHandler constructs the request router with shared client/logger/caches.
func NewHandler(
	client *http.Client,
	logger *logrus.Logger,
	caches *cachestore.Manager,
	origin *upstream.Origin,
	bundle *manifest.Bundle,
	eng *engine.Engine,
) *Handler {
	return &Handler{
		client: client,
		logger: logger,
		caches: caches,
		origin: origin,
		bundle: bundle,
		engine: eng,
	}
}

// Handle 对每个请求独立决策：入口点在线优先，其余清单资源缓存优先，
// 清单不认识的键以及引擎尚未接管时一律透传给源站。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	method := c.Method()
	path := string(c.Request().URI().Path())
	rawQuery := string(c.Request().URI().QueryString())

	if method != http.MethodGet && method != http.MethodHead {
		return h.passthrough(c, requestID, started)
	}

	key := manifest.Key(path, rawQuery)
	if !h.engine.Active() || !h.bundle.Resources.Tracked(key) {
		return h.passthrough(c, requestID, started)
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if key == manifest.RootKey {
		return h.onlineFirst(c, ctx, key, requestID, started)
	}
	return h.cacheFirst(c, ctx, key, requestID, started)
}

// onlineFirst 先尝试回源，成功则覆盖写缓存后返回；网络失败退回
// 缓存副本，没有副本时把失败暴露给调用方。入口点决定加载哪个
// 应用包，有网络时必须反映最新部署。
func (h *Handler) onlineFirst(c fiber.Ctx, ctx context.Context, key, requestID string, started time.Time) error {
	url := h.origin.Resolve(key)

	resp, err := upstream.Fetch(ctx, h.client, url, false)
	if err != nil {
		cached, cacheErr := h.lookupLive(ctx, url)
		if cacheErr == nil {
			h.logResult(key, strategyOnlineFirst, requestID, cached.Status, true, started, nil)
			return h.replay(c, cached, true, requestID)
		}
		h.logResult(key, strategyOnlineFirst, requestID, 0, false, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_unreachable")
	}

	if resp.OK() {
		if err := h.storeLive(ctx, url, resp); err != nil {
			h.logger.WithError(err).WithField("key", key).Warn("cache_put_failed")
		}
	}

	h.logResult(key, strategyOnlineFirst, requestID, resp.Status, false, started, nil)
	return h.replay(c, resp, false, requestID)
}

// cacheFirst 命中即回放；未命中回源，成功状态才写缓存，
// 错误响应原样转发、绝不落盘。
func (h *Handler) cacheFirst(c fiber.Ctx, ctx context.Context, key, requestID string, started time.Time) error {
	url := h.origin.Resolve(key)

	cached, err := h.lookupLive(ctx, url)
	if err == nil {
		h.logResult(key, strategyCacheFirst, requestID, cached.Status, true, started, nil)
		return h.replay(c, cached, true, requestID)
	}
	if !errors.Is(err, cachestore.ErrNotFound) {
		h.logger.WithError(err).WithField("key", key).Warn("cache_get_failed")
	}

	resp, err := upstream.Fetch(ctx, h.client, url, false)
	if err != nil {
		h.logResult(key, strategyCacheFirst, requestID, 0, false, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_unreachable")
	}

	if resp.OK() {
		if err := h.storeLive(ctx, url, resp); err != nil {
			h.logger.WithError(err).WithField("key", key).Warn("cache_put_failed")
		}
	}

	h.logResult(key, strategyCacheFirst, requestID, resp.Status, false, started, nil)
	return h.replay(c, resp, false, requestID)
}

func (h *Handler) lookupLive(ctx context.Context, url string) (*cachestore.Response, error) {
	live, err := h.caches.Open(cachestore.AreaLive)
	if err != nil {
		return nil, err
	}
	return live.Get(ctx, url)
}

func (h *Handler) storeLive(ctx context.Context, url string, resp *cachestore.Response) error {
	live, err := h.caches.Open(cachestore.AreaLive)
	if err != nil {
		return err
	}
	return live.Put(ctx, url, resp)
}

// replay 把缓存快照或刚抓取的响应写回客户端，HEAD 请求不带正文。
func (h *Handler) replay(c fiber.Ctx, resp *cachestore.Response, cacheHit bool, requestID string) error {
	copyResponseHeaders(c, resp.Header)
	c.Set("X-Shellsync-Cache-Hit", strconv.FormatBool(cacheHit))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.Status)

	if c.Method() == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(key, strategy, requestID string, status int, cacheHit bool, started time.Time, err error) {
	fields := logging.RequestFields(key, strategy, true, cacheHit)
	fields["action"] = "route"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("route_failed")
		return
	}
	h.logger.WithFields(fields).Info("route_complete")
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if upstream.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
