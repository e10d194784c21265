package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/shellsync/shellsync/internal/cachestore"
	"github.com/shellsync/shellsync/internal/logging"
	"github.com/shellsync/shellsync/internal/manifest"
	"github.com/shellsync/shellsync/internal/upstream"
)

// Phase 描述引擎生命周期阶段，只会单向前进。
type Phase int32

const (
	PhaseUninstalled Phase = iota
	PhaseStaged
	PhaseActive
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninstalled:
		return "uninstalled"
	case PhaseStaged:
		return "staged"
	case PhaseActive:
		return "active"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrInstallFailed 表示核心资源安装失败，本实例不得接管请求。
var ErrInstallFailed = errors.New("core resource install failed")

// Options 汇总构造引擎所需的全部依赖，均为必填（WaitForActivation 除外）。
type Options struct {
	Bundle *manifest.Bundle
	Origin *upstream.Origin
	Client *http.Client
	Caches *cachestore.Manager
	Logger *logrus.Logger

	// WaitForActivation 为 true 时，安装完成后阻塞等待 skip-waiting 消息。
	WaitForActivation bool
}

// Engine 是缓存同步引擎实例，一次进程生命周期内只激活一次。
type Engine struct {
	bundle *manifest.Bundle
	origin *upstream.Origin
	client *http.Client
	caches *cachestore.Manager
	logger *logrus.Logger

	waitForActivation bool

	mu      sync.Mutex
	phase   Phase
	lastErr error

	ready    chan struct{}
	skip     chan struct{}
	skipOnce sync.Once
	commands chan string
}

// New 校验依赖并构造引擎，任何依赖缺失都会直接报错。
func New(opts Options) (*Engine, error) {
	if opts.Bundle == nil {
		return nil, errors.New("manifest bundle is required")
	}
	if opts.Origin == nil {
		return nil, errors.New("origin is required")
	}
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opts.Caches == nil {
		return nil, errors.New("cache manager is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	return &Engine{
		bundle:            opts.Bundle,
		origin:            opts.Origin,
		client:            opts.Client,
		caches:            opts.Caches,
		logger:            opts.Logger,
		waitForActivation: opts.WaitForActivation,
		phase:             PhaseUninstalled,
		ready:             make(chan struct{}),
		skip:              make(chan struct{}),
		commands:          make(chan string, 8),
	}, nil
}

// Run 顺序执行 install → activate，随后驻留处理控制消息直到 ctx 取消。
// 安装或迁移失败都会终止本实例的激活；迁移失败前会先无条件重置缓存区。
func (e *Engine) Run(ctx context.Context) error {
	if err := e.install(ctx); err != nil {
		e.recordErr(err)
		return err
	}
	e.setPhase(PhaseStaged)

	if e.waitForActivation {
		e.logger.WithFields(logging.LifecycleFields("await_activation", e.Phase().String())).
			Info("等待 skip-waiting 消息")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.skip:
		}
	}

	if err := e.activate(ctx); err != nil {
		e.setPhase(PhaseFailed)
		e.recordErr(err)
		return err
	}

	// 激活完成，本实例接管全部请求。
	e.setPhase(PhaseActive)
	close(e.ready)
	e.logger.WithFields(logging.LifecycleFields("claim", e.Phase().String())).
		Info("引擎已接管请求")

	return e.loop(ctx)
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-e.commands:
			if msg == CommandMaterializeAll {
				e.materializeAll(ctx)
			}
		}
	}
}

// Phase 返回当前生命周期阶段。
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Active 返回引擎是否已接管请求。
func (e *Engine) Active() bool {
	return e.Phase() == PhaseActive
}

// Ready 返回激活完成信号，供调用方等待首个可服务时刻。
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Err 返回最近一次生命周期故障。
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

func (e *Engine) recordErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}
