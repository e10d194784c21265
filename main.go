package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/shellsync/shellsync/internal/cachestore"
	"github.com/shellsync/shellsync/internal/config"
	"github.com/shellsync/shellsync/internal/engine"
	"github.com/shellsync/shellsync/internal/logging"
	"github.com/shellsync/shellsync/internal/manifest"
	"github.com/shellsync/shellsync/internal/router"
	"github.com/shellsync/shellsync/internal/server"
	"github.com/shellsync/shellsync/internal/upstream"
	"github.com/shellsync/shellsync/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	bundle, err := loadBundle(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "加载资源清单失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origin"] = cfg.App.Origin
		fields["resources"] = len(bundle.Resources)
		fields["core_resources"] = len(bundle.Core)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	origin, err := upstream.ParseOrigin(cfg.App.Origin)
	if err != nil {
		fmt.Fprintf(stdErr, "解析源站地址失败: %v\n", err)
		return 1
	}

	caches, err := cachestore.NewManager(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	client := upstream.NewClient(cfg)
	eng, err := engine.New(engine.Options{
		Bundle:            bundle,
		Origin:            origin,
		Client:            client,
		Caches:            caches,
		Logger:            logger,
		WaitForActivation: cfg.App.WaitForActivation,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建同步引擎失败: %v\n", err)
		return 1
	}

	// 启动遵循“配置 → 清单 → 缓存区 → 引擎 → Fiber server”顺序；
	// 引擎激活与 HTTP 监听并行，激活完成前所有请求透传给源站。
	go func() {
		if err := eng.Run(context.Background()); err != nil {
			logger.WithFields(logrus.Fields{
				"action": "engine_run",
				"error":  err.Error(),
			}).Error("引擎生命周期异常结束")
		}
	}()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["origin"] = cfg.App.Origin
	fields["listen_port"] = cfg.Global.ListenPort
	fields["resources"] = len(bundle.Resources)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	handler := router.NewHandler(client, logger, caches, origin, bundle, eng)
	if err := startHTTPServer(cfg, handler, eng, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// loadBundle 默认使用编译期内置清单，配置显式覆盖时改读文件。
func loadBundle(cfg *config.Config) (*manifest.Bundle, error) {
	if cfg.App.ManifestPath == "" {
		return manifest.Default(), nil
	}
	data, err := os.ReadFile(cfg.App.ManifestPath)
	if err != nil {
		return nil, err
	}
	return manifest.Load(data)
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("shellsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./shellsync.toml，可被 SHELLSYNC_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置与清单后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("SHELLSYNC_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "shellsync.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, handler server.RequestHandler, eng *engine.Engine, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Handler:    handler,
		Engine:     eng,
		ListenPort: port,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
