package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/diskcache/internal/cache"
	"github.com/any-hub/diskcache/internal/config"
	"github.com/any-hub/diskcache/internal/logging"
	"github.com/any-hub/diskcache/internal/metrics"
	"github.com/any-hub/diskcache/internal/server"
	"github.com/any-hub/diskcache/internal/server/routes"
	"github.com/any-hub/diskcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	purgeStore  string
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

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["stores"] = config.StoreNames(cfg.Stores)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	registry, err := server.NewStoreRegistry(cfg, cache.NewOSStorage(), logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Store 注册表失败: %v\n", err)
		return 1
	}

	if opts.purgeStore != "" {
		return purgeStore(registry, opts, logger)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["stores"] = len(cfg.Stores)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// purgeStore 清空指定 Store 的全部缓存条目后退出。
func purgeStore(registry *server.StoreRegistry, opts cliOptions, logger *logrus.Logger) int {
	route, ok := registry.Lookup(opts.purgeStore)
	if !ok {
		fmt.Fprintf(stdErr, "未找到 Store: %s\n", opts.purgeStore)
		return 1
	}

	fields := logging.BaseFields("purge", opts.configPath)
	fields["store"] = route.Config.Name
	if err := route.Dir.Purge(context.Background()); err != nil {
		logger.WithFields(fields).WithError(err).Error("清理缓存失败")
		fmt.Fprintf(stdErr, "清理缓存失败: %v\n", err)
		return 1
	}
	logger.WithFields(fields).Info("缓存已清理")
	fmt.Fprintf(stdOut, "purged %s\n", route.Config.Name)
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("diskcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		purge      string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 DISKCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&purge, "purge", "", "清空指定 Store 的缓存后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("DISKCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		purgeStore:  purge,
	}, nil
}

func startHTTPServer(cfg *config.Config, registry *server.StoreRegistry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		ListenPort: port,
	})
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	routes.RegisterStoreRoutes(app, registry, logger, collector)
	routes.RegisterMetricsRoute(app, collector.Handler())
	server.NotFound(app, logger)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
