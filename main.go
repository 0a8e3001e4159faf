package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/tapehub/tapehub/internal/config"
	"github.com/tapehub/tapehub/internal/logging"
	"github.com/tapehub/tapehub/internal/proxy"
	"github.com/tapehub/tapehub/internal/server"
	"github.com/tapehub/tapehub/internal/server/routes"
	"github.com/tapehub/tapehub/internal/tape"
	"github.com/tapehub/tapehub/internal/version"
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

	if opts.checkOnly {
		fields := configFields(logging.BaseFields("check_config", opts.configPath), cfg)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 录音库 → 上游 client → Dispatcher → Fiber server，
	// 所有请求共享同一份配置、录音库与连接池。
	apps, err := buildApps(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := configFields(logging.BaseFields("startup", opts.configPath), cfg)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, apps, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tapehub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 TAPEHUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("TAPEHUB_CONFIG")
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
	}, nil
}

// serverApps 持有代理与（可选的）管理端 Fiber 应用。
type serverApps struct {
	proxy *fiber.App
	admin *fiber.App
}

// buildApps 按配置装配录音库、上游转发与两个 Fiber 应用，不触碰网络监听。
func buildApps(cfg *config.Config, logger *logrus.Logger) (serverApps, error) {
	store, err := tape.NewStore(cfg.Tape.TapePath)
	if err != nil {
		return serverApps{}, fmt.Errorf("初始化录音目录失败: %w", err)
	}

	httpClient := server.NewUpstreamClient(cfg)
	forwarder := proxy.NewForwarder(httpClient, cfg.Tape.Upstream)
	dispatcher := proxy.NewDispatcher(store, forwarder, cfg.Tape.ReplayOnly)

	app, err := server.NewApp(server.AppOptions{
		Logger:         logger,
		Proxy:          proxy.NewHandler(dispatcher, logger),
		BodyLimit:      cfg.Global.MaxBodySize,
		ReadBufferSize: cfg.Global.ReadBufferSize,
	})
	if err != nil {
		return serverApps{}, err
	}
	apps := serverApps{proxy: app}

	if cfg.Global.AdminListen != "" {
		admin, err := server.NewAdminApp(logger)
		if err != nil {
			return serverApps{}, err
		}
		routes.RegisterAdminRoutes(admin, routes.StatusSource{
			Config:  cfg,
			Store:   store,
			Version: version.Full(),
		})
		apps.admin = admin
	}
	return apps, nil
}

func startHTTPServer(cfg *config.Config, apps serverApps, logger *logrus.Logger) error {
	listenCfg := fiber.ListenConfig{DisableStartupMessage: true}

	if apps.admin != nil {
		adminLn, err := net.Listen("tcp", cfg.Global.AdminListen)
		if err != nil {
			return fmt.Errorf("admin listen %s: %w", cfg.Global.AdminListen, err)
		}
		logger.WithFields(logrus.Fields{
			"action":  "listen",
			"surface": "admin",
			"address": adminLn.Addr().String(),
		}).Info("管理端服务启动")
		go func() {
			if err := apps.admin.Listener(adminLn, listenCfg); err != nil {
				logger.WithError(err).WithField("action", "listen").Error("管理端服务退出")
			}
		}()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr(), err)
	}

	logger.WithFields(logrus.Fields{
		"action":   "listen",
		"surface":  "proxy",
		"address":  ln.Addr().String(),
		"upstream": cfg.Tape.Upstream,
		"mode":     cfg.Tape.Mode(),
	}).Info("Fiber 服务启动")

	return apps.proxy.Listener(ln, listenCfg)
}

func configFields(fields logrus.Fields, cfg *config.Config) logrus.Fields {
	fields["bind"] = cfg.ListenAddr()
	fields["upstream"] = cfg.Tape.Upstream
	fields["tape_path"] = cfg.Tape.TapePath
	fields["mode"] = cfg.Tape.Mode()
	if cfg.Global.AdminListen != "" {
		fields["admin"] = cfg.Global.AdminListen
	}
	return fields
}
