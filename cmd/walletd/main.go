package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cryptolocker/nftwallet/internal/app"
	"github.com/cryptolocker/nftwallet/internal/server"
	"github.com/cryptolocker/nftwallet/pkg/config"
	"github.com/cryptolocker/nftwallet/pkg/logger"
	"github.com/cryptolocker/nftwallet/pkg/shutdown"
)

func main() {
	// .env 可选；不存在时直接使用真实环境变量
	_ = godotenv.Load()

	var (
		configPath     = flag.String("config", os.Getenv("NFTWALLET_CONFIG"), "YAML config file (optional)")
		listenAddr     = flag.String("listen", "", "HTTP listen address (overrides server_addr)")
		simulate       = flag.Bool("simulate", false, "run against an in-process simulated chain")
		confirmTimeout = flag.Duration("confirm-timeout", 3*time.Minute, "max wait for each transaction receipt")
	)
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fatal(err)
	}
	if *listenAddr != "" {
		cfg.ServerAddr = *listenAddr
	}
	if err := logger.Init(cfg.Log); err != nil {
		fatal(fmt.Errorf("init logger: %w", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{Simulate: *simulate})
	if err != nil {
		logger.Errorf("启动失败: %v", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Options{
		Network:        cfg.Network,
		Factory:        a.Factory,
		Provider:       a.WalletProvider(),
		Pinning:        a.Pinning,
		Activity:       a.Activity,
		Sagas:          a.Sagas,
		Metrics:        a.Metrics,
		ConfirmTimeout: *confirmTimeout,
	})
	if err != nil {
		a.Close()
		logger.Errorf("初始化 API 失败: %v", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("walletd 监听 %s（网络 %s）", cfg.ServerAddr, cfg.Network)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
			cancel()
		}
	}()

	if cfg.MetricsAddr != "" {
		if _, err := a.Metrics.StartAsync(ctx, cfg.MetricsAddr); err != nil {
			logger.Warnf("metrics 启动失败: %v", err)
		}
	}

	sd := shutdown.NewManager()
	sd.OnShutdown("http", func(ctx context.Context) {
		_ = httpSrv.Shutdown(ctx)
	})
	sd.OnShutdown("api", func(context.Context) {
		_ = srv.Close()
	})

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case <-stopCh:
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	sd.Shutdown(shutdownCtx)
	// 存储在 HTTP 停止之后关闭
	a.Close()
	logger.Info("walletd stopped")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
