package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/utrading/utrading-trade-engine/config"
	"github.com/utrading/utrading-trade-engine/internal/adapters/binance"
	"github.com/utrading/utrading-trade-engine/internal/adapters/paper"
	"github.com/utrading/utrading-trade-engine/internal/engine"
	"github.com/utrading/utrading-trade-engine/internal/event"
	"github.com/utrading/utrading-trade-engine/internal/monitor"
	"github.com/utrading/utrading-trade-engine/internal/nats"
	"github.com/utrading/utrading-trade-engine/pkg/logger"
	"github.com/utrading/utrading-trade-engine/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("trade_engine service starting...")

	// 初始化指标
	monitor.InitMetrics()

	// 事件总线
	bus := event.NewBus(
		event.WithQueueSize(cfg.Engine.EventQueueSize),
		event.WithTimerInterval(cfg.Engine.TimerInterval),
	)
	bus.Start()

	// 状态聚合（挂总线处理器，必须在适配器连接之前）
	store := engine.NewStateStore(bus)

	// NATS 对外转发
	var publisher *nats.Publisher
	var publisherRef monitor.PublisherRef
	if cfg.NATS.Enabled {
		var err error
		publisher, err = nats.NewPublisher(cfg.NATS.Endpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("init nats publisher failed")
		}
		publisher.Attach(bus)
		publisherRef = publisher
	}

	// 适配器注册与连接
	registry := engine.NewRegistry(bus)
	registry.AddAdapter(paper.New, "paper")
	registry.AddAdapter(binance.New, "binance")

	for _, name := range registry.AdapterNames() {
		settings, ok := adapterSettings(registry, name)
		if !ok {
			logger.Info().Str("adapter", name).Msg("adapter not configured, skipping")
			continue
		}
		if err := registry.Connect(settings, name); err != nil {
			logger.Error().Err(err).Str("adapter", name).Msg("adapter connect failed")
		}
	}

	// 健康检查服务器
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthServer := monitor.NewHealthServer(cfg.Engine.HealthServerAddr, bus, registry, publisherRef)
	if err := healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	logger.Info().
		Str("health_addr", cfg.Engine.HealthServerAddr).
		Strs("adapters", registry.AdapterNames()).
		Msg("trade_engine service started successfully")

	// 优雅关闭：先断适配器，再停总线，最后撤对外面
	// main 阻塞在 done 上，保证整个收尾流程跑完才退出进程
	done := make(chan struct{})
	sigproc.GracefulShutdown(func(sig os.Signal) {
		defer close(done)

		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		cancel()
		registry.Close()
		bus.Stop()

		logger.Info().
			Int("orders", len(store.GetAllOrders())).
			Int("trades", len(store.GetAllTrades())).
			Msg("final state snapshot")

		if publisher != nil {
			publisher.Close()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Stop(shutdownCtx)

		config.Stop()

		logger.Info().Msg("trade_engine service stopped")
	})

	<-done
}

// adapterSettings 合并缺省配置；未在配置文件里出现的适配器不连接
func adapterSettings(registry *engine.Registry, name string) (map[string]any, bool) {
	cfg := config.Get()
	if _, ok := cfg.Adapters[name]; !ok {
		return nil, false
	}

	a := registry.GetAdapter(name)
	if a == nil {
		return nil, false
	}
	return config.AdapterSettings(name, a.DefaultSettings()), true
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
