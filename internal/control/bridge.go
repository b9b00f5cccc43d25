package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/vietddude/planbridge/internal/api"
	"github.com/vietddude/planbridge/internal/bot"
	"github.com/vietddude/planbridge/internal/core/config"
	"github.com/vietddude/planbridge/internal/core/links"
	"github.com/vietddude/planbridge/internal/indexing/health"
	"github.com/vietddude/planbridge/internal/indexing/history"
	"github.com/vietddude/planbridge/internal/indexing/notifier"
	"github.com/vietddude/planbridge/internal/indexing/scanner"
	"github.com/vietddude/planbridge/internal/indexing/throttle"
	"github.com/vietddude/planbridge/internal/indexing/watcher"
	"github.com/vietddude/planbridge/internal/infra/chain/flow"
	"github.com/vietddude/planbridge/internal/infra/notify"
	"github.com/vietddude/planbridge/internal/infra/notify/amqp"
	"github.com/vietddude/planbridge/internal/infra/notify/telegram"
	redisclient "github.com/vietddude/planbridge/internal/infra/redis"
)

const (
	dedupCacheSize   = 10000
	botVerifyTimeout = 10 * time.Second
)

// Bridge is the main application struct that manages the bridge lifecycle.
type Bridge struct {
	cfg          *config.AppConfig
	storage      *Storage
	links        *links.Store
	chain        *flow.Client
	redisClient  *redisclient.Client
	publisher    *amqp.Publisher
	watcher      *watcher.Watcher
	rescan       *watcher.RescanWorker
	poller       *bot.Poller
	healthServer *health.Server
	grpcServer   *health.GRPCServer
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a Bridge with all dependencies initialized.
func NewBridge(ctx context.Context, cfg *config.AppConfig) (*Bridge, error) {
	b := &Bridge{cfg: cfg, log: slog.Default().With("component", "bridge")}
	if err := b.init(ctx); err != nil {
		b.closeResources()
		return nil, err
	}
	return b, nil
}

func (b *Bridge) init(ctx context.Context) error {
	cfg := b.cfg

	// 1. Storage and the link index
	st, err := OpenStorage(ctx, cfg.Storage, true)
	if err != nil {
		return err
	}
	b.storage = st

	b.links, err = links.Open(ctx, st.Links)
	if err != nil {
		return fmt.Errorf("load wallet links: %w", err)
	}

	// 2. Chain access and scanning
	b.chain = flow.NewClient(cfg.Chain)
	head := throttle.NewHeadCache(b.chain, cfg.Chain.HeadCacheTTL)
	sc := scanner.New(b.chain, cfg.Scanner.Parallelism)
	hist := history.NewService(history.Config{
		EventType: cfg.Chain.EventType,
		ChunkSize: cfg.Scanner.ChunkSize,
		Lookback:  cfg.Scanner.Lookback,
	}, head, sc)

	// 3. Redis backs deduplication and the rescan queue when configured
	if cfg.Redis.URL != "" {
		b.redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			b.log.Warn("Failed to connect to Redis, rescan disabled", "error", err)
			b.redisClient = nil
		}
	}

	// 4. Telegram bot
	var tg *telegram.Client
	botUsername := cfg.Telegram.BotUsername
	if cfg.Telegram.Token != "" {
		tg = telegram.New(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Telegram.PollTimeout)
		meCtx, cancel := context.WithTimeout(ctx, botVerifyTimeout)
		me, err := tg.GetMe(meCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("verify telegram token: %w", err)
		}
		if botUsername == "" {
			botUsername = me.Username
		}
		b.log.Info("Telegram bot verified", "username", me.Username)
		router := bot.NewRouter(bot.Config{
			ExplorerURL:    cfg.Chain.ExplorerURL,
			WebAppURL:      cfg.Telegram.WebAppURL,
			HistoryLimit:   cfg.Telegram.HistoryLimit,
			CommandTimeout: cfg.Scanner.Timeout,
		}, b.links, b.chain, hist)
		b.poller = bot.NewPoller(tg, tg, router, cfg.Telegram.PollTimeout, cfg.Telegram.Workers)
	} else {
		b.log.Warn("telegram.token not set, command bot disabled")
	}

	// 5. Execution watcher
	if cfg.Watcher.Enabled {
		channel, err := b.channel(tg)
		if err != nil {
			return err
		}

		var dedup notifier.Dedup = notifier.NewMemoryDedup(dedupCacheSize, cfg.Watcher.DedupTTL)
		var queue watcher.RescanQueue
		if b.redisClient != nil {
			dedup = b.redisClient
			queue = b.redisClient
		}

		n := notifier.New(b.links, channel, dedup, cfg.Watcher.DedupTTL, cfg.Chain.ExplorerURL)
		network := string(cfg.Chain.Network)

		var ctrl *throttle.Controller
		if cfg.Watcher.MinPollInterval > 0 {
			tc := throttle.DefaultConfig()
			tc.MinInterval = cfg.Watcher.MinPollInterval
			tc.MaxInterval = max(cfg.Watcher.PollInterval, tc.MinInterval)
			tc.LagBurstThreshold = cfg.Scanner.ChunkSize
			ctrl = throttle.NewController(cfg.Watcher.PollInterval, tc)
		}
		b.watcher = watcher.New(watcher.Config{
			Network:      network,
			EventType:    cfg.Chain.EventType,
			ChunkSize:    cfg.Scanner.ChunkSize,
			Lookback:     cfg.Scanner.Lookback,
			MaxRange:     cfg.Watcher.MaxRange,
			PollInterval: cfg.Watcher.PollInterval,
			Concurrency:  cfg.Watcher.Concurrency,
			Throttle:     ctrl,
		}, head, sc, st.Cursors, n, queue)

		if queue != nil {
			b.rescan = watcher.NewRescanWorker(watcher.RescanConfig{
				Network:     network,
				EventType:   cfg.Chain.EventType,
				ChunkSize:   cfg.Scanner.ChunkSize,
				EmptySleep:  cfg.Watcher.RescanSleep,
				Concurrency: cfg.Watcher.Concurrency,
			}, queue, sc, n)
		}
	}

	// 6. Health, metrics and the dashboard API
	var depth health.QueueDepth
	if b.redisClient != nil {
		depth = b.redisClient
	}
	mon := health.NewMonitor(string(cfg.Chain.Network), head, st.Cursors, b.links, depth)
	dashboard := api.NewHandler(api.Config{
		BotUsername: botUsername,
		Timeout:     cfg.Scanner.Timeout,
	}, b.chain, hist, b.links)
	b.healthServer = health.NewServer(mon, cfg.Server.Port, func(r *mux.Router) {
		dashboard.Register(r)
	})
	if cfg.Server.GRPCPort > 0 {
		b.grpcServer = health.NewGRPCServer(mon, cfg.Server.GRPCPort)
	}
	return nil
}

func (b *Bridge) channel(tg *telegram.Client) (notify.Channel, error) {
	switch b.cfg.Notify.Channel {
	case amqp.ChannelName:
		pub, err := amqp.Dial(b.cfg.AMQP.URL, b.cfg.AMQP.Exchange)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		b.publisher = pub
		return pub, nil
	default:
		if tg == nil {
			return nil, errors.New("watcher needs telegram.token for the telegram channel")
		}
		return tg, nil
	}
}

// Start starts all components in the background.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	b.spawn("health server", func() error {
		if err := b.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if b.grpcServer != nil {
		b.spawn("grpc health server", func() error { return b.grpcServer.Start(ctx) })
	}

	if b.storage.DB != nil {
		b.storage.DB.StartMetricsCollector(ctx)
	}

	if b.watcher != nil {
		b.spawn("watcher", func() error { return b.watcher.Run(ctx) })
	}
	if b.rescan != nil {
		b.spawn("rescan worker", func() error { return b.rescan.Run(ctx) })
	}
	if b.poller != nil {
		b.spawn("command poller", func() error { return b.poller.Run(ctx) })
	}

	b.log.Info("Bridge started",
		"network", b.cfg.Chain.Network,
		"port", b.cfg.Server.Port,
		"links", b.links.Count(),
		"watcher", b.watcher != nil,
		"bot", b.poller != nil,
	)
	return nil
}

func (b *Bridge) spawn(name string, run func() error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := run(); err != nil {
			b.log.Error("Component failed", "name", name, "error", err)
		}
	}()
}

// Stop stops the bridge, waiting for in-flight work until ctx expires.
func (b *Bridge) Stop(ctx context.Context) error {
	b.log.Info("Stopping bridge...")

	if b.cancel != nil {
		b.cancel()
	}
	if b.grpcServer != nil {
		b.grpcServer.Stop()
	}
	err := b.healthServer.Stop(ctx)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.log.Warn("Timed out waiting for components to stop")
	}

	b.closeResources()
	return err
}

func (b *Bridge) closeResources() {
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			b.log.Warn("Failed to close AMQP publisher", "error", err)
		}
	}
	if b.redisClient != nil {
		if err := b.redisClient.Close(); err != nil {
			b.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if b.storage != nil {
		if err := b.storage.Close(); err != nil {
			b.log.Warn("Failed to close storage", "error", err)
		}
	}
}
