package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kakcer47/BotTG/internal/config"
	tginfra "github.com/kakcer47/BotTG/internal/infra/telegram"
	"github.com/kakcer47/BotTG/internal/pkg/keylock"
	"github.com/kakcer47/BotTG/internal/repo/memory"
	pgrepo "github.com/kakcer47/BotTG/internal/repo/postgres"
	redrepo "github.com/kakcer47/BotTG/internal/repo/redis"
	"github.com/kakcer47/BotTG/internal/services/broadcast"
	"github.com/kakcer47/BotTG/internal/services/cache"
	"github.com/kakcer47/BotTG/internal/services/market"
	modsvc "github.com/kakcer47/BotTG/internal/services/moderation"
	"github.com/kakcer47/BotTG/internal/services/quota"
	ratesvc "github.com/kakcer47/BotTG/internal/services/rate"
	"github.com/kakcer47/BotTG/internal/transport/ws"
)

// persistentStore is everything the marketplace needs from storage. Both the
// Postgres store and the in-process store satisfy it.
type persistentStore interface {
	market.Store
	modsvc.Store
	quota.DailyStore
	cache.PostLoader
	cache.UserLoader
}

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	hub        *broadcast.Hub
	moderation *moderationBot
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var (
		pool  *pgxpool.Pool
		store persistentStore
	)
	if strings.TrimSpace(cfg.Postgres.DSN) != "" {
		p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := pgrepo.EnsureSchema(ctx, p); err != nil {
			p.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		pool = p
		store = pgrepo.NewStore(p)
	} else {
		log.Warn("postgres dsn is empty, using in-process store")
		store = memory.New()
	}

	var (
		redisClient *goredis.Client
		rateStore   ratesvc.WindowStore
	)
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		c, err := redrepo.NewClient(ctx, redrepo.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("redis init failed, using in-process rate windows", zap.Error(err))
			rateStore = memory.NewRateStore()
		} else {
			redisClient = c
			rateStore = redrepo.NewRateRepo(c)
		}
	} else {
		rateStore = memory.NewRateStore()
	}

	var bot *tginfra.Bot
	if strings.TrimSpace(cfg.Bot.Token) != "" {
		b, err := tginfra.NewBot(cfg.Bot.Token, cfg.Bot.PollTimeout)
		if err != nil {
			closeStores(pool, redisClient)
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
		bot = b
	} else {
		log.Warn("BOT_TOKEN is empty, moderation bot and user notifications disabled")
	}

	var notifier modsvc.Notifier
	moderationEnabled := false
	if bot != nil {
		notifier = tginfra.NewNotifier(bot, cfg.Bot.ModerationChatID)
		moderationEnabled = cfg.Bot.ModerationChatID != 0
	}

	entityCache, err := cache.New(store, store, cache.Config{
		PostCapacity: cfg.Market.PostCacheSize,
		UserCapacity: cfg.Market.UserCacheSize,
	})
	if err != nil {
		closeStores(pool, redisClient)
		return nil, fmt.Errorf("init cache: %w", err)
	}

	hub := broadcast.NewHub(cfg.WS.SendBuffer, log.Named("hub"))
	postLocks := keylock.New()
	tracker := quota.NewTracker(store, entityCache, quota.Config{Timezone: cfg.Market.Timezone}, log.Named("quota"))
	gate := modsvc.NewGate(store, entityCache, hub, notifier, postLocks, modsvc.Config{
		ModerationEnabled:  moderationEnabled,
		ComplaintThreshold: cfg.Market.ComplaintThreshold,
	}, log.Named("moderation"))
	marketService := market.NewService(store, entityCache, tracker, gate, postLocks, market.Config{
		DailyPostLimit:  cfg.Market.DailyPostLimit,
		PageSizeDefault: cfg.Market.PageSizeDefault,
		PageSizeMax:     cfg.Market.PageSizeMax,
		Timezone:        cfg.Market.Timezone,
	}, log.Named("market"))
	rateLimiter := ratesvc.NewLimiter(rateStore, cfg.Rate.RequestsPerMinute, cfg.Rate.RequestsPer10Sec)

	wsHandler := ws.NewHandler(marketService, hub, rateLimiter, ws.Config{
		WriteTimeout:    cfg.WS.WriteTimeout,
		PongWait:        cfg.WS.PongWait,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		AllowedOrigins:  cfg.WS.AllowedOrigins,
	}, log.Named("ws"))

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		Market:   marketService,
		Cache:    entityCache,
		Hub:      hub,
		WS:       wsHandler,
		Postgres: pool,
		Redis:    redisClient,
		Logger:   log,
		Config:   cfg,
	})

	var modBot *moderationBot
	if bot != nil {
		modBot = newModerationBot(bot, marketService, gate, cfg.Bot, log.Named("bot"))
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		hub:        hub,
		moderation: modBot,
		httpRouter: r,
	}, nil
}

// Run serves HTTP and polls the moderation bot until ctx is done or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.moderation != nil {
		g.Go(func() error {
			return a.moderation.Run(gctx)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	a.hub.Close()
	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	closeStores(a.postgres, nil)
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}

func closeStores(pool *pgxpool.Pool, redisClient *goredis.Client) {
	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
