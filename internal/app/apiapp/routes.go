package apiapp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/config"
	"github.com/kakcer47/BotTG/internal/services/broadcast"
	"github.com/kakcer47/BotTG/internal/services/cache"
	"github.com/kakcer47/BotTG/internal/services/market"
	"github.com/kakcer47/BotTG/internal/transport/http/handlers"
)

type Dependencies struct {
	Market   *market.Service
	Cache    *cache.Cache
	Hub      *broadcast.Hub
	WS       http.Handler
	Postgres *pgxpool.Pool
	Redis    *goredis.Client
	Logger   *zap.Logger
	Config   config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	if deps.Postgres != nil {
		healthHandler.Attach("postgres", deps.Postgres.Ping)
	}
	if deps.Redis != nil {
		client := deps.Redis
		healthHandler.Attach("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	statsHandler := handlers.NewMarketStatsHandler(deps.Hub, deps.Cache)
	postsHandler := handlers.NewPostsHandler(deps.Market, deps.Cache)
	staticHandler := handlers.NewStaticHandler(deps.Config.StaticDir)

	// Upgraded connections outlive any request timeout.
	if deps.WS != nil {
		r.Handle("/ws", deps.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Get("/healthz", healthHandler.Get)
		r.Get("/health", healthHandler.Get)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/stats", statsHandler.Handle)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/posts", postsHandler.List)
			r.Get("/posts/{id}", postsHandler.Get)
		})
	})

	r.NotFound(staticHandler.ServeHTTP)
}
