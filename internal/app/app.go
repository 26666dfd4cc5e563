// Package app assembles the service graph shared by the server binary and
// the operator CLI.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jgirmay/livemesh/pkg/cache"
	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/database"
	"github.com/jgirmay/livemesh/pkg/http/handlers"
	"github.com/jgirmay/livemesh/pkg/http/middleware"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/monitoring"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/services/connections"
	"github.com/jgirmay/livemesh/pkg/services/expiry"
	"github.com/jgirmay/livemesh/pkg/services/interactions"
	"github.com/jgirmay/livemesh/pkg/services/matchmaking"
	"github.com/jgirmay/livemesh/pkg/services/presence"
	"github.com/jgirmay/livemesh/pkg/services/rewards"
	"github.com/jgirmay/livemesh/pkg/services/rooms"
	wssvc "github.com/jgirmay/livemesh/pkg/services/websocket"
)

// Version is reported by /health.
var Version = "dev"

// App owns every long-lived dependency of the service.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	DB       *gorm.DB
	Registry *repository.Registry
	Metrics  *metrics.Metrics
	Auth     middleware.Authenticator

	Hub          *wssvc.Hub
	Presence     *presence.Service
	Rooms        *rooms.Service
	Matchmaking  *matchmaking.Service
	Interactions *interactions.Service
	Connections  *connections.Service
	Ledger       *rewards.Ledger
	Sweeper      *expiry.Sweeper

	redis  *redis.Client
	roster *cache.RedisRoster
	queue  *asynq.Client
	worker *rewards.Worker
}

// New opens the database and builds the services. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.Open(cfg.Database, cfg.Server.Env == "development")
	if err != nil {
		return nil, err
	}
	return NewWithDB(ctx, cfg, db, log)
}

// NewWithDB builds the services over an existing, migrated database handle.
func NewWithDB(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	if log == nil {
		log = logger.L()
	}
	a := &App{
		Config:  cfg,
		Log:     log,
		DB:      db,
		Metrics: metrics.New(),
		Auth:    middleware.HeaderAuthenticator{},
	}

	a.Registry = repository.NewRegistry(db)
	if err := a.Registry.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize repositories: %w", err)
	}

	var roster cache.Roster = cache.NewMemoryRoster(cfg.Redis.RosterTTL)
	if cfg.Redis.URL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.roster = cache.NewRedisRoster(client, cfg.Redis.RosterTTL)
		roster = a.roster
	}

	a.Hub = wssvc.NewHub(cfg.WebSocket, nil, a.Auth, a.Metrics, log.Named("hub"))
	a.Presence = presence.NewService(a.Registry.Presence, roster, a.Hub, a.Metrics, log.Named("presence"))
	a.Hub.UsePresence(a.Presence)

	a.Rooms = rooms.NewService(a.Registry.Rooms, a.Hub, log.Named("rooms"))
	a.Matchmaking = matchmaking.NewService(a.Registry.Matches, a.Registry.Profiles, a.Presence, a.Rooms,
		a.Hub, cfg.Matching, a.Metrics, log.Named("matchmaking"))
	a.Interactions = interactions.NewService(a.Registry.Matches, a.Hub, a.Metrics, log.Named("interactions"))
	a.Ledger = rewards.NewLedger(a.Registry.Rewards, a.Metrics, log.Named("rewards"))

	var awarder rewards.Awarder = a.Ledger
	if cfg.Redis.RewardsAsync && cfg.Redis.URL != "" {
		queue, err := rewards.NewClient(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		worker, err := rewards.NewWorker(cfg.Redis.URL, a.Ledger, 5, log)
		if err != nil {
			queue.Close()
			return nil, err
		}
		a.queue, a.worker = queue, worker
		awarder = rewards.NewQueueAwarder(queue, log.Named("rewards"))
	}
	a.Connections = connections.NewService(a.Registry.Connections, awarder, a.Hub,
		cfg.Connections, cfg.Rewards, a.Metrics, log.Named("connections"))

	a.Sweeper = expiry.NewSweeper(a.Registry.Matches, a.Registry.Connections, a.Presence,
		cfg.Presence.StaleAfter, cfg.Sweep.Interval, a.Metrics, log.Named("expiry"))
	return a, nil
}

// Router builds the HTTP surface: REST under /api plus /ws, /health and /metrics.
func (a *App) Router() (http.Handler, error) {
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(a.Log.Named("access")))
	router.Use(chimw.Recoverer)
	router.Use(middleware.Instrument(a.Metrics))

	sqlDB, err := a.DB.DB()
	if err != nil {
		return nil, err
	}
	var redisPing monitoring.Pinger
	if a.roster != nil {
		redisPing = a.roster
	}
	health := monitoring.NewHealthChecker(sqlDB, redisPing, a.Hub, Version)
	router.Get("/health", health.HandleHealth)
	router.Get("/health/ready", health.HandleReady)
	router.Handle("/metrics", a.Metrics.Handler())
	router.Get("/ws", a.Hub.ServeWS)

	handlers.RegisterLiveRoutes(router, handlers.NewLiveHandlers(handlers.Services{
		Presence:     a.Presence,
		Rooms:        a.Rooms,
		Matchmaking:  a.Matchmaking,
		Interactions: a.Interactions,
		Connections:  a.Connections,
		Rewards:      a.Ledger,
	}, a.Log.Named("http")), a.Auth)

	return router, nil
}

// Start launches the background loops: hub, sweeper and the reward worker.
func (a *App) Start(ctx context.Context) error {
	a.Hub.Start(ctx)
	a.Sweeper.Start(ctx)
	if a.worker != nil {
		if err := a.worker.Start(); err != nil {
			return fmt.Errorf("start reward worker: %w", err)
		}
	}
	return nil
}

// RewardsAsync reports whether grants go through the queue.
func (a *App) RewardsAsync() bool {
	return a.worker != nil
}

// Shutdown stops background work and releases connections. Safe to call
// when Start never ran.
func (a *App) Shutdown() {
	a.Sweeper.Stop()
	if a.worker != nil {
		a.worker.Shutdown()
	}
	a.Hub.Stop()
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.Log.Warn("close reward queue", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Log.Warn("close redis", zap.Error(err))
		}
	}
	if err := a.Registry.Close(); err != nil {
		a.Log.Warn("close database", zap.Error(err))
	}
}
