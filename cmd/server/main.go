package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/oggyb/anon-relay/internal/app"
	"github.com/oggyb/anon-relay/internal/cache"
	"github.com/oggyb/anon-relay/internal/config"
	"github.com/oggyb/anon-relay/internal/db"
	"github.com/oggyb/anon-relay/internal/events"
	"github.com/oggyb/anon-relay/internal/gateway"
	"github.com/oggyb/anon-relay/internal/logger"
	"github.com/oggyb/anon-relay/internal/matchmaker"
	"github.com/oggyb/anon-relay/internal/realtime"
	"github.com/oggyb/anon-relay/internal/repository"
	"github.com/oggyb/anon-relay/internal/server"
	"github.com/oggyb/anon-relay/internal/service/relay"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("relay stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("relay stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// Redis backs the redis store and the stats counters. Counters are optional
	// for the other drivers.
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		redisCache = cache.NewRedisCache(cfg)
		if err := redisCache.Ping(ctx); err != nil {
			if cfg.Store.Driver == config.DriverRedis {
				return err
			}
			log.Warn("redis unavailable, event counters disabled", "err", err)
			_ = redisCache.Close()
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	store, err := openStore(cfg, redisCache, log)
	if err != nil {
		return err
	}

	hub := realtime.NewHub()
	defer hub.Close()

	publishers := events.Multi{}
	opts := []matchmaker.Option{}
	if redisCache != nil {
		publishers = append(publishers, events.NewCounter(redisCache))
		opts = append(opts, matchmaker.WithCounters(redisCache))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publishers = append(publishers, kp)
		log.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	if len(publishers) > 0 {
		opts = append(opts, matchmaker.WithEvents(publishers))
	}

	mm := matchmaker.New(store, hub, log.With("module", "matchmaker"), opts...)
	dispatcher := matchmaker.NewDispatcher(mm, cfg.Bot.OperatorID, log.With("module", "dispatcher"))
	appCtx := app.New(store, redisCache, hub, mm, dispatcher, log)

	authHash := cfg.GRPC.AuthHash
	if authHash == "" {
		if authHash, err = server.HashCredential(cfg.Bot.Token); err != nil {
			return err
		}
	}
	auth, err := server.NewAuthenticator(authHash)
	if err != nil {
		return err
	}
	grpcServer := server.NewGRPCServer(auth, relay.NewRegistrar(appCtx))

	sockets := gateway.NewSocketGateway(hub, dispatcher, auth, log.With("module", "gateway"))
	router := gateway.NewRouter(sockets, cfg.IsDevelopment())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.StartGRPCServer(ctx, cfg, grpcServer, log)
	}()
	go func() {
		errCh <- gateway.Serve(ctx, cfg.HTTP.Addr, router, log)
	}()

	// the first server to return takes the other one down
	err = <-errCh
	cancel()
	// bridge streams only end once the hub closes
	hub.Close()
	if err2 := <-errCh; err == nil {
		err = err2
	}
	return err
}

func openStore(cfg *config.Config, redisCache *cache.RedisCache, log *slog.Logger) (repository.UserStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		database, err := db.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.IsDevelopment() {
			if err := db.SeedTestData(database); err != nil {
				log.Error("failed to seed", "err", err)
			}
		}
		log.Info("using mysql store")
		return repository.NewUserRepository(database), nil
	case config.DriverRedis:
		if redisCache == nil {
			return nil, errors.New("redis store selected but REDIS_ADDR is empty")
		}
		log.Info("using redis store", "addr", cfg.Redis.Addr)
		return repository.NewRedisUserStore(redisCache.Client), nil
	default:
		log.Warn("using in-memory store, state is lost on restart")
		return repository.NewMemoryUserStore(), nil
	}
}
