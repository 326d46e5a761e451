package app

import (
	"log/slog"

	"github.com/oggyb/anon-relay/internal/cache"
	"github.com/oggyb/anon-relay/internal/matchmaker"
	"github.com/oggyb/anon-relay/internal/realtime"
	"github.com/oggyb/anon-relay/internal/repository"
)

// AppContext holds shared dependencies (store, hub, matchmaker, logger, etc.)
type AppContext struct {
	Store      repository.UserStore
	RedisCache *cache.RedisCache // nil when stats counters are disabled
	Hub        *realtime.Hub
	Matchmaker *matchmaker.Matchmaker
	Dispatcher *matchmaker.Dispatcher
	Logger     *slog.Logger
}

// New creates a new AppContext
func New(
	store repository.UserStore,
	rdb *cache.RedisCache,
	hub *realtime.Hub,
	mm *matchmaker.Matchmaker,
	d *matchmaker.Dispatcher,
	logger *slog.Logger,
) *AppContext {
	return &AppContext{
		Store:      store,
		RedisCache: rdb,
		Hub:        hub,
		Matchmaker: mm,
		Dispatcher: d,
		Logger:     logger,
	}
}
