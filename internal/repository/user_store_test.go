package repository_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/anon-relay/internal/db"
	"github.com/oggyb/anon-relay/internal/domain"
	"github.com/oggyb/anon-relay/internal/repository"
)

// setupTestDB opens an isolated in-memory SQLite database with the schema applied.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	database, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

var stores = map[string]func(t *testing.T) repository.UserStore{
	"sqlite": func(t *testing.T) repository.UserStore { return repository.NewUserRepository(setupTestDB(t)) },
	"redis":  func(t *testing.T) repository.UserStore { return repository.NewRedisUserStore(setupRedis(t)) },
	"memory": func(t *testing.T) repository.UserStore { return repository.NewMemoryUserStore() },
}

func forEachStore(t *testing.T, f func(t *testing.T, s repository.UserStore)) {
	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			f(t, factory(t))
		})
	}
}

func register(t *testing.T, s repository.UserStore, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		created, err := s.Register(context.Background(), domain.Profile{
			ID:          id,
			DisplayName: fmt.Sprintf("user%d", id),
			Gender:      domain.GenderFemale,
		})
		require.NoError(t, err)
		require.True(t, created)
	}
}

func TestRegisterCreatesIdleUserOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1)

		u, err := s.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "user1", u.DisplayName)
		assert.Equal(t, domain.GenderFemale, u.Gender)
		assert.True(t, u.State.IsIdle())

		// existing users bypass registration
		created, err := s.Register(ctx, domain.Profile{ID: 1, DisplayName: "other", Gender: domain.GenderMale})
		require.NoError(t, err)
		assert.False(t, created)

		u, err = s.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "user1", u.DisplayName)
	})
}

func TestGetMissingUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		_, err := s.Get(context.Background(), 404)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		err = s.SetState(context.Background(), 404, domain.Searching())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestSetStateWritesCoupledFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1, 2)

		require.NoError(t, s.SetState(ctx, 1, domain.Chatting(2)))
		u, err := s.Get(ctx, 1)
		require.NoError(t, err)
		assert.True(t, u.PairedWith(2))

		require.NoError(t, s.SetState(ctx, 1, domain.Searching()))
		u, err = s.Get(ctx, 1)
		require.NoError(t, err)
		assert.True(t, u.State.IsSearching())
		assert.Nil(t, u.State.PartnerPtr())
	})
}

func TestFindOneSearching(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1, 2, 3)

		_, err := s.FindOneSearching(ctx, 1)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		require.NoError(t, s.SetState(ctx, 1, domain.Searching()))
		_, err = s.FindOneSearching(ctx, 1)
		assert.ErrorIs(t, err, repository.ErrNotFound, "caller is never its own candidate")

		require.NoError(t, s.SetState(ctx, 3, domain.Searching()))
		u, err := s.FindOneSearching(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), u.ID)

		u, err = s.FindOneSearching(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), u.ID)
	})
}

func TestPairAndUnpair(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1, 2)
		require.NoError(t, s.SetState(ctx, 1, domain.Searching()))
		require.NoError(t, s.SetState(ctx, 2, domain.Searching()))

		require.NoError(t, s.Pair(ctx, 2, 1))

		a, _ := s.Get(ctx, 1)
		b, _ := s.Get(ctx, 2)
		assert.True(t, a.PairedWith(2))
		assert.True(t, b.PairedWith(1))

		// neither side is searching any more
		_, err := s.FindOneSearching(ctx, 0)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		require.NoError(t, s.Unpair(ctx, 1, 2))
		a, _ = s.Get(ctx, 1)
		b, _ = s.Get(ctx, 2)
		assert.True(t, a.State.IsIdle())
		assert.True(t, b.State.IsIdle())
		assert.Nil(t, a.State.PartnerPtr())
		assert.Nil(t, b.State.PartnerPtr())
	})
}

func TestPairRequiresBothSearching(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1, 2)
		require.NoError(t, s.SetState(ctx, 1, domain.Searching()))

		err := s.Pair(ctx, 1, 2)
		assert.ErrorIs(t, err, repository.ErrConflict)

		// rolled back: caller still searching, other side untouched
		a, _ := s.Get(ctx, 1)
		b, _ := s.Get(ctx, 2)
		assert.True(t, a.State.IsSearching())
		assert.True(t, b.State.IsIdle())

		assert.ErrorIs(t, s.Pair(ctx, 1, 1), repository.ErrConflict)
		assert.ErrorIs(t, s.Pair(ctx, 1, 99), repository.ErrConflict)
	})
}

func TestUnpairToleratesAbsentPartner(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1)
		require.NoError(t, s.SetState(ctx, 1, domain.Chatting(77)))

		require.NoError(t, s.Unpair(ctx, 1, 0))
		a, _ := s.Get(ctx, 1)
		assert.True(t, a.State.IsIdle())

		require.NoError(t, s.SetState(ctx, 1, domain.Chatting(77)))
		require.NoError(t, s.Unpair(ctx, 1, 77))
		a, _ = s.Get(ctx, 1)
		assert.True(t, a.State.IsIdle())
	})
}

func TestCountByStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1, 2, 3, 4)
		require.NoError(t, s.SetState(ctx, 1, domain.Searching()))
		require.NoError(t, s.SetState(ctx, 2, domain.Searching()))
		require.NoError(t, s.SetState(ctx, 3, domain.Searching()))
		require.NoError(t, s.Pair(ctx, 1, 2))

		counts, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[domain.StatusIdle])
		assert.Equal(t, int64(1), counts[domain.StatusSearching])
		assert.Equal(t, int64(2), counts[domain.StatusChatting])
	})
}

// TestPairConsumesSearcherOnce races many searchers for one waiting user.
// Exactly one pairing may win.
func TestPairConsumesSearcherOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		const callers = 8
		register(t, s, 100)
		require.NoError(t, s.SetState(ctx, 100, domain.Searching()))
		for i := int64(1); i <= callers; i++ {
			register(t, s, i)
			require.NoError(t, s.SetState(ctx, i, domain.Searching()))
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := int64(1); i <= callers; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				err := s.Pair(ctx, id, 100)
				if err == nil {
					wins.Add(1)
					return
				}
				assert.ErrorIs(t, err, repository.ErrConflict)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())

		target, err := s.Get(ctx, 100)
		require.NoError(t, err)
		partner, ok := target.State.Partner()
		require.True(t, ok)

		winner, err := s.Get(ctx, partner)
		require.NoError(t, err)
		assert.True(t, winner.PairedWith(100))

		counts, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts[domain.StatusChatting])
		assert.Equal(t, int64(callers-1), counts[domain.StatusSearching])
	})
}

func TestSetStateUnlessChatting(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1, 2)

		require.NoError(t, s.SetStateUnlessChatting(ctx, 1, domain.Searching()))
		require.NoError(t, s.SetStateUnlessChatting(ctx, 2, domain.Searching()))
		u, _ := s.Get(ctx, 1)
		assert.True(t, u.State.IsSearching())

		require.NoError(t, s.Pair(ctx, 1, 2))
		err := s.SetStateUnlessChatting(ctx, 1, domain.Searching())
		assert.ErrorIs(t, err, repository.ErrConflict)
		err = s.SetStateUnlessChatting(ctx, 2, domain.Idle())
		assert.ErrorIs(t, err, repository.ErrConflict)
		u, _ = s.Get(ctx, 1)
		assert.True(t, u.PairedWith(2), "pairing survives")

		assert.ErrorIs(t, s.SetStateUnlessChatting(ctx, 99, domain.Idle()), repository.ErrNotFound)
		assert.Error(t, s.SetStateUnlessChatting(ctx, 1, domain.Chatting(2)))
	})
}

func TestUnpairLeavesNewPairAlone(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.UserStore) {
		ctx := context.Background()
		register(t, s, 1, 2, 3)
		require.NoError(t, s.SetState(ctx, 1, domain.Chatting(2)))
		require.NoError(t, s.SetState(ctx, 2, domain.Searching()))
		require.NoError(t, s.SetState(ctx, 3, domain.Searching()))
		require.NoError(t, s.Pair(ctx, 2, 3))

		// 1 still points at 2, but 2 has moved on to 3
		require.NoError(t, s.Unpair(ctx, 1, 2))

		a, _ := s.Get(ctx, 1)
		b, _ := s.Get(ctx, 2)
		c, _ := s.Get(ctx, 3)
		assert.True(t, a.State.IsIdle())
		assert.True(t, b.PairedWith(3))
		assert.True(t, c.PairedWith(2))
	})
}
