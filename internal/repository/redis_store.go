package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/anon-relay/internal/domain"
)

const searchingSetKey = "users:searching"

// RedisUserStore keeps one hash per user (user:<id>) and the set of searching
// ids. Multi-key writes run as WATCH/MULTI transactions; a lost race surfaces
// as ErrConflict.
type RedisUserStore struct {
	client *redis.Client
	now    func() time.Time
}

var _ UserStore = (*RedisUserStore)(nil)

func NewRedisUserStore(client *redis.Client) *RedisUserStore {
	return &RedisUserStore{client: client, now: time.Now}
}

// KeyForUser generates the hash key of a user record.
func KeyForUser(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

func (s *RedisUserStore) Get(ctx context.Context, id int64) (*domain.User, error) {
	fields, err := s.client.HGetAll(ctx, KeyForUser(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeUser(id, fields), nil
}

func (s *RedisUserStore) Register(ctx context.Context, p domain.Profile) (bool, error) {
	key := KeyForUser(p.ID)
	gender := p.Gender
	if gender == "" {
		gender = domain.GenderUnspecified
	}

	created := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil || n > 0 {
			return err
		}
		now := s.now().UnixMilli()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]any{
				"name":       p.DisplayName,
				"gender":     string(gender),
				"status":     string(domain.StatusIdle),
				"partner":    "",
				"created_at": now,
				"updated_at": now,
			})
			return nil
		})
		if err == nil {
			created = true
		}
		return err
	}, key)
	return created, mapTxErr(err)
}

func (s *RedisUserStore) SetState(ctx context.Context, id int64, st domain.State) error {
	key := KeyForUser(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeState(ctx, pipe, id, st)
			return nil
		})
		return err
	}, key)
	return mapTxErr(err)
}

// SetStateUnlessChatting watches the hash and writes only while the status is
// not chatting.
func (s *RedisUserStore) SetStateUnlessChatting(ctx context.Context, id int64, st domain.State) error {
	if st.IsChatting() {
		return errEnterChatting
	}
	key := KeyForUser(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		status, err := tx.HGet(ctx, key, "status").Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if domain.Status(status) == domain.StatusChatting {
			return fmt.Errorf("user %d is chatting: %w", id, ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeState(ctx, pipe, id, st)
			return nil
		})
		return err
	}, key)
	return mapTxErr(err)
}

// FindOneSearching returns the lowest searching id other than excluding.
func (s *RedisUserStore) FindOneSearching(ctx context.Context, excluding int64) (*domain.User, error) {
	members, err := s.client.SMembers(ctx, searchingSetKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil && id != excluding {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		u, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if u.State.IsSearching() {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

// Pair watches both hashes, checks both are searching, then writes both sides
// in one MULTI block.
func (s *RedisUserStore) Pair(ctx context.Context, a, b int64) error {
	if a == b {
		return fmt.Errorf("pair %d with itself: %w", a, ErrConflict)
	}
	ka, kb := KeyForUser(a), KeyForUser(b)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, k := range []string{ka, kb} {
			status, err := tx.HGet(ctx, k, "status").Result()
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%s missing: %w", k, ErrConflict)
			}
			if err != nil {
				return err
			}
			if domain.Status(status) != domain.StatusSearching {
				return fmt.Errorf("%s no longer searching: %w", k, ErrConflict)
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeState(ctx, pipe, a, domain.Chatting(b))
			s.writeState(ctx, pipe, b, domain.Chatting(a))
			return nil
		})
		return err
	}, ka, kb)
	return mapTxErr(err)
}

// Unpair watches both hashes and resets each one that has no partner or
// points at the other side.
func (s *RedisUserStore) Unpair(ctx context.Context, a, b int64) error {
	single := b == 0 || b == a
	ids := []int64{a}
	if !single {
		ids = append(ids, b)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = KeyForUser(id)
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		reset := make([]int64, 0, len(ids))
		for i, k := range keys {
			fields, err := tx.HMGet(ctx, k, "status", "partner").Result()
			if err != nil {
				return err
			}
			if fields[0] == nil {
				continue
			}
			if !single {
				other := strconv.FormatInt(ids[1-i], 10)
				if partner, _ := fields[1].(string); partner != "" && partner != other {
					continue
				}
			}
			reset = append(reset, ids[i])
		}
		if len(reset) == 0 {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range reset {
				s.writeState(ctx, pipe, id, domain.Idle())
			}
			return nil
		})
		return err
	}, keys...)
	return mapTxErr(err)
}

func (s *RedisUserStore) Count(ctx context.Context) (map[domain.Status]int64, error) {
	out := map[domain.Status]int64{
		domain.StatusIdle:      0,
		domain.StatusSearching: 0,
		domain.StatusChatting:  0,
	}
	iter := s.client.Scan(ctx, 0, "user:*", 100).Iterator()
	for iter.Next(ctx) {
		status, err := s.client.HGet(ctx, iter.Val(), "status").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[domain.Status(status)]++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisUserStore) writeState(ctx context.Context, pipe redis.Pipeliner, id int64, st domain.State) {
	partner := ""
	if p, ok := st.Partner(); ok {
		partner = strconv.FormatInt(p, 10)
	}
	pipe.HSet(ctx, KeyForUser(id), map[string]any{
		"status":     string(st.Status()),
		"partner":    partner,
		"updated_at": s.now().UnixMilli(),
	})
	member := strconv.FormatInt(id, 10)
	if st.IsSearching() {
		pipe.SAdd(ctx, searchingSetKey, member)
	} else {
		pipe.SRem(ctx, searchingSetKey, member)
	}
}

func decodeUser(id int64, f map[string]string) *domain.User {
	var partner *int64
	if p, err := strconv.ParseInt(f["partner"], 10, 64); err == nil {
		partner = &p
	}
	u := &domain.User{
		ID:          id,
		DisplayName: f["name"],
		Gender:      domain.Gender(f["gender"]),
		State:       domain.StateFrom(domain.Status(f["status"]), partner),
	}
	if ms, err := strconv.ParseInt(f["created_at"], 10, 64); err == nil {
		u.CreatedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(f["updated_at"], 10, 64); err == nil {
		u.UpdatedAt = time.UnixMilli(ms)
	}
	return u
}

func mapTxErr(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("watched key changed: %w", ErrConflict)
	}
	return err
}
