package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "active_sessions"

func sessionKey(id string) string { return "session:" + id }
func turnsKey(id string) string   { return "session:" + id + ":turns" }
func audioKey(id string, index int) string {
	return "session:" + id + ":audio:" + strconv.Itoa(index)
}

// RedisStore keeps a hash per session, a list of turn records and one key
// per turn of raw audio. Every key expires after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects and pings. Callers fall back to Nop on error.
func NewRedisStore(addr, password string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Register records a new session as active.
func (s *RedisStore) Register(ctx context.Context, meta Meta) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(meta.ID), map[string]interface{}{
			"started_at":    meta.StartedAt.Format(time.RFC3339),
			"last_activity": meta.StartedAt.Format(time.RFC3339),
			"model":         meta.Model,
			"voice":         meta.Voice,
			"status":        "active",
			"turns":         0,
		})
		pipe.SAdd(ctx, activeSessionsKey, meta.ID)
		pipe.Expire(ctx, sessionKey(meta.ID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register session %s: %w", meta.ID, err)
	}
	return nil
}

// SaveTurn appends the turn record and stores its audio.
func (s *RedisStore) SaveTurn(ctx context.Context, turn Turn) error {
	turn.AudioBytes = len(turn.Audio)
	record, err := sonic.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, turnsKey(turn.SessionID), record)
		pipe.Expire(ctx, turnsKey(turn.SessionID), s.ttl)
		if len(turn.Audio) > 0 {
			pipe.Set(ctx, audioKey(turn.SessionID, turn.Index), turn.Audio, s.ttl)
		}
		pipe.HSet(ctx, sessionKey(turn.SessionID), "last_activity", turn.CompletedAt.Format(time.RFC3339))
		pipe.HIncrBy(ctx, sessionKey(turn.SessionID), "turns", 1)
		pipe.Expire(ctx, sessionKey(turn.SessionID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save turn %d of %s: %w", turn.Index, turn.SessionID, err)
	}
	return nil
}

// Turns returns the recorded turns of a session in order, audio included.
func (s *RedisStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	records, err := s.client.LRange(ctx, turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load turns of %s: %w", sessionID, err)
	}

	turns := make([]Turn, 0, len(records))
	for _, rec := range records {
		var t Turn
		if err := sonic.UnmarshalString(rec, &t); err != nil {
			return nil, fmt.Errorf("decode turn of %s: %w", sessionID, err)
		}
		if t.AudioBytes > 0 {
			data, err := s.client.Get(ctx, audioKey(sessionID, t.Index)).Bytes()
			if err != nil && err != redis.Nil {
				return nil, fmt.Errorf("load audio of turn %d: %w", t.Index, err)
			}
			t.Audio = data
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// End marks the session closed and removes it from the active set.
func (s *RedisStore) End(ctx context.Context, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(sessionID), "status", "closed")
		pipe.SRem(ctx, activeSessionsKey, sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	return nil
}

// ActiveSessions lists registered sessions that have not ended.
func (s *RedisStore) ActiveSessions(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, activeSessionsKey).Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
