package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
)

var (
	redisSpamPrefix     = "sentinel/spam/"
	redisTimeoutsKey    = "sentinel/spam_timeouts"
	redisEventsPrefix   = "sentinel/events/"
	redisSettingsPrefix = "sentinel/settings/"
)

// redisMaxEvents caps each guild's event list
const redisMaxEvents = 10_000

// RedisStore is a Redis implementation of Store. Spam state lives in one
// hash per member, pending timeouts in a sorted set scored by expiry
// milliseconds and events in a capped list per guild.
type RedisStore struct {
	Client *redis.Client
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis
func NewRedisStore(redisURL string, pool Pool, logger *zap.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if pool.MaxConnections > 0 {
		opt.PoolSize = pool.MaxConnections
	}
	if pool.ConnMaxIdleTime > 0 {
		opt.ConnMaxIdleTime = pool.ConnMaxIdleTime
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to Redis store", zap.String("addr", opt.Addr))
	return &RedisStore{Client: rdb, logger: logger}, nil
}

func redisSpamKey(guildID, userID string) string {
	return redisSpamPrefix + guildID + "/" + userID
}

func redisTimeoutMember(guildID, userID string) string {
	return guildID + "/" + userID
}

// ReadSpamState returns the stored state or a zero state
func (s *RedisStore) ReadSpamState(ctx context.Context, guildID, userID string) (*core.SpamState, error) {
	fields, err := s.Client.HGetAll(ctx, redisSpamKey(guildID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read spam state: %w", err)
	}
	return parseSpamHash(guildID, userID, fields)
}

func parseSpamHash(guildID, userID string, fields map[string]string) (*core.SpamState, error) {
	state := zeroState(guildID, userID)
	if len(fields) == 0 {
		return state, nil
	}
	if v, ok := fields["warning_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt warning_count %q: %w", v, err)
		}
		state.WarningCount = n
	}
	var err error
	if state.LastWarning, err = parseNanosField(fields["last_warning"]); err != nil {
		return nil, err
	}
	if state.TimeoutExpiry, err = parseNanosField(fields["timeout_expiry"]); err != nil {
		return nil, err
	}
	return state, nil
}

func parseNanosField(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt timestamp %q: %w", v, err)
	}
	t := time.Unix(0, n).UTC()
	return &t, nil
}

func formatNanosField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

// UpsertSpamState stores the state and keeps the timeout index in step
func (s *RedisStore) UpsertSpamState(ctx context.Context, state *core.SpamState) error {
	key := redisSpamKey(state.GuildID, state.UserID)
	member := redisTimeoutMember(state.GuildID, state.UserID)

	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"warning_count", state.WarningCount,
			"last_warning", formatNanosField(state.LastWarning),
			"timeout_expiry", formatNanosField(state.TimeoutExpiry))
		if state.TimeoutExpiry != nil {
			pipe.ZAdd(ctx, redisTimeoutsKey, redis.Z{
				Score:  float64(state.TimeoutExpiry.UnixMilli()),
				Member: member,
			})
		} else {
			pipe.ZRem(ctx, redisTimeoutsKey, member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert spam state: %w", err)
	}
	return nil
}

// ExpiredTimeouts lists states whose timeout has passed
func (s *RedisStore) ExpiredTimeouts(ctx context.Context, now time.Time) ([]*core.SpamState, error) {
	members, err := s.Client.ZRangeByScore(ctx, redisTimeoutsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query expired timeouts: %w", err)
	}

	var expired []*core.SpamState
	for _, member := range members {
		guildID, userID, ok := strings.Cut(member, "/")
		if !ok {
			s.logger.Warn("Dropping malformed timeout index entry", zap.String("member", member))
			s.Client.ZRem(ctx, redisTimeoutsKey, member)
			continue
		}
		state, err := s.ReadSpamState(ctx, guildID, userID)
		if err != nil {
			return nil, err
		}
		// The index is millisecond-granular, the hash is authoritative
		if state.TimeoutExpiry == nil || state.TimeoutExpiry.After(now) {
			continue
		}
		expired = append(expired, state)
	}
	return expired, nil
}

// RecordEvent pushes an event onto the guild's capped list
func (s *RedisStore) RecordEvent(ctx context.Context, event *core.SecurityEvent) error {
	prepareEvent(event)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode security event: %w", err)
	}

	key := redisEventsPrefix + event.GuildID
	multi := s.Client.Pipeline()
	multi.LPush(ctx, key, payload)
	multi.LTrim(ctx, key, 0, redisMaxEvents-1)
	if _, err := multi.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record security event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events of a guild, newest first
func (s *RedisStore) RecentEvents(ctx context.Context, guildID string, limit int) ([]*core.SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := s.Client.LRange(ctx, redisEventsPrefix+guildID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read security events: %w", err)
	}
	events := make([]*core.SecurityEvent, 0, len(raw))
	for _, item := range raw {
		var e core.SecurityEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.logger.Warn("Skipping undecodable security event", zap.Error(err))
			continue
		}
		events = append(events, &e)
	}
	return events, nil
}

// GetSetting returns a stored guild setting
func (s *RedisStore) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	val, err := s.Client.HGet(ctx, redisSettingsPrefix+guildID, key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to read guild setting: %w", err)
	}
	return val, true, nil
}

// SetSetting stores a guild setting
func (s *RedisStore) SetSetting(ctx context.Context, guildID, key, value string) error {
	if err := s.Client.HSet(ctx, redisSettingsPrefix+guildID, key, value).Err(); err != nil {
		return fmt.Errorf("failed to write guild setting: %w", err)
	}
	return nil
}

// Stop closes the Redis client
func (s *RedisStore) Stop() {
	if err := s.Client.Close(); err != nil {
		s.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
