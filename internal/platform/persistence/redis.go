package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/10allday-services/autopush-endpoint/pkg/push"
)

// redisClient defines the interface we need from go-redis.
type redisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// removeNodeScript clears node_id only while it still matches the observed
// node and connected_at guard. A mismatch means a reconnection won the race,
// which is a no-op success.
const removeNodeScript = `
local node = redis.call('HGET', KEYS[1], 'node_id')
local seen = redis.call('HGET', KEYS[1], 'connected_at')
if node == ARGV[1] and seen == ARGV[2] then
  redis.call('HDEL', KEYS[1], 'node_id')
  return 1
end
return 0`

// RedisStorage implements push.Storage using Redis. User routing records are
// hashes at `user:{uaid}`; pending messages are JSON entries on a list at
// `messages:{partition}:{uaid}`.
type RedisStorage struct {
	client       redisClient
	currentMonth string
	logger       zerolog.Logger
}

// NewRedisStorage is the constructor for the RedisStorage.
func NewRedisStorage(client redisClient, currentMonth string, logger zerolog.Logger) (*RedisStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if currentMonth == "" {
		return nil, fmt.Errorf("current message partition cannot be empty")
	}
	return &RedisStorage{
		client:       client,
		currentMonth: currentMonth,
		logger:       logger.With().Str("component", "redis_storage").Logger(),
	}, nil
}

func userKey(uaid uuid.UUID) string {
	return "user:" + uaid.String()
}

func messageKey(partition string, uaid uuid.UUID) string {
	return "messages:" + partition + ":" + uaid.String()
}

// GetUser reads the user hash. Redis returns an empty map for a missing
// key, which maps to push.ErrUserNotFound.
func (s *RedisStorage) GetUser(ctx context.Context, uaid uuid.UUID) (*push.User, error) {
	fields, err := s.client.HGetAll(ctx, userKey(uaid)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", uaid, err)
	}
	if len(fields) == 0 {
		return nil, push.ErrUserNotFound
	}

	user := &push.User{
		UAID:         uaid,
		NodeID:       fields["node_id"],
		CurrentMonth: fields["current_month"],
	}
	if raw, ok := fields["connected_at"]; ok {
		connectedAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt connected_at for user %s: %w", uaid, err)
		}
		user.ConnectedAt = connectedAt
	}
	return user, nil
}

// StoreMessage pushes the message onto the user's pending list and bounds
// the list's lifetime. The list TTL is the maximum message TTL rather than
// this message's: a short-lived message must not expire longer-lived
// entries sharing the list.
func (s *RedisStorage) StoreMessage(ctx context.Context, uaid uuid.UUID, partition string, msg *push.StoredMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", msg.MessageID, err)
	}

	key := messageKey(partition, uaid)
	if err := s.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("failed to lpush message %s: %w", msg.MessageID, err)
	}
	if err := s.client.Expire(ctx, key, time.Duration(push.MaxTTL)*time.Second).Err(); err != nil {
		return fmt.Errorf("failed to set expiry on %s: %w", key, err)
	}

	s.logger.Debug().
		Str("uaid", uaid.String()).
		Str("key", key).
		Str("message_id", msg.MessageID).
		Msg("Stored pending message")
	return nil
}

// RemoveNodeID runs the compare-and-clear script so the check and the
// delete are atomic on the server.
func (s *RedisStorage) RemoveNodeID(ctx context.Context, uaid uuid.UUID, nodeID string, connectedAt int64) error {
	cleared, err := s.client.Eval(ctx, removeNodeScript,
		[]string{userKey(uaid)},
		nodeID, strconv.FormatInt(connectedAt, 10),
	).Result()
	if err != nil {
		return fmt.Errorf("failed to remove node id for user %s: %w", uaid, err)
	}

	if n, ok := cleared.(int64); ok && n == 1 {
		s.logger.Debug().Str("uaid", uaid.String()).Str("node_id", nodeID).Msg("Cleared stale node pointer")
	}
	return nil
}

// CurrentPartition returns the store-wide default message partition.
func (s *RedisStorage) CurrentPartition() string {
	return s.currentMonth
}
