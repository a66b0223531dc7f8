package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

const (
	lockKeyPrefix   = "lock:"
	draftKeyPrefix  = "draft:"
	chatKeyPrefix   = "chat:"
	updateKeyPrefix = "update:"

	updateKeyTTL  = 24 * time.Hour
	lockRetryWait = 25 * time.Millisecond
)

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end

return 0
`)

type RedisAdapter struct {
	client     *redis.Client
	lockTTL    time.Duration
	sessionTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, lockTTL, sessionTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, lockTTL: lockTTL, sessionTTL: sessionTTL}
}

// Lock takes a token-owned key with SET NX PX, polling until ctx is done.
// The TTL bounds how long a crashed holder can block others.
func (r *RedisAdapter) Lock(ctx context.Context, key string) (func(), error) {
	key = lockKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, domain.StorageFailure("acquire lock", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		releaseLockScript.Run(ctx, r.client, []string{key}, token)
	}, nil
}

func (r *RedisAdapter) GetDraft(ctx context.Context, userID int64) (domain.Draft, bool, error) {
	var d domain.Draft
	raw, err := r.client.Get(ctx, fmt.Sprintf("%s%d", draftKeyPrefix, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return d, false, nil
	}
	if err != nil {
		return d, false, domain.StorageFailure("get draft", err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, false, domain.StorageFailure("decode draft", err)
	}
	return d, true, nil
}

func (r *RedisAdapter) SaveDraft(ctx context.Context, userID int64, d domain.Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, fmt.Sprintf("%s%d", draftKeyPrefix, userID), raw, r.sessionTTL).Err(); err != nil {
		return domain.StorageFailure("save draft", err)
	}
	return nil
}

func (r *RedisAdapter) ClearDraft(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, fmt.Sprintf("%s%d", draftKeyPrefix, userID)).Err(); err != nil {
		return domain.StorageFailure("clear draft", err)
	}
	return nil
}

func (r *RedisAdapter) ChatOrder(ctx context.Context, userID int64) (int64, error) {
	id, err := r.client.Get(ctx, fmt.Sprintf("%s%d", chatKeyPrefix, userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.StorageFailure("get chat", err)
	}
	return id, nil
}

// SetChatOrder has no expiry: orders stay open until explicitly closed.
func (r *RedisAdapter) SetChatOrder(ctx context.Context, userID, orderID int64) error {
	if err := r.client.Set(ctx, fmt.Sprintf("%s%d", chatKeyPrefix, userID), orderID, 0).Err(); err != nil {
		return domain.StorageFailure("set chat", err)
	}
	return nil
}

func (r *RedisAdapter) ClearChatOrder(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, fmt.Sprintf("%s%d", chatKeyPrefix, userID)).Err(); err != nil {
		return domain.StorageFailure("clear chat", err)
	}
	return nil
}

func (r *RedisAdapter) MarkUpdate(ctx context.Context, updateID int) (bool, error) {
	ok, err := r.client.SetNX(ctx, fmt.Sprintf("%s%d", updateKeyPrefix, updateID), 1, updateKeyTTL).Result()
	if err != nil {
		return false, domain.StorageFailure("mark update", err)
	}
	return ok, nil
}

func (r *RedisAdapter) ForgetUpdate(ctx context.Context, updateID int) error {
	if err := r.client.Del(ctx, fmt.Sprintf("%s%d", updateKeyPrefix, updateID)).Err(); err != nil {
		return domain.StorageFailure("forget update", err)
	}
	return nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
