package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"markethub/internal/util"
)

const activationKeyPrefix = "markethub:activation:"

// RedisActivationStore keeps one-shot account activation tokens in Redis.
// Redeeming a token deletes it, so each token activates at most one account.
type RedisActivationStore struct {
	client *redis.Client
}

// NewRedisActivationStore connects to Redis.
func NewRedisActivationStore(addr, password string) *RedisActivationStore {
	return &RedisActivationStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// NewActivationToken issues a token bound to the user ID for ttl.
func (s *RedisActivationStore) NewActivationToken(userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token := util.NewID() + util.NewID()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, activationKeyPrefix+token, userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("store activation token: %w", err)
	}
	return token, nil
}

// RedeemActivationToken resolves and consumes a token, returning the user ID.
func (s *RedisActivationStore) RedeemActivationToken(token string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	userID, err := s.client.GetDel(ctx, activationKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redeem activation token: %w", err)
	}
	return userID, true, nil
}
