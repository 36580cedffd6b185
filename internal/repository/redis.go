package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"celestia/internal/config"
	"celestia/internal/domain"
	"celestia/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	roleIndexPrefix   = "celestia:role_index:"
	paymentKeyPrefix  = "celestia:payment_idem:"
	revokedPrefix     = "celestia:revoked:"
	paymentInFlight   = "__in_flight__"
	defaultPaymentTTL = 24 * time.Hour
)

// IndexedRoles are the roles the payment router resolves staff for.
var IndexedRoles = []string{models.RoleHeadCook, models.RoleManager, models.RoleSupervisor, models.RoleAdmin}

// RedisStateRepository keeps the role index as Redis lists in approval order,
// idempotency keys as expiring strings and revocations as plain keys.
type RedisStateRepository struct {
	client *redis.Client
}

var _ domain.StateRepository = (*RedisStateRepository)(nil)

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	return &RedisStateRepository{client: client}
}

func (r *RedisStateRepository) ready() error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	return nil
}

func (r *RedisStateRepository) AddRoleMember(ctx context.Context, role, userID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	key := roleIndexPrefix + role
	_, err := r.client.LPos(ctx, key, userID, redis.LPosArgs{}).Result()
	if err == nil {
		return nil
	}
	if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to look up role member: %w", err)
	}
	if err := r.client.RPush(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("failed to add role member: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) RemoveRoleMember(ctx context.Context, role, userID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := r.client.LRem(ctx, roleIndexPrefix+role, 0, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove role member: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) RoleMembers(ctx context.Context, role string) ([]string, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	members, err := r.client.LRange(ctx, roleIndexPrefix+role, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read role index: %w", err)
	}
	return members, nil
}

// ResetRoleIndex atomically replaces the index for every indexed role and
// every role present in index.
func (r *RedisStateRepository) ResetRoleIndex(ctx context.Context, index map[string][]string) error {
	if err := r.ready(); err != nil {
		return err
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, role := range IndexedRoles {
			pipe.Del(ctx, roleIndexPrefix+role)
		}
		for role, members := range index {
			pipe.Del(ctx, roleIndexPrefix+role)
			if len(members) == 0 {
				continue
			}
			values := make([]interface{}, len(members))
			for i, m := range members {
				values[i] = m
			}
			pipe.RPush(ctx, roleIndexPrefix+role, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset role index: %w", err)
	}
	return nil
}

func paymentTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultPaymentTTL
	}
	return ttl
}

func (r *RedisStateRepository) ReservePayment(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	ok, err := r.client.SetNX(ctx, paymentKeyPrefix+key, paymentInFlight, paymentTTL(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve payment key: %w", err)
	}
	return ok, nil
}

func (r *RedisStateRepository) PaymentResult(ctx context.Context, key string) ([]byte, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	val, err := r.client.Get(ctx, paymentKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read payment key: %w", err)
	}
	if string(val) == paymentInFlight {
		return nil, false, nil
	}
	return val, true, nil
}

func (r *RedisStateRepository) SavePaymentResult(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := r.client.Set(ctx, paymentKeyPrefix+key, result, paymentTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("failed to store payment result: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) ReleasePayment(ctx context.Context, key string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := r.client.Del(ctx, paymentKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release payment key: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) RevokeSubject(ctx context.Context, userID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := r.client.Set(ctx, revokedPrefix+userID, time.Now().Unix(), 0).Err(); err != nil {
		return fmt.Errorf("failed to revoke subject: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) IsRevoked(ctx context.Context, userID string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	n, err := r.client.Exists(ctx, revokedPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
