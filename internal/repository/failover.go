package repository

import (
	"context"
	"sync/atomic"
	"time"

	"celestia/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository serves from primary and switches to fallback when a
// primary call fails, probing primary again after recoveryInterval.
// Role-index and revocation writes are mirrored to fallback so it is warm
// when it takes over.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

var _ domain.StateRepository = (*FailoverStateRepository)(nil)

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) shouldTryPrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func call[T any](r *FailoverStateRepository, op string, fn func(domain.StateRepository) (T, error)) (T, error) {
	if r.shouldTryPrimary() {
		v, err := fn(r.primary)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Str("op", op).Msg("Primary state repository recovered")
			}
			return v, nil
		}
		r.markDown(op, err)
	}
	return fn(r.fallback)
}

func callErr(r *FailoverStateRepository, op string, fn func(domain.StateRepository) error) error {
	_, err := call(r, op, func(s domain.StateRepository) (struct{}, error) {
		return struct{}{}, fn(s)
	})
	return err
}

// mirror applies a write to fallback as well, unless fallback already served it.
func (r *FailoverStateRepository) mirror(op string, fn func(domain.StateRepository) error) error {
	servedByFallback := !r.shouldTryPrimary()
	if err := callErr(r, op, fn); err != nil {
		return err
	}
	if servedByFallback || r.isDown.Load() {
		return nil
	}
	if err := fn(r.fallback); err != nil {
		r.logger.Warn().Err(err).Str("op", op).Msg("Failed to mirror state to fallback")
	}
	return nil
}

func (r *FailoverStateRepository) AddRoleMember(ctx context.Context, role, userID string) error {
	return r.mirror("add_role_member", func(s domain.StateRepository) error {
		return s.AddRoleMember(ctx, role, userID)
	})
}

func (r *FailoverStateRepository) RemoveRoleMember(ctx context.Context, role, userID string) error {
	return r.mirror("remove_role_member", func(s domain.StateRepository) error {
		return s.RemoveRoleMember(ctx, role, userID)
	})
}

func (r *FailoverStateRepository) RoleMembers(ctx context.Context, role string) ([]string, error) {
	return call(r, "role_members", func(s domain.StateRepository) ([]string, error) {
		return s.RoleMembers(ctx, role)
	})
}

func (r *FailoverStateRepository) ResetRoleIndex(ctx context.Context, index map[string][]string) error {
	return r.mirror("reset_role_index", func(s domain.StateRepository) error {
		return s.ResetRoleIndex(ctx, index)
	})
}

func (r *FailoverStateRepository) ReservePayment(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return call(r, "reserve_payment", func(s domain.StateRepository) (bool, error) {
		return s.ReservePayment(ctx, key, ttl)
	})
}

func (r *FailoverStateRepository) PaymentResult(ctx context.Context, key string) ([]byte, bool, error) {
	type found struct {
		data []byte
		ok   bool
	}
	res, err := call(r, "payment_result", func(s domain.StateRepository) (found, error) {
		data, ok, err := s.PaymentResult(ctx, key)
		return found{data, ok}, err
	})
	return res.data, res.ok, err
}

func (r *FailoverStateRepository) SavePaymentResult(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	return callErr(r, "save_payment_result", func(s domain.StateRepository) error {
		return s.SavePaymentResult(ctx, key, result, ttl)
	})
}

func (r *FailoverStateRepository) ReleasePayment(ctx context.Context, key string) error {
	return callErr(r, "release_payment", func(s domain.StateRepository) error {
		return s.ReleasePayment(ctx, key)
	})
}

func (r *FailoverStateRepository) RevokeSubject(ctx context.Context, userID string) error {
	return r.mirror("revoke_subject", func(s domain.StateRepository) error {
		return s.RevokeSubject(ctx, userID)
	})
}

func (r *FailoverStateRepository) IsRevoked(ctx context.Context, userID string) (bool, error) {
	return call(r, "is_revoked", func(s domain.StateRepository) (bool, error) {
		return s.IsRevoked(ctx, userID)
	})
}
