package repository

import (
	"context"
	"sync"
	"time"

	"celestia/internal/domain"
)

type paymentEntry struct {
	result    []byte
	expiresAt time.Time
}

// MemoryStateRepository is the in-process StateRepository used when Redis is
// not configured or unreachable.
type MemoryStateRepository struct {
	mu       sync.Mutex
	roles    map[string][]string
	payments map[string]paymentEntry
	revoked  map[string]struct{}
	now      func() time.Time
}

var _ domain.StateRepository = (*MemoryStateRepository)(nil)

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		roles:    make(map[string][]string),
		payments: make(map[string]paymentEntry),
		revoked:  make(map[string]struct{}),
		now:      time.Now,
	}
}

func (r *MemoryStateRepository) AddRoleMember(_ context.Context, role, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.roles[role] {
		if m == userID {
			return nil
		}
	}
	r.roles[role] = append(r.roles[role], userID)
	return nil
}

func (r *MemoryStateRepository) RemoveRoleMember(_ context.Context, role, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.roles[role]
	kept := members[:0]
	for _, m := range members {
		if m != userID {
			kept = append(kept, m)
		}
	}
	r.roles[role] = kept
	return nil
}

func (r *MemoryStateRepository) RoleMembers(_ context.Context, role string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.roles[role]...), nil
}

func (r *MemoryStateRepository) ResetRoleIndex(_ context.Context, index map[string][]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = make(map[string][]string, len(index))
	for role, members := range index {
		r.roles[role] = append([]string(nil), members...)
	}
	return nil
}

// entry returns the live entry for key, dropping it when expired. Callers hold mu.
func (r *MemoryStateRepository) entry(key string) (paymentEntry, bool) {
	e, ok := r.payments[key]
	if ok && !r.now().Before(e.expiresAt) {
		delete(r.payments, key)
		return paymentEntry{}, false
	}
	return e, ok
}

func (r *MemoryStateRepository) ReservePayment(_ context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entry(key); ok {
		return false, nil
	}
	r.payments[key] = paymentEntry{expiresAt: r.now().Add(paymentTTL(ttl))}
	return true, nil
}

func (r *MemoryStateRepository) PaymentResult(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entry(key)
	if !ok || e.result == nil {
		return nil, false, nil
	}
	return append([]byte(nil), e.result...), true, nil
}

func (r *MemoryStateRepository) SavePaymentResult(_ context.Context, key string, result []byte, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[key] = paymentEntry{
		result:    append([]byte(nil), result...),
		expiresAt: r.now().Add(paymentTTL(ttl)),
	}
	return nil
}

func (r *MemoryStateRepository) ReleasePayment(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.payments, key)
	return nil
}

func (r *MemoryStateRepository) RevokeSubject(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[userID] = struct{}{}
	return nil
}

func (r *MemoryStateRepository) IsRevoked(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[userID]
	return ok, nil
}
