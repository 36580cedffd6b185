package service

import (
	"context"
	"fmt"

	"celestia/internal/domain"
	"celestia/internal/models"
)

// StaffRouter picks the staff member responsible for a service type from the
// role index. The first index member is the longest-standing approved holder.
type StaffRouter struct {
	state domain.StateRepository
}

func NewStaffRouter(state domain.StateRepository) *StaffRouter {
	return &StaffRouter{state: state}
}

// Resolve returns the routing role and the assignee, or a nil assignee when
// nobody holds the role.
func (r *StaffRouter) Resolve(ctx context.Context, serviceType string) (string, *string, error) {
	spec, ok := models.LookupService(serviceType)
	if !ok {
		return "", nil, fmt.Errorf("unknown service type %q: %w", serviceType, domain.ErrValidation)
	}

	members, err := r.state.RoleMembers(ctx, spec.Role)
	if err != nil {
		return spec.Role, nil, fmt.Errorf("failed to resolve %s: %w", spec.Role, err)
	}
	if len(members) == 0 {
		return spec.Role, nil, nil
	}
	id := members[0]
	return spec.Role, &id, nil
}
