package database

import (
	"context"
	"fmt"

	"celestia/internal/models"

	"github.com/google/uuid"
)

func (s *Store) CreateStaffMember(ctx context.Context, member *models.StaffMember) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	member.CreatedAt = now()

	if err := s.insertDoc(ctx, models.CollectionStaff, member.ID, member, member.CreatedAt); err != nil {
		return fmt.Errorf("failed to create staff member: %w", err)
	}
	return nil
}

func (s *Store) ListStaff(ctx context.Context) ([]*models.StaffMember, error) {
	return queryDocs[models.StaffMember](ctx, s, models.CollectionStaff)
}
