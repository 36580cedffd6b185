package database

import (
	"context"
	"fmt"
	"strings"

	"celestia/internal/domain"
	"celestia/internal/models"

	"github.com/google/uuid"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	if err := s.insertDoc(ctx, models.CollectionUsers, user.ID, user, ts); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.getDoc(ctx, models.CollectionUsers, id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	users, err := queryDocs[models.User](ctx, s, models.CollectionUsers, filter{"email", email})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user with email %s: %w", email, domain.ErrNotFound)
	}
	return users[0], nil
}

// ListUsers returns every user, or only holders of role when it is set.
func (s *Store) ListUsers(ctx context.Context, role string) ([]*models.User, error) {
	if role == "" {
		return queryDocs[models.User](ctx, s, models.CollectionUsers)
	}
	return queryDocs[models.User](ctx, s, models.CollectionUsers, filter{"role", role})
}

func (s *Store) UpdateUser(ctx context.Context, id string, fields map[string]any) error {
	return s.mergeDoc(ctx, models.CollectionUsers, id, fields)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.deleteDoc(ctx, models.CollectionUsers, id)
}
