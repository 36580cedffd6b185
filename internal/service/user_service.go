package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"celestia/internal/domain"
	"celestia/internal/events"
	"celestia/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo     domain.Repository
	state    domain.StateRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewUserService(repo domain.Repository, state domain.StateRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *UserService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &UserService{
		repo:     repo,
		state:    state,
		eventBus: eventBus,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SignupInput is the public registration form.
type SignupInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// Signup registers an unapproved account. The first Admin to sign up while no
// approved Admin exists is approved immediately.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || strings.TrimSpace(in.Email) == "" {
		return nil, fmt.Errorf("name and email are required: %w", domain.ErrValidation)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", domain.ErrValidation)
	}
	if in.Role == "" {
		in.Role = models.RoleVoyager
	}
	if !models.IsKnownRole(in.Role) {
		return nil, fmt.Errorf("unknown role %q: %w", in.Role, domain.ErrValidation)
	}

	_, err := s.repo.FindUserByEmail(ctx, in.Email)
	if err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	user := &models.User{
		Name:  in.Name,
		Email: in.Email,
		Phone: strings.TrimSpace(in.Phone),
		Role:  in.Role,
	}

	if in.Role == models.RoleAdmin {
		bootstrap, err := s.noApprovedAdmin(ctx)
		if err != nil {
			return nil, err
		}
		if bootstrap {
			ts := s.now()
			user.Approved = true
			user.ApprovedAt = &ts
		}
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	if user.Approved {
		s.indexAdd(ctx, user)
		s.logger.Info().Str("user_id", user.ID).Msg("First admin auto-approved")
	}
	return user, nil
}

func (s *UserService) noApprovedAdmin(ctx context.Context) (bool, error) {
	admins, err := s.repo.ListUsers(ctx, models.RoleAdmin)
	if err != nil {
		return false, err
	}
	for _, a := range admins {
		if a.Approved {
			return false, nil
		}
	}
	return true, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, role string) ([]*models.User, error) {
	return s.repo.ListUsers(ctx, role)
}

// Approve approves a user, optionally changing the role. Approving an already
// approved user with the same role keeps the original approval time.
func (s *UserService) Approve(ctx context.Context, actor *models.User, id, role string) (*models.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = user.Role
	}
	if !models.IsKnownRole(role) {
		return nil, fmt.Errorf("unknown role %q: %w", role, domain.ErrValidation)
	}
	if user.Approved && user.Role == role {
		return user, nil
	}

	ts := s.now()
	if err := s.repo.UpdateUser(ctx, id, map[string]any{
		"approved":   true,
		"role":       role,
		"approvedAt": ts,
	}); err != nil {
		return nil, err
	}

	if user.Approved {
		s.indexRemove(ctx, user)
	}
	user.Approved = true
	user.Role = role
	user.ApprovedAt = &ts
	s.indexAdd(ctx, user)

	s.publish(events.EventUserApproved, user, actor)
	return user, nil
}

// SetDisabled disables or re-enables an account.
func (s *UserService) SetDisabled(ctx context.Context, actor *models.User, id string, disabled bool) (*models.User, error) {
	if actor != nil && actor.ID == id && disabled {
		return nil, fmt.Errorf("cannot disable your own account: %w", domain.ErrPolicyViolation)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Disabled == disabled {
		return user, nil
	}

	if err := s.repo.UpdateUser(ctx, id, map[string]any{"disabled": disabled}); err != nil {
		return nil, err
	}
	user.Disabled = disabled

	if disabled {
		s.indexRemove(ctx, user)
		s.publish(events.EventUserDisabled, user, actor)
	} else if user.Active() && models.IsStaffRole(user.Role) {
		// Re-enabled holders keep their approval-time position.
		if err := s.RebuildRoleIndex(ctx); err != nil {
			s.logger.Error().Err(err).Str("user_id", id).Msg("Failed to rebuild role index after enable")
		}
	}
	return user, nil
}

// DeleteUser hard-deletes an account and revokes its credentials.
func (s *UserService) DeleteUser(ctx context.Context, actor *models.User, id string) error {
	if actor != nil && actor.ID == id {
		return fmt.Errorf("cannot delete your own account: %w", domain.ErrPolicyViolation)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.indexRemove(ctx, user)
	if err := s.state.RevokeSubject(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("user_id", id).Msg("Failed to revoke deleted user credentials")
	}
	s.publish(events.EventUserDeleted, user, actor)
	return nil
}

// RebuildRoleIndex replaces the role index with the directory's active staff,
// ordered by approval time then id.
func (s *UserService) RebuildRoleIndex(ctx context.Context) error {
	users, err := s.repo.ListUsers(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	sort.SliceStable(users, func(i, j int) bool {
		ai, aj := approvalTime(users[i]), approvalTime(users[j])
		if !ai.Equal(aj) {
			return ai.Before(aj)
		}
		return users[i].ID < users[j].ID
	})

	index := make(map[string][]string)
	for _, u := range users {
		if u.Active() && models.IsStaffRole(u.Role) {
			index[u.Role] = append(index[u.Role], u.ID)
		}
	}

	if err := s.state.ResetRoleIndex(ctx, index); err != nil {
		return err
	}
	s.logger.Info().Int("roles", len(index)).Msg("Role index rebuilt")
	return nil
}

func approvalTime(u *models.User) time.Time {
	if u.ApprovedAt != nil {
		return *u.ApprovedAt
	}
	return u.CreatedAt
}

func (s *UserService) indexAdd(ctx context.Context, u *models.User) {
	if !u.Active() || !models.IsStaffRole(u.Role) {
		return
	}
	if err := s.state.AddRoleMember(ctx, u.Role, u.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID).Str("role", u.Role).Msg("Failed to add role index member")
	}
}

func (s *UserService) indexRemove(ctx context.Context, u *models.User) {
	if !models.IsStaffRole(u.Role) {
		return
	}
	if err := s.state.RemoveRoleMember(ctx, u.Role, u.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID).Str("role", u.Role).Msg("Failed to remove role index member")
	}
}

func (s *UserService) publish(eventType string, u *models.User, actor *models.User) {
	if s.eventBus == nil {
		return
	}
	payload := events.UserEventPayload{UserID: u.ID, Role: u.Role}
	if actor != nil {
		payload.ChangedBy = actor.ID
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("user_id", u.ID).Msg("publish event error")
	}
}

// StaffRoster lists the trades staff who can be assigned work.
func (s *UserService) StaffRoster(ctx context.Context) ([]*models.StaffMember, error) {
	return s.repo.ListStaff(ctx)
}

// SeedStaffRoster fills an empty roster. It returns the number of members added.
func (s *UserService) SeedStaffRoster(ctx context.Context, members []models.StaffMember) (int, error) {
	existing, err := s.repo.ListStaff(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i := range members {
		if err := s.repo.CreateStaffMember(ctx, &members[i]); err != nil {
			return i, fmt.Errorf("failed to add %s: %w", members[i].Name, err)
		}
	}
	s.logger.Info().Int("count", len(members)).Msg("Staff roster seeded")
	return len(members), nil
}
