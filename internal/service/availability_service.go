package service

import (
	"context"
	"fmt"
	"sort"

	"celestia/internal/domain"
	"celestia/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService manages the global per-category enabled flags.
type AvailabilityService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewAvailabilityService(repo domain.Repository, logger *zerolog.Logger) *AvailabilityService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AvailabilityService{repo: repo, logger: logger}
}

// EnsureDefaults creates the record with every category enabled, backfilling
// categories missing from an existing record.
func (s *AvailabilityService) EnsureDefaults(ctx context.Context) error {
	return s.repo.EnsureAvailability(ctx, models.DefaultAvailability())
}

func (s *AvailabilityService) Get(ctx context.Context) (models.ServiceAvailability, error) {
	if err := s.EnsureDefaults(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetAvailability(ctx)
}

// Update merges a partial patch. Unknown category keys are rejected.
func (s *AvailabilityService) Update(ctx context.Context, patch map[string]bool) (models.ServiceAvailability, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("no availability flags given: %w", domain.ErrValidation)
	}
	var unknown []string
	for key := range patch {
		if !models.IsAvailabilityKey(key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown availability keys %v: %w", unknown, domain.ErrValidation)
	}

	if err := s.EnsureDefaults(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.MergeAvailability(ctx, patch); err != nil {
		return nil, err
	}

	s.logger.Info().Interface("patch", patch).Msg("Service availability updated")
	return s.repo.GetAvailability(ctx)
}

// IsEnabled reports whether the category is open for new bookings.
func (s *AvailabilityService) IsEnabled(ctx context.Context, key string) (bool, error) {
	flags, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return flags.Enabled(key), nil
}
