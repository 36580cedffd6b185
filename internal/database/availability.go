package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"celestia/internal/domain"
	"celestia/internal/models"
)

// GetAvailability returns the category flags. Non-boolean fields such as
// updatedAt are dropped.
func (s *Store) GetAvailability(ctx context.Context) (models.ServiceAvailability, error) {
	var raw map[string]json.RawMessage
	if err := s.getDoc(ctx, models.CollectionAvailability, models.AvailabilityDocID, &raw); err != nil {
		return nil, err
	}

	out := make(models.ServiceAvailability, len(raw))
	for key, value := range raw {
		var enabled bool
		if err := json.Unmarshal(value, &enabled); err != nil {
			continue
		}
		out[key] = enabled
	}
	return out, nil
}

// EnsureAvailability creates the record from defaults when it is missing and
// adds any default keys the stored record lacks.
func (s *Store) EnsureAvailability(ctx context.Context, defaults models.ServiceAvailability) error {
	current, err := s.GetAvailability(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return s.insertDoc(ctx, models.CollectionAvailability, models.AvailabilityDocID, defaults, now())
	}
	if err != nil {
		return err
	}

	missing := make(map[string]bool)
	for key, value := range defaults {
		if _, ok := current[key]; !ok {
			missing[key] = value
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := s.MergeAvailability(ctx, missing); err != nil {
		return fmt.Errorf("failed to backfill availability: %w", err)
	}
	return nil
}

func (s *Store) MergeAvailability(ctx context.Context, patch map[string]bool) error {
	fields := make(map[string]any, len(patch))
	for key, value := range patch {
		fields[key] = value
	}
	return s.mergeDoc(ctx, models.CollectionAvailability, models.AvailabilityDocID, fields)
}
