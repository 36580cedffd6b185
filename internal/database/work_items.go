package database

import (
	"context"
	"fmt"

	"celestia/internal/models"

	"github.com/google/uuid"
)

func (s *Store) CreateWorkItem(ctx context.Context, item *models.WorkItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	ts := now()
	item.CreatedAt = ts
	item.UpdatedAt = ts

	if err := s.insertDoc(ctx, models.CollectionWorkItems, item.ID, item, ts); err != nil {
		return fmt.Errorf("failed to create work item: %w", err)
	}
	return nil
}

func (s *Store) GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := s.getDoc(ctx, models.CollectionWorkItems, id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListWorkItems(ctx context.Context, f models.WorkItemFilter) ([]*models.WorkItem, error) {
	var filters []filter
	if f.Type != "" {
		filters = append(filters, filter{"type", f.Type})
	}
	if f.BookingID != "" {
		filters = append(filters, filter{"bookingId", f.BookingID})
	}
	if f.Status != "" {
		filters = append(filters, filter{"status", f.Status})
	}
	return queryDocs[models.WorkItem](ctx, s, models.CollectionWorkItems, filters...)
}

func (s *Store) UpdateWorkItem(ctx context.Context, id string, fields map[string]any) error {
	return s.mergeDoc(ctx, models.CollectionWorkItems, id, fields)
}
