package service

import (
	"testing"

	"celestia/internal/domain"
	"celestia/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		family string
		from   string
		to     string
		want   bool
	}{
		{models.FamilyCatering, models.StatusPending, models.StatusApproved, true},
		{models.FamilyCatering, models.StatusPending, models.StatusRejected, true},
		{models.FamilyCatering, models.StatusPending, models.StatusPreparing, false},
		{models.FamilyCatering, models.StatusApproved, models.StatusDelivered, true},
		{models.FamilyCatering, models.StatusReady, models.StatusPreparing, false},
		{models.FamilySalon, models.StatusApproved, models.StatusInService, true},
		{models.FamilySalon, models.StatusInService, models.StatusServiceCompleted, true},
		{models.FamilySalon, models.StatusApproved, models.StatusPreparing, false},
		{models.FamilyFitness, models.StatusSessionStarted, models.StatusSessionCompleted, true},
		{models.FamilyMovie, models.StatusApproved, models.StatusPlaying, true},
		{models.FamilyResort, models.StatusOccupied, models.StatusVacated, true},
		{models.FamilyResort, models.StatusVacated, models.StatusOccupied, false},
		{models.FamilyFacility, models.StatusApproved, models.StatusCompleted, true},
		{models.FamilyFacility, models.StatusCompleted, models.StatusApproved, false},
		{models.FamilyFacility, models.StatusCompleted, models.StatusCancelled, true},
		{models.FamilyMovie, models.StatusPlaying, models.StatusPlaying, true},
	}

	for _, tt := range tests {
		t.Run(tt.family+"/"+tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.family, tt.from, tt.to))
		})
	}
}

func TestKnownStatuses(t *testing.T) {
	catering := KnownStatuses(models.FamilyCatering)
	assert.Contains(t, catering, models.StatusDelivered)
	assert.Contains(t, catering, models.StatusCancelled)
	assert.NotContains(t, catering, models.StatusVacated)

	facility := KnownStatuses(models.FamilyFacility)
	assert.ElementsMatch(t, []string{
		models.StatusCancelled, models.StatusPending, models.StatusApproved,
		models.StatusRejected, models.StatusCompleted,
	}, facility)
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, validateTransition(models.ServiceResort, models.StatusApproved, models.StatusOccupied))
	assert.ErrorIs(t, validateTransition(models.ServiceResort, models.StatusPending, models.StatusOccupied), domain.ErrIllegalTransition)
	assert.ErrorIs(t, validateTransition(models.ServiceResort, models.StatusApproved, models.StatusPlaying), domain.ErrValidation)
	assert.ErrorIs(t, validateTransition("Laundry", models.StatusPending, models.StatusApproved), domain.ErrValidation)
}

func TestMetricLabels(t *testing.T) {
	assert.Equal(t, models.StatusPreparing, transitionLabel(models.ServiceCatering, models.StatusPreparing))
	assert.Equal(t, models.StatusCancelled, transitionLabel(models.ServiceCatering, models.StatusCancelled))
	assert.Equal(t, "other", transitionLabel(models.ServiceCatering, models.StatusOccupied))
	assert.Equal(t, "other", transitionLabel(models.ServiceCatering, "junk-42"))
	assert.Equal(t, "other", transitionLabel("Laundry", models.StatusApproved))

	assert.Equal(t, models.WorkItemInProgress, syncLabel(models.WorkItemInProgress))
	assert.Equal(t, models.WorkItemResolved, syncLabel(models.WorkItemResolved))
	assert.Equal(t, "other", syncLabel("junk-42"))
}
