package service

import (
	"fmt"

	"celestia/internal/domain"
	"celestia/internal/models"
)

// transitions maps a status to the statuses reachable from it.
type transitions map[string][]string

var baseTransitions = transitions{
	models.StatusPending:  {models.StatusApproved, models.StatusRejected},
	models.StatusApproved: {models.StatusCompleted},
}

var familyTransitions = map[string]transitions{
	models.FamilyCatering: {
		models.StatusApproved:  {models.StatusPreparing, models.StatusReady, models.StatusDelivered},
		models.StatusPreparing: {models.StatusReady, models.StatusDelivered},
		models.StatusReady:     {models.StatusDelivered},
	},
	models.FamilySalon: {
		models.StatusApproved:  {models.StatusInService},
		models.StatusInService: {models.StatusServiceCompleted},
	},
	models.FamilyFitness: {
		models.StatusApproved:       {models.StatusSessionStarted},
		models.StatusSessionStarted: {models.StatusSessionCompleted},
	},
	models.FamilyMovie: {
		models.StatusApproved: {models.StatusPlaying},
		models.StatusPlaying:  {models.StatusServiceCompleted},
	},
	models.FamilyResort: {
		models.StatusApproved: {models.StatusOccupied},
		models.StatusOccupied: {models.StatusVacated},
	},
	models.FamilyFacility: {},
}

// finishedStatuses count as fulfilled in reports.
var finishedStatuses = map[string]bool{
	models.StatusCompleted:        true,
	models.StatusDelivered:        true,
	models.StatusServiceCompleted: true,
	models.StatusSessionCompleted: true,
	models.StatusVacated:          true,
}

const metricsOtherLabel = "other"

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// KnownStatuses lists every status a booking of the family may hold.
func KnownStatuses(family string) []string {
	seen := map[string]bool{models.StatusCancelled: true}
	out := []string{models.StatusCancelled}
	add := func(t transitions) {
		for from, tos := range t {
			for _, s := range append([]string{from}, tos...) {
				if !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
			}
		}
	}
	add(baseTransitions)
	add(familyTransitions[family])
	return out
}

// transitionLabel bounds the status label of the transition metric to the
// statuses the family knows.
func transitionLabel(serviceType, status string) string {
	spec, ok := models.LookupService(serviceType)
	if ok && contains(KnownStatuses(spec.Family), status) {
		return status
	}
	return metricsOtherLabel
}

// syncLabel bounds the status label of the work-item sync metric.
func syncLabel(status string) string {
	switch status {
	case models.WorkItemPending, models.WorkItemInProgress, models.WorkItemResolved:
		return status
	}
	return metricsOtherLabel
}

// CanTransition reports whether a booking of the family may move from one
// status to another. Cancellation is reachable from every status.
func CanTransition(family, from, to string) bool {
	if from == to || to == models.StatusCancelled {
		return true
	}
	if contains(baseTransitions[from], to) {
		return true
	}
	return contains(familyTransitions[family][from], to)
}

func validateTransition(serviceType, from, to string) error {
	spec, ok := models.LookupService(serviceType)
	if !ok {
		return fmt.Errorf("unknown service type %q: %w", serviceType, domain.ErrValidation)
	}
	if !contains(KnownStatuses(spec.Family), to) {
		return fmt.Errorf("status %q is not valid for %s: %w", to, serviceType, domain.ErrValidation)
	}
	if !CanTransition(spec.Family, from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrIllegalTransition)
	}
	return nil
}
