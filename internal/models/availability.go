package models

// Availability category keys.
const (
	AvailCatering            = "catering"
	AvailRoomBooking         = "roomBooking"
	AvailEntertainment       = "entertainment"
	AvailExcursions          = "excursions"
	AvailCook                = "cook"
	AvailMedical             = "medical"
	AvailSalonSpa            = "salonSpa"
	AvailFitness             = "fitness"
	AvailMovie               = "movie"
	AvailResort              = "resort"
	AvailFacilityMaintenance = "facilityMaintenance"
	AvailStationeryRequests  = "stationeryRequests"
)

// AvailabilityKeys lists every category in display order.
var AvailabilityKeys = []string{
	AvailCatering,
	AvailRoomBooking,
	AvailEntertainment,
	AvailExcursions,
	AvailCook,
	AvailMedical,
	AvailSalonSpa,
	AvailFitness,
	AvailMovie,
	AvailResort,
	AvailFacilityMaintenance,
	AvailStationeryRequests,
}

// ServiceAvailability holds the global enabled flag per category.
type ServiceAvailability map[string]bool

// DefaultAvailability enables every category.
func DefaultAvailability() ServiceAvailability {
	a := make(ServiceAvailability, len(AvailabilityKeys))
	for _, k := range AvailabilityKeys {
		a[k] = true
	}
	return a
}

func IsAvailabilityKey(key string) bool {
	for _, k := range AvailabilityKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Enabled treats a missing key as enabled.
func (a ServiceAvailability) Enabled(key string) bool {
	v, ok := a[key]
	return !ok || v
}
