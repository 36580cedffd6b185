package models

// Service types.
const (
	ServiceCatering            = "Catering / Meal Booking"
	ServiceSalonSpa            = "Salon / Spa Booking"
	ServiceFitness             = "Fitness Center"
	ServiceMovie               = "Movie / Entertainment"
	ServiceResort              = "Resort / Lounge Booking"
	ServiceFacilityMaintenance = "Facility Maintenance"
	ServiceStationery          = "Stationery Requests"
)

// Lifecycle families group service types that share a status overlay.
const (
	FamilyCatering = "catering"
	FamilySalon    = "salon"
	FamilyFitness  = "fitness"
	FamilyMovie    = "movie"
	FamilyResort   = "resort"
	FamilyFacility = "facility"
)

// ServiceSpec describes how a service type is validated, gated and routed.
type ServiceSpec struct {
	Type            string   `json:"serviceType"`
	Role            string   `json:"role"`
	AvailabilityKey string   `json:"availabilityKey"`
	Family          string   `json:"family"`
	RequiredFields  []string `json:"requiredFields"`
	RequiresDate    bool     `json:"requiresDate"`
	WorkItemType    string   `json:"workItemType,omitempty"`
}

// Catalog is ordered as presented to voyagers.
var Catalog = []ServiceSpec{
	{
		Type:            ServiceCatering,
		Role:            RoleHeadCook,
		AvailabilityKey: AvailCatering,
		Family:          FamilyCatering,
		RequiredFields:  []string{"mealType", "time", "quantity"},
	},
	{
		Type:            ServiceSalonSpa,
		Role:            RoleManager,
		AvailabilityKey: AvailSalonSpa,
		Family:          FamilySalon,
		RequiredFields:  []string{"category", "time"},
	},
	{
		Type:            ServiceFitness,
		Role:            RoleManager,
		AvailabilityKey: AvailFitness,
		Family:          FamilyFitness,
		RequiredFields:  []string{"activity", "trainer", "date", "time"},
		RequiresDate:    true,
	},
	{
		Type:            ServiceMovie,
		Role:            RoleManager,
		AvailabilityKey: AvailMovie,
		Family:          FamilyMovie,
		RequiredFields:  []string{"title", "showTime", "seats"},
	},
	{
		Type:            ServiceResort,
		Role:            RoleManager,
		AvailabilityKey: AvailResort,
		Family:          FamilyResort,
		RequiredFields:  []string{"location", "date", "duration"},
		RequiresDate:    true,
	},
	{
		Type:            ServiceFacilityMaintenance,
		Role:            RoleSupervisor,
		AvailabilityKey: AvailFacilityMaintenance,
		Family:          FamilyFacility,
		RequiredFields:  []string{"requestType", "facility", "issue"},
		WorkItemType:    WorkItemMaintenance,
	},
	{
		Type:            ServiceStationery,
		Role:            RoleSupervisor,
		AvailabilityKey: AvailStationeryRequests,
		Family:          FamilyFacility,
		RequiredFields:  []string{"requestType", "item", "quantity", "requestedBy"},
		WorkItemType:    WorkItemStationery,
	},
}

// LookupService returns the catalog entry for a service type.
func LookupService(serviceType string) (ServiceSpec, bool) {
	for _, s := range Catalog {
		if s.Type == serviceType {
			return s, true
		}
	}
	return ServiceSpec{}, false
}
