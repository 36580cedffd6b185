package models

// Roles.
const (
	RoleVoyager    = "Voyager"
	RoleAdmin      = "Admin"
	RoleManager    = "Manager"
	RoleHeadCook   = "Head Cook"
	RoleSupervisor = "Supervisor"
	RoleGuest      = "Guest"
)

// Base booking statuses. Service families add their own overlay statuses.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Overlay statuses used by the catering, salon, fitness, movie and resort families.
const (
	StatusPreparing        = "Preparing"
	StatusReady            = "Ready"
	StatusDelivered        = "Delivered"
	StatusInService        = "In Service"
	StatusServiceCompleted = "Completed"
	StatusSessionStarted   = "Session Started"
	StatusSessionCompleted = "Session Completed"
	StatusPlaying          = "Playing"
	StatusOccupied         = "Occupied"
	StatusVacated          = "Vacated"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Work-item types and the statuses that drive booking sync.
const (
	WorkItemMaintenance = "maintenance"
	WorkItemStationery  = "stationery"

	WorkItemPending    = "pending"
	WorkItemInProgress = "in progress"
	WorkItemResolved   = "resolved"
)

// Document collections.
const (
	CollectionUsers        = "users"
	CollectionBookings     = "bookings"
	CollectionWorkItems    = "maintenanceRequests"
	CollectionStaff        = "staff"
	CollectionAvailability = "serviceAvailability"
)

// AvailabilityDocID is the id of the single availability record.
const AvailabilityDocID = "global"

// DateLayout is the wire format of booking dates.
const DateLayout = "2006-01-02"
