package models

import "time"

// StaffMember is a roster entry for trades staff who work on requests.
type StaffMember struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultStaffRoster seeds an empty roster.
func DefaultStaffRoster() []StaffMember {
	return []StaffMember{
		{Name: "Arjun Kumar", Role: "Technician"},
		{Name: "Priya Sharma", Role: "Electrician"},
		{Name: "Ravi Patel", Role: "Plumber"},
		{Name: "Sneha Gupta", Role: "Carpenter"},
		{Name: "Amit Singh", Role: "Cleaner"},
		{Name: "Neha Joshi", Role: "Security"},
		{Name: "Vikram Rao", Role: "Receptionist"},
		{Name: "Anjali Mehta", Role: "IT Support"},
		{Name: "Suresh Nair", Role: "Maintenance"},
		{Name: "Kavita Desai", Role: "Supervisor Assistant"},
	}
}
