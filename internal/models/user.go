package models

import "time"

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone,omitempty"`
	Role       string     `json:"role"`
	Approved   bool       `json:"approved"`
	Disabled   bool       `json:"disabled"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Active reports whether the user may act and be acted upon.
func (u *User) Active() bool {
	return u.Approved && !u.Disabled
}

// IsStaff reports whether the role belongs to ship personnel.
func (u *User) IsStaff() bool {
	return IsStaffRole(u.Role)
}

func IsStaffRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleHeadCook, RoleSupervisor:
		return true
	}
	return false
}

func IsKnownRole(role string) bool {
	return role == RoleVoyager || role == RoleGuest || IsStaffRole(role)
}
