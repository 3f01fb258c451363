package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role decides which gates and review operations a profile may use.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// UserType returns the display label that mirrors the role.
func (r Role) UserType() UserType {
	if r == RoleAdmin {
		return UserTypeAdmin
	}
	return UserTypeStudent
}

// UserType is the display label stored next to Role.
type UserType string

const (
	UserTypeAdmin   UserType = "Admin"
	UserTypeStudent UserType = "Student"
)

// ParseUserType converts a stored or submitted user type label.
func ParseUserType(s string) (UserType, error) {
	switch UserType(s) {
	case UserTypeAdmin, UserTypeStudent:
		return UserType(s), nil
	}
	return "", fmt.Errorf("unknown user type %q", s)
}

// Role maps a user type back to its role: Admin is admin, anything else is user.
func (t UserType) Role() Role {
	if t == UserTypeAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Profile is the durable record of a user's identity metadata and role.
type Profile struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address,omitempty"`
	Verified     bool      `json:"verified"`
	Role         Role      `json:"role"`
	UserType     UserType  `json:"userType"`
	EmployeeCode *string   `json:"employeeCode,omitempty"`
	RegisterDate time.Time `json:"registerDate"`
}

// SetRole assigns the role and keeps UserType in step with it.
func (p *Profile) SetRole(r Role) {
	p.Role = r
	p.UserType = r.UserType()
}

// CheckInvariant reports a profile whose role and user type disagree.
func (p *Profile) CheckInvariant() error {
	if p.UserType.Role() != p.Role || p.Role.UserType() != p.UserType {
		return fmt.Errorf("profile %s: role %q does not match user type %q", p.UID, p.Role, p.UserType)
	}
	return nil
}

// FormatEmployeeCode renders the n-th admin employee code.
func FormatEmployeeCode(n int64) string {
	return fmt.Sprintf("A00%d", n)
}

// ParseEmployeeCode is the inverse of FormatEmployeeCode.
func ParseEmployeeCode(code string) (int64, error) {
	if digits, ok := strings.CutPrefix(code, "A00"); ok {
		if n, err := strconv.ParseInt(digits, 10, 64); err == nil && n > 0 && FormatEmployeeCode(n) == code {
			return n, nil
		}
	}
	return 0, fmt.Errorf("employee code %q is not of the form A00<n>", code)
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	DisplayName string   `json:"displayName" validate:"required,max=120"`
	Phone       string   `json:"phone" validate:"max=40"`
	Email       string   `json:"email" validate:"required,email"`
	UserType    UserType `json:"userType" validate:"required,oneof=Admin Student"`
}
