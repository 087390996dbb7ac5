package domain

import "fmt"

// Role is the authorisation level granted by the identity collaborator.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleTreasurer Role = "TREASURER"
)

// ParseRole accepts the two known role names.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleTreasurer:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// Actor is the caller of a core operation. It is always passed explicitly.
type Actor struct {
	UserID int64
	Role   Role
	CityID int64
}

func (a Actor) IsAdmin() bool     { return a.Role == RoleAdmin }
func (a Actor) IsTreasurer() bool { return a.Role == RoleTreasurer }

// Owns reports whether the actor submitted the request.
func (a Actor) Owns(r BudgetRequest) bool {
	return a.UserID != 0 && a.UserID == r.RequesterID
}

// Authenticated reports whether the identity collaborator supplied a user and a known role.
func (a Actor) Authenticated() bool {
	return a.UserID > 0 && (a.Role == RoleAdmin || a.Role == RoleTreasurer)
}

// CanActForCity reports whether the actor may write records for the city.
// Admins act for every city; treasurers only for their own.
func (a Actor) CanActForCity(cityID int64) bool {
	return a.IsAdmin() || a.CityID == cityID
}
