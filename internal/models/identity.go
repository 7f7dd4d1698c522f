package models

import "github.com/golang-jwt/jwt/v5"

// Identity is the resolved caller, trusted by every service.
type Identity struct {
	UserID     string      `json:"user_id"`
	Kind       UserKind    `json:"kind"`
	Roles      []ActorRole `json:"roles"`
	FacultyID  string      `json:"faculty_id,omitempty"`
	DivisionID string      `json:"division_id,omitempty"`
}

// HasRole reports whether the identity carries the role.
func (i *Identity) HasRole(role ActorRole) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of the roles.
func (i *Identity) HasAnyRole(roles ...ActorRole) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// JWTClaims represents the JWT payload of access tokens issued by the identity provider.
type JWTClaims struct {
	UserID     string      `json:"user_id"`
	Kind       UserKind    `json:"kind"`
	Roles      []ActorRole `json:"roles"`
	FacultyID  string      `json:"faculty_id,omitempty"`
	DivisionID string      `json:"division_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts the verified claims into the caller identity.
func (c *JWTClaims) Identity() *Identity {
	roles := make([]ActorRole, 0, len(c.Roles))
	for _, role := range c.Roles {
		if role.Valid() {
			roles = append(roles, role)
		}
	}
	return &Identity{
		UserID:     c.UserID,
		Kind:       c.Kind,
		Roles:      roles,
		FacultyID:  c.FacultyID,
		DivisionID: c.DivisionID,
	}
}
