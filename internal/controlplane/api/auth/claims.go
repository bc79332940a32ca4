// Package auth issues and validates the bearer tokens of the control API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Roles a token may carry.
const (
	// RoleAdmin may call every route.
	RoleAdmin = "admin"
	// RoleReader may call the read-only routes.
	RoleReader = "reader"
)

// Claims are the JWT claims of a control API token.
type Claims struct {
	jwt.RegisteredClaims

	// Role is RoleAdmin or RoleReader.
	Role string `json:"role"`

	// Instance is the id of the daemon that minted the token, if known.
	Instance string `json:"instance,omitempty"`
}

// IsAdmin returns true if the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// ValidRole reports whether role is one a token may carry.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleReader
}
