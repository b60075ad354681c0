package authn

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claim set this module understands. Only the fields
// needed to resolve an admission-control user id are kept; session
// management itself is out of scope.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"` // "authenticated" or "anon"
}

// UserID returns the caller's stable identifier, taken from the JWT
// subject claim.
func (c *Claims) UserID() string { return c.Subject }
