package token

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt"
)

// Claims is the decoded payload of a bearer token issued by the booking API.
// The values are display hints only; nothing here has been verified.
type Claims struct {
	jwt.MapClaims
}

// Name returns the user handle carried by the token, falling back to the subject.
func (c Claims) Name() string {
	if name, ok := c.MapClaims["name"].(string); ok && name != "" {
		return name
	}
	sub, _ := c.MapClaims["sub"].(string)
	return sub
}

// Email returns the email claim, or "".
func (c Claims) Email() string {
	email, _ := c.MapClaims["email"].(string)
	return email
}

// ExpiresAt returns the expiry claim when it is present and numeric.
func (c Claims) ExpiresAt() (time.Time, bool) {
	switch exp := c.MapClaims["exp"].(type) {
	case json.Number:
		secs, err := exp.Int64()
		if err != nil {
			f, ferr := exp.Float64()
			if ferr != nil {
				return time.Time{}, false
			}
			secs = int64(f)
		}
		return time.Unix(secs, 0), true
	case float64:
		return time.Unix(int64(exp), 0), true
	}
	return time.Time{}, false
}

// Expired reports whether the token's expiry lies strictly before now, at second precision.
// Tokens without a numeric expiry never expire locally.
func (c Claims) Expired(now time.Time) bool {
	exp, ok := c.ExpiresAt()
	if !ok {
		return false
	}
	return exp.Unix() < now.Unix()
}
