/*
Package token reads the claims of the booking API's bearer tokens.

Tokens are decoded without any signature verification: the claims are used for display
hints (name, email) and for a local expiry check only. Authorization always rests on the
remote API rejecting an invalid or expired token on real calls.
*/
package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"holidaze/internal/pkg/errs"
)

var (
	// ErrMalformedToken is returned when a token is not three dot-separated segments
	// with a base64 JSON object in the middle.
	ErrMalformedToken = errs.Define(errs.ErrMalformedToken, "token: malformed")

	// ErrExpiredToken is returned by Validate for a decodable token past its expiry.
	ErrExpiredToken = errs.Define(errs.ErrExpiredToken, "token: expired")
)

// Decode extracts the claims from the payload segment of raw.
func Decode(raw string) (Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload is not base64: %v", ErrMalformedToken, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var claims jwt.MapClaims
	if err := decoder.Decode(&claims); err != nil {
		return Claims{}, fmt.Errorf("%w: payload is not JSON: %v", ErrMalformedToken, err)
	}
	if claims == nil {
		return Claims{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedToken)
	}

	return Claims{MapClaims: claims}, nil
}

// Validate decodes raw and rejects it when it has expired relative to now.
func Validate(raw string, now time.Time) (Claims, error) {
	claims, err := Decode(raw)
	if err != nil {
		return Claims{}, err
	}

	if claims.Expired(now) {
		exp, _ := claims.ExpiresAt()
		return claims, fmt.Errorf("%w: at %s", ErrExpiredToken, exp.UTC().Format(time.RFC3339))
	}

	return claims, nil
}

// decodeSegment accepts the base64url form JWTs use and, failing that, standard base64.
func decodeSegment(seg string) ([]byte, error) {
	if seg == "" {
		return nil, fmt.Errorf("empty segment")
	}

	data, err := jwt.DecodeSegment(seg)
	if err == nil {
		return data, nil
	}

	if std, stdErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(seg, "=")); stdErr == nil {
		return std, nil
	}

	return nil, err
}
