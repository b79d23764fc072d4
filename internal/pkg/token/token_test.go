package token

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return signed
}

func TestDecodeReadsClaims(t *testing.T) {
	raw := mint(t, jwt.MapClaims{"name": "alice", "email": "a@x.com", "iat": now.Unix()})

	claims, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "alice", claims.Name())
	assert.Equal(t, "a@x.com", claims.Email())
	_, hasExp := claims.ExpiresAt()
	assert.False(t, hasExp)
}

func TestDecodeFallsBackToSubject(t *testing.T) {
	claims, err := Decode(mint(t, jwt.MapClaims{"sub": "bob"}))
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Name())
}

func TestDecodeIgnoresSignature(t *testing.T) {
	raw := mint(t, jwt.MapClaims{"name": "alice"})
	tampered := raw[:len(raw)-4] + "AAAA"

	claims, err := Decode(tampered)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Name())
}

func TestDecodeMalformed(t *testing.T) {
	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	array := base64.RawURLEncoding.EncodeToString([]byte(`["a"]`))
	null := base64.RawURLEncoding.EncodeToString([]byte(`null`))

	cases := map[string]string{
		"empty":         "",
		"two segments":  "a.b",
		"four segments": "a.b.c.d",
		"bad base64":    "h.!!!.s",
		"payload json":  "h." + notJSON + ".s",
		"payload array": "h." + array + ".s",
		"payload null":  "h." + null + ".s",
		"empty payload": "h..s",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.True(t, errors.Is(err, ErrMalformedToken), "got %v", err)
		})
	}
}

func TestDecodeAcceptsStandardBase64(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{"name":"ø+/?"}`))

	claims, err := Decode("h." + payload + ".s")
	require.NoError(t, err)
	assert.Equal(t, "ø+/?", claims.Name())
}

func TestValidateExpiry(t *testing.T) {
	past := mint(t, jwt.MapClaims{"name": "alice", "exp": now.Add(-time.Second).Unix()})
	future := mint(t, jwt.MapClaims{"name": "alice", "exp": now.Add(time.Second).Unix()})
	exact := mint(t, jwt.MapClaims{"name": "alice", "exp": now.Unix()})
	none := mint(t, jwt.MapClaims{"name": "alice"})
	textual := mint(t, jwt.MapClaims{"name": "alice", "exp": "yesterday"})

	_, err := Validate(past, now)
	assert.True(t, errors.Is(err, ErrExpiredToken))

	_, err = Validate(future, now)
	assert.NoError(t, err)

	_, err = Validate(exact, now)
	assert.NoError(t, err, "expiry equal to now is still valid")

	_, err = Validate(none, now)
	assert.NoError(t, err)

	_, err = Validate(textual, now)
	assert.NoError(t, err, "non-numeric expiry is treated as absent")
}

func TestValidateMalformed(t *testing.T) {
	_, err := Validate("garbage", now)
	assert.True(t, errors.Is(err, ErrMalformedToken))
	assert.False(t, errors.Is(err, ErrExpiredToken))
}
