/*
Package randx provides functions for generating cryptographically secure random identifiers.

It is used to generate Base62 tab ids for connected front ends and UUIDs for uploaded objects.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// TabIDPrefix is the prefix of every tab id.
	TabIDPrefix = "tab_"

	// TabIDRawLength is the fixed length of the Base62 part of a tab id.
	TabIDRawLength = 8
)

// TabID generates a tab id: TabIDPrefix followed by TabIDRawLength Base62 characters.
func TabID() (string, error) {
	result := make([]byte, TabIDRawLength)

	for i := 0; i < TabIDRawLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for tab id: %v", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return TabIDPrefix + string(result), nil
}

// IsValidTabID checks if the given string has the shape TabID produces.
func IsValidTabID(id string) bool {
	raw, ok := strings.CutPrefix(id, TabIDPrefix)
	if !ok || len(raw) != TabIDRawLength {
		return false
	}

	for _, char := range raw {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}
	return true
}

// ObjectID generates a UUID v4 string naming an uploaded object.
func ObjectID() string {
	return uuid.New().String()
}
