package kv

import "holidaze/internal/app/user"

// SessionKey holds the canonical session record.
const SessionKey = "holidaze:session"

// AnonymousHandle owns the favorites of a signed-out user.
const AnonymousHandle = "anonymous"

const keyPrefix = "holidaze:"

// FavoritesKey is the local copy of a user's favorite venue ids.
func FavoritesKey(handle string) string {
	if handle == "" {
		handle = AnonymousHandle
	}
	return keyPrefix + "favorites:" + handle
}

// AvatarKey is the local avatar override of a user acting in role.
func AvatarKey(handle string, role user.Role) string {
	return keyPrefix + "avatar:" + handle + ":" + string(role)
}

// BannerKey is the local banner override of a user acting in role.
func BannerKey(handle string, role user.Role) string {
	return keyPrefix + "banner:" + handle + ":" + string(role)
}

// RegistrationIntentKey records the role a user asked for at registration.
func RegistrationIntentKey(handle string) string {
	return keyPrefix + "register-intent:" + handle
}

// DerivedUserKeys lists every key that belongs to handle and must go when the user signs out.
// The favorites copy is not among them: it is re-derived from the remote profile on next load.
func DerivedUserKeys(handle string) []string {
	keys := make([]string, 0, 2*len(user.Roles)+1)
	for _, role := range user.Roles {
		keys = append(keys, AvatarKey(handle, role), BannerKey(handle, role))
	}
	return append(keys, RegistrationIntentKey(handle))
}
