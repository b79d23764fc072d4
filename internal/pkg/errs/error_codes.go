/*
Package errs provides custom error types and application-level error code constants.

These error codes identify failures both inside the client core and in the JSON
envelopes the companion server returns to local front ends.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrOriginNotAllowed indicates a browser request from an origin the companion server does not trust.
	ErrOriginNotAllowed = 1008
)

// 2xxx: Marketplace Errors
const (
	// ErrVenueNotFound indicates that the requested venue does not exist.
	ErrVenueNotFound = 2101

	// ErrVenueUnavailable indicates that the requested dates overlap an existing booking.
	ErrVenueUnavailable = 2102

	// ErrInvalidBooking indicates an inverted date range or a guest count the venue cannot host.
	ErrInvalidBooking = 2103

	// ErrInvalidVenue indicates a venue listing with missing or out-of-range fields.
	ErrInvalidVenue = 2104

	// ErrFileSizeTooLarge indicates that an uploaded image exceeds the size limit.
	ErrFileSizeTooLarge = 2201

	// ErrFileTypeInvalid indicates that an uploaded image has an unsupported type or extension.
	ErrFileTypeInvalid = 2202
)

// 3xxx: Session and Identity Errors
const (
	// ErrMalformedToken indicates that the stored bearer token could not be decoded.
	ErrMalformedToken = 3001

	// ErrExpiredToken indicates that the stored bearer token is past its expiry.
	ErrExpiredToken = 3002

	// ErrUnauthorized indicates that the action requires a signed-in user.
	ErrUnauthorized = 3003

	// ErrNotVenueManager indicates that the action is reserved for venue managers.
	ErrNotVenueManager = 3004

	// ErrInvalidCredentials indicates that the remote API rejected the login.
	ErrInvalidCredentials = 3005

	// ErrRegistrationFailed indicates that the remote API rejected the registration.
	ErrRegistrationFailed = 3006
)

// 4xxx: Remote API Errors
const (
	// ErrRemoteUnavailable indicates a network or HTTP failure talking to the booking API.
	ErrRemoteUnavailable = 4001

	// ErrMalformedRemoteBody indicates the booking API answered with an unexpected body shape.
	ErrMalformedRemoteBody = 4002

	// ErrStorageNotConfigured indicates that media uploads are disabled.
	ErrStorageNotConfigured = 4003

	// ErrFileStorageFailed indicates that the object storage call failed.
	ErrFileStorageFailed = 4004
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general internal error.
	ErrUnknown = 5000

	// ErrLocalStore indicates that the persistent key-value store failed.
	ErrLocalStore = 5001
)
