/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and CLI error output.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrOriginNotAllowed:     {Code: ErrOriginNotAllowed, Message: "Requests from this origin are not allowed.", Status: http.StatusForbidden},

	// 2xxx: Marketplace Errors
	ErrVenueNotFound:    {Code: ErrVenueNotFound, Message: "Venue not found.", Status: http.StatusNotFound},
	ErrVenueUnavailable: {Code: ErrVenueUnavailable, Message: "The venue is already booked for some of those dates.", Status: http.StatusConflict},
	ErrInvalidBooking:   {Code: ErrInvalidBooking, Message: "Invalid booking: %s", Status: http.StatusBadRequest},
	ErrInvalidVenue:     {Code: ErrInvalidVenue, Message: "Invalid venue: %s", Status: http.StatusBadRequest},
	ErrFileSizeTooLarge: {Code: ErrFileSizeTooLarge, Message: "Image is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrFileTypeInvalid:  {Code: ErrFileTypeInvalid, Message: "Unsupported image type.", Status: http.StatusBadRequest},

	// 3xxx: Session and Identity Errors
	ErrMalformedToken:     {Code: ErrMalformedToken, Message: "Your session could not be read. Please sign in again.", Status: http.StatusUnauthorized},
	ErrExpiredToken:       {Code: ErrExpiredToken, Message: "Your session has expired. Please sign in again.", Status: http.StatusUnauthorized},
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrNotVenueManager:    {Code: ErrNotVenueManager, Message: "Only venue managers can do that.", Status: http.StatusForbidden},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect email or password.", Status: http.StatusUnauthorized},
	ErrRegistrationFailed: {Code: ErrRegistrationFailed, Message: "Registration failed: %s", Status: http.StatusBadRequest},

	// 4xxx: Remote API Errors
	ErrRemoteUnavailable:    {Code: ErrRemoteUnavailable, Message: "The booking service is unavailable: %s", Status: http.StatusBadGateway},
	ErrMalformedRemoteBody:  {Code: ErrMalformedRemoteBody, Message: "The booking service sent an unexpected response.", Status: http.StatusBadGateway},
	ErrStorageNotConfigured: {Code: ErrStorageNotConfigured, Message: "Image uploads are not enabled.", Status: http.StatusServiceUnavailable},
	ErrFileStorageFailed:    {Code: ErrFileStorageFailed, Message: "Image upload failed. Please try again.", Status: http.StatusBadGateway},

	// 5xxx: Internal System Errors
	ErrUnknown:    {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrLocalStore: {Code: ErrLocalStore, Message: "Local storage is unavailable.", Status: http.StatusInternalServerError},
}
