/*
Package handler provides HTTP handler functions for the signed-in user's profile and images.
*/
package handler

import (
	"net/http"

	"holidaze/internal/app/account"
	"holidaze/internal/app/storage"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/req"
	"holidaze/internal/pkg/resp"
)

type UpdateProfileInput struct {
	Bio          *string `json:"bio"`
	AvatarURL    string  `json:"avatarUrl"`
	AvatarAlt    string  `json:"avatarAlt"`
	BannerURL    string  `json:"bannerUrl"`
	BannerAlt    string  `json:"bannerAlt"`
	VenueManager *bool   `json:"venueManager"`
}

type ConfirmImageInput struct {
	Kind    storage.Kind `json:"kind"`
	FileKey string       `json:"fileKey"`
	Alt     string       `json:"alt"`
}

// HandleGetProfile returns the signed-in user's profile with its bio free of the favorites block.
func HandleGetProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Account.RequireAuthenticated()
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, snap.User)
	}
}

// HandleUpdateProfile edits the signed-in user's profile.
func HandleUpdateProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input UpdateProfileInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		profile, err := deps.Account.UpdateProfile(r.Context(), account.ProfileUpdate{
			Bio:          input.Bio,
			AvatarURL:    input.AvatarURL,
			AvatarAlt:    input.AvatarAlt,
			BannerURL:    input.BannerURL,
			BannerAlt:    input.BannerAlt,
			VenueManager: input.VenueManager,
		})
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, profile)
	}
}

// HandleGetAppearance resolves the avatar and banner to display, anonymous users included.
func HandleGetAppearance(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appearance, err := deps.Account.Appearance(r.Context())
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, appearance)
	}
}

// HandlePresignImage grants a time-limited URL for uploading an avatar or banner.
func HandlePresignImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Account.RequireAuthenticated()
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		var input storage.UploadRequest
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		upload, err := deps.Storage.PresignImage(r.Context(), snap.Handle(), input)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, upload)
	}
}

// HandleConfirmImage checks a finished upload and sets it as the user's avatar or banner.
func HandleConfirmImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Account.RequireAuthenticated()
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		var input ConfirmImageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		kind, err := storage.ParseKind(string(input.Kind))
		if err != nil || input.FileKey == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		url, err := deps.Storage.Confirm(r.Context(), snap.Handle(), input.FileKey)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		update := account.ProfileUpdate{}
		if kind == storage.KindAvatar {
			update.AvatarURL, update.AvatarAlt = url, input.Alt
		} else {
			update.BannerURL, update.BannerAlt = url, input.Alt
		}

		profile, err := deps.Account.UpdateProfile(r.Context(), update)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, profile)
	}
}

// HandleMyBookings lists the signed-in user's bookings.
func HandleMyBookings(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookings, err := deps.Account.MyBookings(r.Context())
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, bookings)
	}
}

// HandleMyVenues lists the venues the signed-in venue manager owns.
func HandleMyVenues(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		venues, err := deps.Account.MyVenues(r.Context())
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, venues)
	}
}
