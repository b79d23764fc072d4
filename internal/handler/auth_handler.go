/*
Package handler provides HTTP handler functions for signing in and out of the shared session.
*/
package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"holidaze/internal/app/gateway"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/req"
	"holidaze/internal/pkg/resp"
)

const minPasswordLength = 8

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleGetSession returns the current session view. The token itself is never exposed.
func HandleGetSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Account.Session.Snapshot())
	}
}

// HandleLogin signs in with the booking API and starts the shared session.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if strings.TrimSpace(input.Email) == "" || input.Password == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		snap, err := deps.Account.Login(r.Context(), input.Email, input.Password)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, snap)
	}
}

// HandleRegister creates an account. It does not sign in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input gateway.RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Email) == "" ||
			utf8.RuneCountInString(input.Password) < minPasswordLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		profile, err := deps.Account.Register(r.Context(), input)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondCreated(w, r, profile)
	}
}

// HandleLogout ends the shared session. Signing out while anonymous succeeds.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Account.Logout(r.Context()); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, deps.Account.Session.Snapshot())
	}
}
