package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"holidaze/internal/app/gateway"
	"holidaze/internal/app/venue"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/req"
	"holidaze/internal/pkg/resp"
)

const maxPageLimit = 100

type FavoritesView struct {
	Owner string   `json:"owner"`
	IDs   []string `json:"ids"`
}

type FavoriteView struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
}

// HandleListFavorites returns the favorites of the current user (or of the anonymous user).
func HandleListFavorites(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fav := deps.Account.Favorites
		resp.RespondSuccess(w, r, FavoritesView{Owner: fav.Owner(), IDs: fav.List()})
	}
}

func HandleGetFavorite(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		resp.RespondSuccess(w, r, FavoriteView{ID: id, Favorite: deps.Account.Favorites.IsFavorite(id)})
	}
}

// HandleAddFavorite marks a venue as favorite. It is idempotent.
func HandleAddFavorite(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if err := deps.Account.Favorites.Add(r.Context(), id); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, FavoriteView{ID: id, Favorite: true})
	}
}

// HandleRemoveFavorite unmarks a venue. It is idempotent.
func HandleRemoveFavorite(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Account.Favorites.Remove(r.Context(), id); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, FavoriteView{ID: id, Favorite: false})
	}
}

// HandleListVenues lists venues, or searches them when q is given.
// Query parameters: q, page, limit, sort, sortOrder.
func HandleListVenues(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		opts, ok := listOptions(query.Get("page"), query.Get("limit"))
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		opts.Sort = query.Get("sort")
		opts.SortOrder = query.Get("sortOrder")

		var (
			venues []venue.Venue
			err    error
		)
		if q := strings.TrimSpace(query.Get("q")); q != "" {
			venues, err = deps.Catalog.SearchVenues(r.Context(), q, opts)
		} else {
			venues, err = deps.Catalog.ListVenues(r.Context(), opts)
		}
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, venues)
	}
}

func listOptions(page, limit string) (gateway.ListOptions, bool) {
	var opts gateway.ListOptions
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return opts, false
		}
		opts.Page = n
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > maxPageLimit {
			return opts, false
		}
		opts.Limit = n
	}
	return opts, true
}

func HandleGetVenue(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := deps.Catalog.GetVenue(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, v)
	}
}

// HandleCreateVenue lists a new venue for the signed-in venue manager.
func HandleCreateVenue(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input venue.VenueInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		v, err := deps.Account.CreateVenue(r.Context(), input)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondCreated(w, r, v)
	}
}

func HandleDeleteVenue(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Account.DeleteVenue(r.Context(), id); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]string{"id": id})
	}
}

// HandleCreateBooking books a venue for the signed-in user.
func HandleCreateBooking(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input venue.BookingInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.VenueID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		booking, err := deps.Account.Book(r.Context(), input)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondCreated(w, r, booking)
	}
}
