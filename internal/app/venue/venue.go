/*
Package venue models the marketplace's venues and bookings as the booking API returns them,
and checks a requested stay against a venue's capacity and existing bookings.
*/
package venue

import (
	"fmt"
	"time"

	"holidaze/internal/app/user"
	"holidaze/internal/pkg/errs"
)

var (
	// ErrNotFound is returned when a venue does not exist.
	ErrNotFound = errs.Define(errs.ErrVenueNotFound, "venue: not found")

	// ErrUnavailable is returned when a stay overlaps an existing booking.
	ErrUnavailable = errs.Define(errs.ErrVenueUnavailable, "venue: dates unavailable")

	// ErrInvalidBooking is returned for a stay the venue cannot take regardless of other bookings.
	ErrInvalidBooking = errs.Define(errs.ErrInvalidBooking, "venue: invalid booking")

	// ErrInvalidVenue is returned for a listing the booking API would reject.
	ErrInvalidVenue = errs.Define(errs.ErrInvalidVenue, "venue: invalid listing")
)

// Location is where a venue is.
type Location struct {
	Address   string  `json:"address,omitempty"`
	City      string  `json:"city,omitempty"`
	Zip       string  `json:"zip,omitempty"`
	Country   string  `json:"country,omitempty"`
	Continent string  `json:"continent,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lng       float64 `json:"lng,omitempty"`
}

// Amenities are the facilities a venue offers.
type Amenities struct {
	Wifi      bool `json:"wifi"`
	Parking   bool `json:"parking"`
	Breakfast bool `json:"breakfast"`
	Pets      bool `json:"pets"`
}

// Venue is a bookable place.
type Venue struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Media       []user.Media  `json:"media,omitempty"`
	Price       float64       `json:"price"`
	MaxGuests   int           `json:"maxGuests"`
	Rating      float64       `json:"rating"`
	Created     time.Time     `json:"created,omitzero"`
	Updated     time.Time     `json:"updated,omitzero"`
	Meta        Amenities     `json:"meta"`
	Location    Location      `json:"location"`
	Owner       *user.Profile `json:"owner,omitempty"`
	Bookings    []Booking     `json:"bookings,omitempty"`
}

// Booking is a reserved stay. DateTo is the departure day and is not itself occupied.
type Booking struct {
	ID       string        `json:"id"`
	DateFrom time.Time     `json:"dateFrom"`
	DateTo   time.Time     `json:"dateTo"`
	Guests   int           `json:"guests"`
	Created  time.Time     `json:"created,omitzero"`
	Updated  time.Time     `json:"updated,omitzero"`
	Venue    *Venue        `json:"venue,omitempty"`
	Customer *user.Profile `json:"customer,omitempty"`
}

// BookingInput is the body of a booking request.
type BookingInput struct {
	DateFrom time.Time `json:"dateFrom"`
	DateTo   time.Time `json:"dateTo"`
	Guests   int       `json:"guests"`
	VenueID  string    `json:"venueId"`
}

// VenueInput is the body of a venue listing request.
type VenueInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Media       []user.Media `json:"media,omitempty"`
	Price       float64      `json:"price"`
	MaxGuests   int          `json:"maxGuests"`
	Rating      float64      `json:"rating,omitempty"`
	Meta        Amenities    `json:"meta"`
	Location    Location     `json:"location"`
}

// Validate checks the fields the booking API requires.
func (in VenueInput) Validate() error {
	detail := ""
	switch {
	case in.Name == "":
		detail = "a name is required"
	case in.Description == "":
		detail = "a description is required"
	case in.Price < 0:
		detail = "the price must not be negative"
	case in.MaxGuests < 1:
		detail = "at least one guest must fit"
	case in.Rating < 0 || in.Rating > 5:
		detail = "the rating must be between 0 and 5"
	default:
		return nil
	}
	return &detailError{sentinel: ErrInvalidVenue, detail: detail}
}

// detailError attaches a user-presentable detail to a sentinel.
type detailError struct {
	sentinel error
	detail   string
}

func (e *detailError) Error() string       { return e.sentinel.Error() + ": " + e.detail }
func (e *detailError) Unwrap() error       { return e.sentinel }
func (e *detailError) ErrorDetail() string { return e.detail }

func invalid(format string, args ...any) error {
	return &detailError{sentinel: ErrInvalidBooking, detail: fmt.Sprintf(format, args...)}
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Nights returns the number of nights between from and to.
func Nights(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// CheckAvailability reports whether v can take guests from the day of from until the day of to.
// Stays are half-open: a booking ending on a day leaves that day free for the next arrival.
func CheckAvailability(v Venue, from, to time.Time, guests int) error {
	from, to = Day(from), Day(to)

	if !from.Before(to) {
		return invalid("the departure date must be after the arrival date")
	}
	if guests < 1 {
		return invalid("at least one guest is required")
	}
	if v.MaxGuests > 0 && guests > v.MaxGuests {
		return invalid("%s hosts at most %d guests", v.Name, v.MaxGuests)
	}

	for _, b := range v.Bookings {
		if Day(b.DateFrom).Before(to) && from.Before(Day(b.DateTo)) {
			return &detailError{
				sentinel: ErrUnavailable,
				detail: fmt.Sprintf("booked from %s to %s",
					Day(b.DateFrom).Format(time.DateOnly), Day(b.DateTo).Format(time.DateOnly)),
			}
		}
	}
	return nil
}

// TotalPrice is the price of a stay at v.
func TotalPrice(v Venue, from, to time.Time) float64 {
	return float64(Nights(from, to)) * v.Price
}
