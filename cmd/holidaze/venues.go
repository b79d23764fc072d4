package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"holidaze/internal/app/gateway"
	"holidaze/internal/app/venue"
)

var (
	listOpts gateway.ListOptions

	venueInput venue.VenueInput

	bookFrom   string
	bookTo     string
	bookGuests int
)

var favCmd = &cobra.Command{
	Use:   "fav",
	Short: "Manage favorite venues",
}

var favListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite venue ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			for _, id := range a.account.Favorites.List() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}

var favAddCmd = &cobra.Command{
	Use:   "add <venue-id>",
	Short: "Mark a venue as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.account.Favorites.Add(cmd.Context(), strings.TrimSpace(args[0]))
		})
	},
}

var favRemoveCmd = &cobra.Command{
	Use:   "remove <venue-id>",
	Short: "Unmark a favorite venue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.account.Favorites.Remove(cmd.Context(), args[0])
		})
	},
}

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Browse and manage venues",
}

var venuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List venues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			venues, err := a.api.ListVenues(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			return printVenues(cmd, a, venues)
		})
	},
}

var venuesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search venues by name and description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			venues, err := a.api.SearchVenues(cmd.Context(), strings.Join(args, " "), listOpts)
			if err != nil {
				return err
			}
			return printVenues(cmd, a, venues)
		})
	},
}

var venuesShowCmd = &cobra.Command{
	Use:   "show <venue-id>",
	Short: "Show a venue with its bookings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			v, err := a.api.GetVenue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		})
	},
}

var venuesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "List a new venue (venue managers)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			v, err := a.account.CreateVenue(cmd.Context(), venueInput)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created venue %s\n", v.ID)
			return nil
		})
	},
}

var venuesDeleteCmd = &cobra.Command{
	Use:   "delete <venue-id>",
	Short: "Delete one of your venues (venue managers)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.account.DeleteVenue(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted venue %s\n", args[0])
			return nil
		})
	},
}

var bookCmd = &cobra.Command{
	Use:   "book <venue-id>",
	Short: "Book a stay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := time.Parse(time.DateOnly, bookFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := time.Parse(time.DateOnly, bookTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		return withApp(cmd.Context(), func(a *app) error {
			b, err := a.account.Book(cmd.Context(), venue.BookingInput{
				VenueID:  args[0],
				DateFrom: from,
				DateTo:   to,
				Guests:   bookGuests,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Booked %s: %d nights from %s (booking %s)\n",
				args[0], venue.Nights(from, to), from.Format(time.DateOnly), b.ID)
			return nil
		})
	},
}

// printVenues writes a table of venues, starring favorites.
func printVenues(cmd *cobra.Command, a *app, venues []venue.Venue) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tPRICE\tGUESTS\tCITY")
	for _, v := range venues {
		star := ""
		if a.account.Favorites.IsFavorite(v.ID) {
			star = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%d\t%s\n", star, v.ID, v.Name, v.Price, v.MaxGuests, v.Location.City)
	}
	return w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{venuesListCmd, venuesSearchCmd} {
		c.Flags().IntVar(&listOpts.Page, "page", 0, "page number")
		c.Flags().IntVar(&listOpts.Limit, "limit", 0, "venues per page")
		c.Flags().StringVar(&listOpts.Sort, "sort", "", "sort field, e.g. price")
		c.Flags().StringVar(&listOpts.SortOrder, "order", "", "asc or desc")
	}

	f := venuesCreateCmd.Flags()
	f.StringVar(&venueInput.Name, "name", "", "venue name")
	f.StringVar(&venueInput.Description, "description", "", "venue description")
	f.Float64Var(&venueInput.Price, "price", 0, "price per night")
	f.IntVar(&venueInput.MaxGuests, "max-guests", 1, "maximum number of guests")
	f.StringVar(&venueInput.Location.City, "city", "", "city")
	f.StringVar(&venueInput.Location.Country, "country", "", "country")
	f.BoolVar(&venueInput.Meta.Wifi, "wifi", false, "wifi available")
	f.BoolVar(&venueInput.Meta.Parking, "parking", false, "parking available")
	f.BoolVar(&venueInput.Meta.Breakfast, "breakfast", false, "breakfast included")
	f.BoolVar(&venueInput.Meta.Pets, "pets", false, "pets allowed")

	bookCmd.Flags().StringVar(&bookFrom, "from", "", "arrival date (YYYY-MM-DD)")
	bookCmd.Flags().StringVar(&bookTo, "to", "", "departure date (YYYY-MM-DD)")
	bookCmd.Flags().IntVar(&bookGuests, "guests", 1, "number of guests")
	_ = bookCmd.MarkFlagRequired("from")
	_ = bookCmd.MarkFlagRequired("to")

	favCmd.AddCommand(favListCmd, favAddCmd, favRemoveCmd)
	venuesCmd.AddCommand(venuesListCmd, venuesSearchCmd, venuesShowCmd, venuesCreateCmd, venuesDeleteCmd)
	rootCmd.AddCommand(favCmd, venuesCmd, bookCmd)
}
