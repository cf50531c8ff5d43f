package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/occasio/occasio/booking"
)

var (
	reviewEvent   int
	reviewRating  int
	reviewComment string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Browse events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		list, err := a.bookings.ListEvents(ctx)
		if err != nil {
			return err
		}
		return a.render(list, func() rows { return eventRows(list) })
	}),
}

var eventsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, a *app, id int) error {
		e, err := a.bookings.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		return a.render(e, func() rows {
			return keyValues(
				"ID", itoa(e.ID),
				"Title", e.Title,
				"Description", e.Description,
				"When", e.Date+" "+e.Time,
				"Venue", itoa(e.Venue),
				"Capacity", itoa(e.Capacity),
				"Price", money(e.Price),
			)
		})
	}),
}

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Browse venues",
}

var venuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List venues",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		list, err := a.bookings.ListVenues(ctx)
		if err != nil {
			return err
		}
		return a.render(list, func() rows { return venueRows(list) })
	}),
}

var venuesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one venue",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, a *app, id int) error {
		v, err := a.bookings.GetVenue(ctx, id)
		if err != nil {
			return err
		}
		return a.render(v, func() rows {
			return keyValues(
				"ID", itoa(v.ID),
				"Name", v.Name,
				"Location", v.Location,
				"Description", v.Description,
				"Capacity", itoa(v.Capacity),
				"Price", money(v.Price),
			)
		})
	}),
}

var reviewsCmd = &cobra.Command{
	Use:     "reviews",
	Aliases: []string{"feedback"},
	Short:   "Read and write event reviews",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reviews",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		list, err := a.bookings.ListReviews(ctx)
		if err != nil {
			return err
		}
		return a.render(list, func() rows { return reviewRows(list) })
	}),
}

var reviewsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Review an event",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		if reviewRating < 1 || reviewRating > 5 {
			return fmt.Errorf("--rating must be between 1 and 5, got %d", reviewRating)
		}
		r, err := a.bookings.CreateReview(ctx, booking.ReviewRequest{
			Event:   reviewEvent,
			Rating:  reviewRating,
			Comment: reviewComment,
		})
		if err != nil {
			return err
		}
		return a.render(r, func() rows { return reviewRows([]booking.Review{r}) })
	}),
}

func init() {
	rootCmd.AddCommand(eventsCmd, venuesCmd, reviewsCmd)
	eventsCmd.AddCommand(eventsListCmd, eventsGetCmd)
	venuesCmd.AddCommand(venuesListCmd, venuesGetCmd)
	reviewsCmd.AddCommand(reviewsListCmd, reviewsCreateCmd)

	reviewsCreateCmd.Flags().IntVar(&reviewEvent, "event", 0, "Event ID")
	reviewsCreateCmd.Flags().IntVar(&reviewRating, "rating", 0, "Rating from 1 to 5")
	reviewsCreateCmd.Flags().StringVar(&reviewComment, "comment", "", "Comment")
	_ = reviewsCreateCmd.MarkFlagRequired("event")
	_ = reviewsCreateCmd.MarkFlagRequired("rating")
}
