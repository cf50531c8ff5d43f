package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/occasio/occasio/booking"
)

var (
	bookingEvent   int
	bookingTickets int
	bookingPurpose string

	venueBookingVenue        int
	venueBookingDate         string
	venueBookingPurpose      string
	venueBookingRequirements string
)

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// byID adapts a single-ID command body to withApp.
func byID(fn func(ctx context.Context, a *app, id int) error) func(*cobra.Command, []string) error {
	return withApp(func(ctx context.Context, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return fn(ctx, a, id)
	})
}

var bookingsCmd = &cobra.Command{
	Use:     "bookings",
	Aliases: []string{"booking"},
	Short:   "Manage event ticket bookings",
}

var bookingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your ticket bookings",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		list, err := a.bookings.ListBookings(ctx)
		if err != nil {
			return err
		}
		return a.render(list, func() rows { return bookingRows(list) })
	}),
}

var bookingsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one ticket booking",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, a *app, id int) error {
		b, err := a.bookings.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		return a.render(b, func() rows { return bookingRows([]booking.Booking{b}) })
	}),
}

var bookingsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Book tickets for an event",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		b, err := a.bookings.CreateBooking(ctx, booking.BookingRequest{
			Event:      bookingEvent,
			NumTickets: bookingTickets,
			Purpose:    bookingPurpose,
		})
		if err != nil {
			return err
		}
		return a.render(b, func() rows { return bookingRows([]booking.Booking{b}) })
	}),
}

var bookingsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a ticket booking",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, a *app, id int) error {
		b, err := a.bookings.CancelBooking(ctx, id)
		if err != nil {
			return err
		}
		return a.render(b, func() rows { return bookingRows([]booking.Booking{b}) })
	}),
}

var bookingsConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm a ticket booking (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, a *app, id int) error {
		if err := a.session.RequireRole("admin"); err != nil {
			return err
		}
		b, err := a.bookings.ConfirmBooking(ctx, id)
		if err != nil {
			return err
		}
		return a.render(b, func() rows { return bookingRows([]booking.Booking{b}) })
	}),
}

var venueBookingsCmd = &cobra.Command{
	Use:     "venue-bookings",
	Aliases: []string{"venue-booking"},
	Short:   "Manage whole-venue bookings",
}

var venueBookingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your venue bookings",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		list, err := a.bookings.ListVenueBookings(ctx)
		if err != nil {
			return err
		}
		return a.render(list, func() rows { return venueBookingRows(list) })
	}),
}

var venueBookingsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one venue booking",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, a *app, id int) error {
		vb, err := a.bookings.GetVenueBooking(ctx, id)
		if err != nil {
			return err
		}
		return a.render(vb, func() rows { return venueBookingRows([]booking.VenueBooking{vb}) })
	}),
}

var venueBookingsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Reserve a venue for a date",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		if _, err := time.Parse(time.DateOnly, venueBookingDate); err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		vb, err := a.bookings.CreateVenueBooking(ctx, booking.VenueBookingRequest{
			Venue:              venueBookingVenue,
			EventDate:          venueBookingDate,
			Purpose:            venueBookingPurpose,
			CustomRequirements: venueBookingRequirements,
		})
		if err != nil {
			return err
		}
		return a.render(vb, func() rows { return venueBookingRows([]booking.VenueBooking{vb}) })
	}),
}

var venueBookingsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a venue booking",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, a *app, id int) error {
		vb, err := a.bookings.CancelVenueBooking(ctx, id)
		if err != nil {
			return err
		}
		return a.render(vb, func() rows { return venueBookingRows([]booking.VenueBooking{vb}) })
	}),
}

var venueBookingsConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm a venue booking (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, a *app, id int) error {
		if err := a.session.RequireRole("admin"); err != nil {
			return err
		}
		vb, err := a.bookings.ConfirmVenueBooking(ctx, id)
		if err != nil {
			return err
		}
		return a.render(vb, func() rows { return venueBookingRows([]booking.VenueBooking{vb}) })
	}),
}

func init() {
	rootCmd.AddCommand(bookingsCmd, venueBookingsCmd)
	bookingsCmd.AddCommand(bookingsListCmd, bookingsGetCmd, bookingsCreateCmd, bookingsCancelCmd, bookingsConfirmCmd)
	venueBookingsCmd.AddCommand(venueBookingsListCmd, venueBookingsGetCmd, venueBookingsCreateCmd, venueBookingsCancelCmd, venueBookingsConfirmCmd)

	bookingsCreateCmd.Flags().IntVar(&bookingEvent, "event", 0, "Event ID")
	bookingsCreateCmd.Flags().IntVar(&bookingTickets, "tickets", 1, "Number of tickets")
	bookingsCreateCmd.Flags().StringVar(&bookingPurpose, "purpose", "", "Purpose of the booking (wedding, party, corporate, ...)")
	_ = bookingsCreateCmd.MarkFlagRequired("event")
	_ = bookingsCreateCmd.MarkFlagRequired("purpose")

	venueBookingsCreateCmd.Flags().IntVar(&venueBookingVenue, "venue", 0, "Venue ID")
	venueBookingsCreateCmd.Flags().StringVar(&venueBookingDate, "date", "", "Event date, YYYY-MM-DD")
	venueBookingsCreateCmd.Flags().StringVar(&venueBookingPurpose, "purpose", "", "Purpose of the booking")
	venueBookingsCreateCmd.Flags().StringVar(&venueBookingRequirements, "requirements", "", "Custom requirements")
	_ = venueBookingsCreateCmd.MarkFlagRequired("venue")
	_ = venueBookingsCreateCmd.MarkFlagRequired("date")
	_ = venueBookingsCreateCmd.MarkFlagRequired("purpose")
}
