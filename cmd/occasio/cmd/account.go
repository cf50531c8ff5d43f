package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/occasio/occasio/booking"
)

var (
	settingsEmail string
	settingsPhone string
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "List invoices for confirmed bookings",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		list, err := a.bookings.Invoices(ctx)
		if err != nil {
			return err
		}
		return a.render(list, func() rows { return invoiceRows(list) })
	}),
}

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "List payments for confirmed bookings",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		list, err := a.bookings.Payments(ctx)
		if err != nil {
			return err
		}
		return a.render(list, func() rows { return paymentRows(list) })
	}),
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change account settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your account",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		user, err := a.requireUser()
		if err != nil {
			return err
		}
		p, err := a.bookings.GetProfile(ctx, user.ID)
		if err != nil {
			return err
		}
		return a.render(p, func() rows { return profileRows(p) })
	}),
}

var settingsUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change your email address or phone number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var upd booking.ProfileUpdate
		if cmd.Flags().Changed("email") {
			upd.Email = &settingsEmail
		}
		if cmd.Flags().Changed("phone") {
			upd.Phone = &settingsPhone
		}
		if upd.Email == nil && upd.Phone == nil {
			return errors.New("nothing to update; pass --email and/or --phone")
		}
		return withApp(func(ctx context.Context, a *app, _ []string) error {
			user, err := a.requireUser()
			if err != nil {
				return err
			}
			p, err := a.bookings.UpdateProfile(ctx, user.ID, upd)
			if err != nil {
				return err
			}
			return a.render(p, func() rows { return profileRows(p) })
		})(cmd, args)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Summarise your account, bookings and spending",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		user, err := a.requireUser()
		if err != nil {
			return err
		}
		d, err := a.bookings.Dashboard(ctx, user.ID)
		if err != nil {
			return err
		}
		return a.render(d, func() rows {
			return keyValues(
				"User", d.Profile.Username,
				"Role", d.Profile.Role,
				"Bookings", itoa(len(d.Bookings)),
				"Venue bookings", itoa(len(d.VenueBookings)),
				"Upcoming", itoa(d.Upcoming),
				"Invoices", itoa(len(d.Invoices)),
				"Total spent", money(d.TotalSpent),
				"Events on offer", itoa(len(d.Events)),
			)
		})
	}),
}

func init() {
	rootCmd.AddCommand(invoicesCmd, paymentsCmd, settingsCmd, dashboardCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsUpdateCmd)

	settingsUpdateCmd.Flags().StringVar(&settingsEmail, "email", "", "New email address")
	settingsUpdateCmd.Flags().StringVar(&settingsPhone, "phone", "", "New phone number")
}
