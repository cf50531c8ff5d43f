package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/occasio/occasio/session"
)

var keepalivePoll time.Duration

var keepaliveCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Keep the stored session fresh until interrupted",
	Long: `Renews the access token shortly before it expires and refreshes on a fixed
interval (OCCASIO_REFRESH_INTERVAL), so other processes sharing the token
store always find a valid token. Stops on SIGINT or SIGTERM, or when the
session ends.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !a.session.IsAuthenticated() {
			return session.ErrNotAuthenticated
		}
		// Start with a fresh token so the first renewal is scheduled from it.
		if err := a.session.Focus(ctx); err != nil {
			return err
		}
		if a.cfg.RefreshInterval > 0 {
			a.session.StartMaintenance(ctx)
		}

		var last time.Time
		ticker := time.NewTicker(keepalivePoll)
		defer ticker.Stop()
		for {
			if at, ok := a.session.NextRenewal(); ok && !at.Equal(last) {
				last = at
				fmt.Fprintf(a.errOut, "Next renewal %s (%s)\n", ago(at), at.Format(time.TimeOnly))
			}
			if !a.session.IsAuthenticated() {
				return session.ErrSessionExpired
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}),
}

func init() {
	rootCmd.AddCommand(keepaliveCmd)
	keepaliveCmd.Flags().DurationVar(&keepalivePoll, "poll", time.Second, "How often to report on the session")
}
