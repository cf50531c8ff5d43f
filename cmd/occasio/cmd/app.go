package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/occasio/occasio/booking"
	"github.com/occasio/occasio/client"
	"github.com/occasio/occasio/config"
	"github.com/occasio/occasio/notify"
	"github.com/occasio/occasio/session"
	"github.com/occasio/occasio/storage"
	bboltstorage "github.com/occasio/occasio/storage/bbolt"
	"github.com/occasio/occasio/storage/memory"
	pgstorage "github.com/occasio/occasio/storage/postgres"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// app is everything a command needs, built from config for one invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    storage.TokenStore
	closers  []func()
	registry *prometheus.Registry
	api      *client.Client
	bus      *notify.Broadcaster
	session  *session.Manager
	bookings *booking.Service

	in     io.Reader
	lines  *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if profileName != "" {
		cfg.Profile = profileName
	}
	if outputFmt != "" {
		if err := config.ValidateOutput(outputFmt); err != nil {
			return nil, err
		}
		cfg.Output = outputFmt
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		in:     cmd.InOrStdin(),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: cfg.Level()}))

	a.store, err = a.openStore(cmd.Context())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.api, err = client.New(cfg.APIURL, a.store,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(a.logger),
		client.WithMetrics(client.NewMetrics(a.registry)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.bus = notify.New()
	unsubscribe := a.bus.Subscribe(a.printToast)
	a.closers = append(a.closers, unsubscribe, a.bus.Close)

	a.session, err = session.New(a.api, a.store,
		session.WithNotifier(a.bus),
		session.WithLogger(a.logger),
		session.WithRefreshInterval(cfg.RefreshInterval),
		session.WithNavigator(func(route string) {
			a.logger.Debug("navigate", slog.String("route", route))
		}),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.session.Close)

	a.bookings = booking.NewService(a.api, booking.WithLogger(a.logger))
	return a, nil
}

func (a *app) openStore(ctx context.Context) (storage.TokenStore, error) {
	var inner storage.TokenStore
	switch a.cfg.TokenStore {
	case config.StoreMemory:
		inner = memory.NewStore()
	case config.StorePostgres:
		s, err := pgstorage.NewStoreFromDSN(ctx, a.cfg.DatabaseURL, a.cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to open token store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		inner = s
	default:
		if err := os.MkdirAll(a.cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := bboltstorage.NewStoreFromFile(a.cfg.TokenFile(), a.cfg.Profile, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open token store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		inner = s
	}

	if a.cfg.StorePassphrase == "" {
		return inner, nil
	}
	sealed, err := storage.NewSealed(inner, a.cfg.StorePassphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock token store: %w", err)
	}
	return sealed, nil
}

// Close releases everything newApp opened, newest first.
func (a *app) Close() {
	if showMetrics && a.registry != nil {
		a.writeMetrics()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) writeMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Warn("gathering metrics", slog.String("error", err.Error()))
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(a.errOut, mf); err != nil {
			return
		}
	}
}

func (a *app) printToast(e notify.Event) {
	if e.Kind != notify.ToastAdded {
		return
	}
	style := infoStyle
	switch e.Toast.Severity {
	case notify.Success:
		style = successStyle
	case notify.Warning:
		style = warningStyle
	case notify.Danger:
		style = dangerStyle
	}
	fmt.Fprintln(a.errOut, style.Render(e.Toast.Message))
}

// requireUser returns the logged-in user or session.ErrNotAuthenticated.
func (a *app) requireUser() (*session.UserProfile, error) {
	if err := a.session.RequireRole(); err != nil {
		return nil, err
	}
	return a.session.User(), nil
}

// withApp builds an app for the duration of one command run.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return friendly(fn(cmd.Context(), a, args))
	}
}

var errNotLoggedIn = errors.New("not logged in; run `occasio login` first")

// messageError shows the server's message while keeping the cause for
// errors.Is and errors.As.
type messageError struct {
	msg string
	err error
}

func (e *messageError) Error() string { return e.msg }

func (e *messageError) Unwrap() error { return e.err }

// friendly turns errors into messages that tell the user what went wrong or
// what to do next.
func friendly(err error) error {
	if err == nil {
		return nil
	}
	var bErr *booking.Error
	var apiErr *client.APIError
	switch {
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, session.ErrSessionExpired):
		return fmt.Errorf("%w (%w)", errNotLoggedIn, err)
	case errors.Is(err, session.ErrForbidden):
		return fmt.Errorf("permission denied: %w", err)
	case errors.As(err, &bErr):
		return err
	case errors.As(err, &apiErr):
		return &messageError{msg: apiErr.Message(err.Error()), err: err}
	}
	return err
}
