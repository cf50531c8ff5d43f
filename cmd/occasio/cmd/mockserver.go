package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/occasio/occasio/internal/mockapi"
)

var (
	mockPort       int
	mockAccessTTL  time.Duration
	mockRefreshTTL time.Duration
	mockSecret     string
	mockNoEcho     bool
	mockTLSCert    string
	mockTLSKey     string
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run an in-memory booking API for development",
	Long: `Serves the booking API from memory: JWT auth with refresh and logout,
one-time codes, events, venues, bookings and reviews. Nothing is persisted.
Sign in as admin / admin123 or register a new account.
API docs are served at /api/docs and /api/redoc.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))
		opts := []mockapi.Option{
			mockapi.WithAccessTTL(mockAccessTTL),
			mockapi.WithRefreshTTL(mockRefreshTTL),
			mockapi.WithOTPEcho(!mockNoEcho),
			mockapi.WithLogger(logger),
		}
		if mockSecret != "" {
			opts = append(opts, mockapi.WithSecret([]byte(mockSecret)))
		}
		backend := mockapi.New(opts...)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount("/", backend.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", mockPort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		useTLS := mockTLSCert != "" && mockTLSKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(mockTLSCert, mockTLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out)
		scheme := "http"
		if useTLS {
			scheme = "https"
		}
		fmt.Fprintf(out, "Serving on %s://localhost:%d/api/ (access tokens live %s)...\n", scheme, mockPort, mockAccessTTL)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(mockServerCmd)
	mockServerCmd.Flags().IntVarP(&mockPort, "port", "p", 8000, "Port to listen on")
	mockServerCmd.Flags().DurationVar(&mockAccessTTL, "access-ttl", 5*time.Minute, "Access token lifetime")
	mockServerCmd.Flags().DurationVar(&mockRefreshTTL, "refresh-ttl", 24*time.Hour, "Refresh token lifetime")
	mockServerCmd.Flags().StringVar(&mockSecret, "secret", "", "HS256 signing secret (a fixed development secret when empty)")
	mockServerCmd.Flags().BoolVar(&mockNoEcho, "no-otp-echo", false, "Do not return one-time codes in API responses")
	mockServerCmd.Flags().StringVar(&mockTLSCert, "tls-cert", "", "Path to TLS certificate file")
	mockServerCmd.Flags().StringVar(&mockTLSKey, "tls-key", "", "Path to TLS key file")
}
