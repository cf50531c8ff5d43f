package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/occasio/occasio/session"
)

var (
	loginPassword string
	loginDirect   bool
	loginCode     string

	otpPassword string
	otpCode     string

	registerEmail    string
	registerPhone    string
	registerPassword string
	registerRole     string
)

// prompt reads one line from the user. When in is a terminal and secret is
// set the input is not echoed.
func prompt(a *app, label string, secret bool) (string, error) {
	fmt.Fprint(a.errOut, label)
	if f, ok := a.in.(*os.File); ok && secret && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(b), nil
	}
	if a.lines == nil {
		a.lines = bufio.NewReader(a.in)
	}
	line, err := a.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("no input for %q", strings.TrimSpace(label))
	}
	return line, nil
}

func valueOrPrompt(a *app, value, label string, secret bool) (string, error) {
	if value != "" {
		return value, nil
	}
	return prompt(a, label, secret)
}

func sessionRows(a *app) rows {
	snap := a.session.Snapshot()
	r := keyValues("State", a.session.State().String())
	if u := snap.User; u != nil {
		r.add("User", u.Username)
		r.add("Email", u.Email)
		r.add("Phone", u.Phone)
		r.add("Role", u.Role)
	}
	if exp, err := session.TokenExpiry(snap.AccessToken); err == nil {
		r.add("Access expires", ago(exp))
	}
	if exp, err := session.TokenExpiry(snap.RefreshToken); err == nil {
		r.add("Refresh expires", ago(exp))
	}
	if at, ok := a.session.NextRenewal(); ok {
		r.add("Next renewal", ago(at))
	}
	return r
}

type whoamiView struct {
	State          string               `json:"state" yaml:"state"`
	User           *session.UserProfile `json:"user,omitempty" yaml:"user,omitempty"`
	AccessExpires  *time.Time           `json:"access_expires,omitempty" yaml:"access_expires,omitempty"`
	RefreshExpires *time.Time           `json:"refresh_expires,omitempty" yaml:"refresh_expires,omitempty"`
}

func renderSession(a *app) error {
	snap := a.session.Snapshot()
	v := whoamiView{State: a.session.State().String(), User: snap.User}
	if exp, err := session.TokenExpiry(snap.AccessToken); err == nil {
		v.AccessExpires = &exp
	}
	if exp, err := session.TokenExpiry(snap.RefreshToken); err == nil {
		v.RefreshExpires = &exp
	}
	return a.render(v, func() rows { return sessionRows(a) })
}

var loginCmd = &cobra.Command{
	Use:   "login <username-or-email>",
	Short: "Log in with a password and a one-time code",
	Long: `Logs in in two steps: the password is checked and a one-time code is sent
to the account's email or phone, then the code is exchanged for tokens.
With --direct the password alone is exchanged for tokens.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		identifier := args[0]
		password, err := valueOrPrompt(a, loginPassword, "Password: ", true)
		if err != nil {
			return err
		}
		if loginDirect {
			if _, err := a.session.Login(ctx, identifier, password); err != nil {
				return err
			}
			return renderSession(a)
		}

		challenge, err := a.session.RequestOTP(ctx, identifier, password)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.errOut, challenge.Detail)
		if challenge.OTP != "" {
			fmt.Fprintf(a.errOut, "Development code: %s\n", challenge.OTP)
		}
		code, err := valueOrPrompt(a, loginCode, "Code: ", false)
		if err != nil {
			return err
		}
		if _, err := a.session.VerifyOTP(ctx, identifier, code); err != nil {
			return err
		}
		return renderSession(a)
	}),
}

var otpCmd = &cobra.Command{
	Use:   "otp",
	Short: "One-time code login, one step at a time",
}

var otpRequestCmd = &cobra.Command{
	Use:   "request <identifier>",
	Short: "Send a one-time code to an email address or phone number",
	Long: `Sends a one-time code. With --password the credentials are checked first;
without it the identifier only has to belong to an account.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		challenge, err := a.session.RequestOTP(ctx, args[0], otpPassword)
		if err != nil {
			return err
		}
		return a.render(challenge, func() rows {
			r := keyValues("Detail", challenge.Detail)
			if challenge.OTP != "" {
				r.add("Code", challenge.OTP)
			}
			return r
		})
	}),
}

var otpVerifyCmd = &cobra.Command{
	Use:   "verify <identifier>",
	Short: "Exchange a one-time code for a session",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		code, err := valueOrPrompt(a, otpCode, "Code: ", false)
		if err != nil {
			return err
		}
		if _, err := a.session.VerifyOTP(ctx, args[0], code); err != nil {
			return err
		}
		return renderSession(a)
	}),
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		email, err := valueOrPrompt(a, registerEmail, "Email: ", false)
		if err != nil {
			return err
		}
		password, err := valueOrPrompt(a, registerPassword, "Password: ", true)
		if err != nil {
			return err
		}
		_, err = a.session.Register(ctx, session.RegisterRequest{
			Username:  args[0],
			Email:     email,
			Password:  password,
			Password2: password,
			Phone:     registerPhone,
			Role:      registerRole,
		})
		if err != nil {
			return err
		}
		return renderSession(a)
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored tokens",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		return a.session.Logout(ctx)
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user and token lifetimes",
	Args:  cobra.NoArgs,
	RunE: withApp(func(_ context.Context, a *app, _ []string) error {
		if !a.session.IsAuthenticated() {
			return session.ErrNotAuthenticated
		}
		return renderSession(a)
	}),
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the refresh token for a new access token now",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		token, err := a.session.Refresh(ctx)
		if err != nil {
			return err
		}
		if token == "" {
			return session.ErrNotAuthenticated
		}
		return renderSession(a)
	}),
}

func init() {
	rootCmd.AddCommand(loginCmd, otpCmd, registerCmd, logoutCmd, whoamiCmd, refreshCmd)
	otpCmd.AddCommand(otpRequestCmd, otpVerifyCmd)

	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prompted for when omitted)")
	loginCmd.Flags().BoolVar(&loginDirect, "direct", false, "Skip the one-time code step")
	loginCmd.Flags().StringVar(&loginCode, "code", "", "One-time code (prompted for when omitted)")

	otpRequestCmd.Flags().StringVar(&otpPassword, "password", "", "Check this password before sending the code")
	otpVerifyCmd.Flags().StringVar(&otpCode, "code", "", "One-time code (prompted for when omitted)")

	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Email address (prompted for when omitted)")
	registerCmd.Flags().StringVar(&registerPhone, "phone", "", "Phone number")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "Password (prompted for when omitted)")
	registerCmd.Flags().StringVar(&registerRole, "role", "", "Account role")
}
