// Package session owns the client-side authentication lifecycle: login,
// registration, OTP verification, token refresh, proactive renewal and
// logout. Tokens live in a storage.TokenStore so that every component reading
// them (notably the HTTP client) sees the same values.
package session

import (
	"errors"
	"slices"

	"github.com/occasio/occasio/notify"
)

var (
	// ErrSessionExpired is returned when the refresh token was rejected and
	// the session has been torn down.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated is returned by role checks when no user is logged in.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden is returned by role checks when the user lacks every
	// required role.
	ErrForbidden = errors.New("forbidden")
)

// State is the lifecycle phase of the session.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// UserProfile is the backend's description of the logged-in user. The
// session layer only interprets Role.
type UserProfile struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

// Session is a point-in-time view of the stored credentials.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *UserProfile
}

// Authenticated reports whether an access token is present.
func (s Session) Authenticated() bool { return s.AccessToken != "" }

// AuthResult is the payload returned by every endpoint that issues tokens.
// Any field may be empty.
type AuthResult struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    *UserProfile `json:"user,omitempty"`
}

// RegisterRequest holds sign-up fields. Password2, Phone and Role are sent
// only when set.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role,omitempty"`
}

// OTPChallenge is the server's answer to an OTP request. OTP is only filled
// in when the backend runs in debug mode.
type OTPChallenge struct {
	Detail string `json:"detail"`
	OTP    string `json:"otp,omitempty"`
}

// Notifier receives loading and toast signals. *notify.Broadcaster
// implements it.
type Notifier interface {
	ShowLoading()
	HideLoading()
	AddToast(message string, severity notify.Severity) string
}

// hasRole reports whether u holds any of roles. With no roles, any
// logged-in user qualifies.
func hasRole(u *UserProfile, roles ...string) bool {
	if u == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	return slices.Contains(roles, u.Role)
}
