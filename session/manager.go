package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/occasio/occasio/client"
	"github.com/occasio/occasio/internal/util"
	"github.com/occasio/occasio/notify"
	"github.com/occasio/occasio/storage"
)

const (
	// DefaultRefreshInterval is how often the maintenance loop refreshes.
	DefaultRefreshInterval = 10 * time.Minute

	// renewTimeout bounds a refresh started by the renewal timer.
	renewTimeout = 30 * time.Second
)

// Manager drives the session lifecycle against the booking API.
type Manager struct {
	api      *client.Client
	store    storage.TokenStore
	notifier Notifier
	navigate func(route string)
	logger   *slog.Logger
	now      func() time.Time
	interval time.Duration
	lead     time.Duration
	floor    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	timer    *time.Timer
	timerGen uint64
	renewAt  time.Time
	closed   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sets where loading and toast signals go.
// If not set, a fresh notify.Broadcaster is used.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithNavigator sets the callback invoked with "/" after logout.
func WithNavigator(fn func(route string)) Option {
	return func(m *Manager) {
		m.navigate = fn
	}
}

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRefreshInterval sets the maintenance loop period.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock overrides the time source used to compute renewal delays.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a Manager, installs it as api's refresher and rehydrates the
// session from store. store must be the same TokenStore api reads from.
func New(api *client.Client, store storage.TokenStore, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("api client is required")
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}
	m := &Manager{
		api:      api,
		store:    store,
		navigate: func(string) {},
		now:      time.Now,
		interval: DefaultRefreshInterval,
		lead:     renewalLead,
		floor:    renewalFloor,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	m.logger = m.logger.With("component", "session")
	if m.notifier == nil {
		m.notifier = notify.New()
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	access, err := storage.Lookup(store, storage.KeyAccess)
	if err != nil {
		return nil, fmt.Errorf("reading stored session: %w", err)
	}
	if access != "" {
		m.state = Authenticated
	}
	api.SetRefresher(m)
	return m, nil
}

// Login authenticates with a username or email and password.
func (m *Manager) Login(ctx context.Context, identifier, password string) (Session, error) {
	m.notifier.ShowLoading()
	defer m.notifier.HideLoading()
	prev := m.setState(Authenticating)

	body := map[string]string{
		"username": util.NormalizeIdentifier(identifier),
		"password": password,
	}
	var res AuthResult
	if err := m.authCall(ctx, "auth/login/", body, &res); err != nil {
		m.setState(prev)
		m.notifier.AddToast("Login failed", notify.Danger)
		m.logger.Info("login failed", slog.String("error", err.Error()))
		return Session{}, err
	}
	if err := m.SetAuth(res); err != nil {
		m.settle()
		return Session{}, err
	}
	m.notifier.AddToast("Logged in", notify.Success)
	return m.Snapshot(), nil
}

// RequestOTP asks the backend to send a one-time code to identifier. When
// password is set, the credentials are checked first. The session is not
// changed.
func (m *Manager) RequestOTP(ctx context.Context, identifier, password string) (OTPChallenge, error) {
	m.notifier.ShowLoading()
	defer m.notifier.HideLoading()

	body := map[string]string{"identifier": util.NormalizeIdentifier(identifier)}
	if password != "" {
		body["password"] = password
	}
	var challenge OTPChallenge
	if err := m.authCall(ctx, "auth/otp/request/", body, &challenge); err != nil {
		return OTPChallenge{}, err
	}
	return challenge, nil
}

// VerifyOTP exchanges a one-time code for a session.
func (m *Manager) VerifyOTP(ctx context.Context, identifier, code string) (Session, error) {
	m.notifier.ShowLoading()
	defer m.notifier.HideLoading()
	prev := m.setState(Authenticating)

	body := map[string]string{
		"identifier": util.NormalizeIdentifier(identifier),
		"code":       code,
	}
	var res AuthResult
	if err := m.authCall(ctx, "auth/otp/verify/", body, &res); err != nil {
		m.setState(prev)
		m.notifier.AddToast("Login failed", notify.Danger)
		return Session{}, err
	}
	if err := m.SetAuth(res); err != nil {
		m.settle()
		return Session{}, err
	}
	m.notifier.AddToast("Logged in", notify.Success)
	m.navigate("/")
	return m.Snapshot(), nil
}

// Register creates an account and starts a session for it. Validation
// failures come back as *client.APIError; use FieldErrors to read them.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	m.notifier.ShowLoading()
	defer m.notifier.HideLoading()
	prev := m.setState(Authenticating)

	req.Email = util.NormalizeIdentifier(req.Email)
	var res AuthResult
	if err := m.authCall(ctx, "auth/register/", req, &res); err != nil {
		m.setState(prev)
		m.notifier.AddToast("Registration failed", notify.Danger)
		m.logger.Info("registration failed", slog.String("error", err.Error()))
		return Session{}, err
	}
	if err := m.SetAuth(res); err != nil {
		m.settle()
		return Session{}, err
	}
	m.notifier.AddToast("Account created", notify.Success)
	return m.Snapshot(), nil
}

// Logout ends the session. Server-side failures are logged and ignored; the
// local session is always cleared and the navigator sent to "/". The only
// error returned is a failure to clear the token store.
func (m *Manager) Logout(ctx context.Context) error {
	m.notifier.ShowLoading()

	refresh, err := storage.Lookup(m.store, storage.KeyRefresh)
	if err != nil {
		m.logger.Warn("reading refresh token for logout", slog.String("error", err.Error()))
	}

	// Refresh first so the logout call carries a valid bearer token.
	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Warn("refresh before logout failed", slog.String("error", err.Error()))
	}
	if rotated, _ := storage.Lookup(m.store, storage.KeyRefresh); rotated != "" {
		refresh = rotated
	}
	if refresh != "" {
		err := m.api.Do(ctx, &client.Request{
			Method:      http.MethodPost,
			Path:        "auth/logout/",
			Body:        map[string]string{"refresh": refresh},
			SkipRefresh: true,
		}, nil)
		if err != nil {
			m.logger.Warn("logout endpoint error ignored", slog.String("error", err.Error()))
		}
	}

	m.notifier.AddToast("Logged out", notify.Info)
	m.notifier.HideLoading()
	clearErr := m.ClearAuth()
	m.navigate("/")
	return clearErr
}

// Refresh exchanges the stored refresh token for a new access token and
// returns it. With no refresh token stored it returns "" and no error
// without contacting the server. If the server rejects the exchange the
// whole session is cleared and the error wraps ErrSessionExpired.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	refresh, err := storage.Lookup(m.store, storage.KeyRefresh)
	if err != nil {
		return "", fmt.Errorf("reading refresh token: %w", err)
	}
	if refresh == "" {
		return "", nil
	}

	m.notifier.ShowLoading()
	defer m.notifier.HideLoading()
	m.setState(Refreshing)

	var res AuthResult
	err = m.api.Do(ctx, &client.Request{
		Method:      http.MethodPost,
		Path:        "auth/token/refresh/",
		Body:        map[string]string{"refresh": refresh},
		SkipAuth:    true,
		SkipRefresh: true,
	}, &res)
	if err != nil {
		// A caller giving up is not a verdict on the refresh token.
		if ctx.Err() != nil {
			m.settle()
			return "", err
		}
		if clearErr := m.ClearAuth(); clearErr != nil {
			m.logger.Error("clearing session after failed refresh", slog.String("error", clearErr.Error()))
		}
		m.notifier.AddToast("Session expired", notify.Warning)
		m.logger.Warn("token refresh failed, session cleared", slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if res.Access == "" {
		m.settle()
		return "", nil
	}
	if err := m.SetAuth(AuthResult{Access: res.Access, Refresh: res.Refresh}); err != nil {
		m.settle()
		return "", err
	}
	m.logger.Debug("access token refreshed")
	return res.Access, nil
}

// SetAuth stores whichever of access, refresh and user are present and
// schedules renewal for a new access token.
func (m *Manager) SetAuth(res AuthResult) error {
	if res.Access != "" {
		if err := m.store.Set(storage.KeyAccess, res.Access); err != nil {
			return fmt.Errorf("storing access token: %w", err)
		}
	}
	if res.Refresh != "" {
		if err := m.store.Set(storage.KeyRefresh, res.Refresh); err != nil {
			return fmt.Errorf("storing refresh token: %w", err)
		}
	}
	if res.User != nil {
		data, err := json.Marshal(res.User)
		if err != nil {
			return fmt.Errorf("encoding user: %w", err)
		}
		if err := m.store.Set(storage.KeyUser, string(data)); err != nil {
			return fmt.Errorf("storing user: %w", err)
		}
	}
	if res.Access != "" {
		m.ScheduleRenewal(res.Access)
	}
	m.settle()
	return nil
}

// ClearAuth removes every stored credential and cancels pending renewal.
func (m *Manager) ClearAuth() error {
	m.mu.Lock()
	m.stopTimerLocked()
	m.state = Anonymous
	m.mu.Unlock()

	if err := m.store.Delete(storage.SessionKeys...); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// ScheduleRenewal arms the renewal timer for accessToken, replacing any
// pending one. Tokens without a readable exp claim are not scheduled.
func (m *Manager) ScheduleRenewal(accessToken string) {
	exp, err := TokenExpiry(accessToken)
	if err != nil {
		m.logger.Warn("not scheduling token renewal", slog.String("error", err.Error()))
		return
	}
	now := m.now()
	delay := renewalDelay(exp, now, m.lead, m.floor)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.stopTimerLocked()
	m.timerGen++
	gen := m.timerGen
	m.renewAt = now.Add(delay)
	m.timer = time.AfterFunc(delay, func() { m.renew(gen) })
	m.logger.Debug("token renewal scheduled", slog.Duration("in", delay))
}

// NextRenewal returns when the pending renewal fires, if one is scheduled.
func (m *Manager) NextRenewal() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renewAt, m.timer != nil
}

func (m *Manager) renew(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.timerGen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.renewAt = time.Time{}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, renewTimeout)
	defer cancel()
	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Warn("scheduled token renewal failed", slog.String("error", err.Error()))
	}
}

// stopTimerLocked expects m.mu to be held.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
	m.renewAt = time.Time{}
}

// Close cancels pending renewal, stops the maintenance loop and waits for
// any renewal already running.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// Snapshot returns the stored credentials.
func (m *Manager) Snapshot() Session {
	access, err := storage.Lookup(m.store, storage.KeyAccess)
	if err != nil {
		m.logger.Warn("reading access token", slog.String("error", err.Error()))
	}
	refresh, err := storage.Lookup(m.store, storage.KeyRefresh)
	if err != nil {
		m.logger.Warn("reading refresh token", slog.String("error", err.Error()))
	}
	return Session{AccessToken: access, RefreshToken: refresh, User: m.User()}
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether an access token is stored.
func (m *Manager) IsAuthenticated() bool {
	access, err := storage.Lookup(m.store, storage.KeyAccess)
	return err == nil && access != ""
}

// User returns the stored profile, or nil when there is none or it cannot
// be decoded.
func (m *Manager) User() *UserProfile {
	raw, err := storage.Lookup(m.store, storage.KeyUser)
	if err != nil || raw == "" {
		return nil
	}
	var u UserProfile
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		m.logger.Debug("stored user is not valid JSON", slog.String("error", err.Error()))
		return nil
	}
	return &u
}

// HasRole reports whether the logged-in user holds any of roles.
func (m *Manager) HasRole(roles ...string) bool {
	return m.IsAuthenticated() && hasRole(m.User(), roles...)
}

// RequireRole is HasRole as an error: ErrNotAuthenticated without a session,
// ErrForbidden when no role matches.
func (m *Manager) RequireRole(roles ...string) error {
	if !m.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if !hasRole(m.User(), roles...) {
		return fmt.Errorf("%w: requires role %v", ErrForbidden, roles)
	}
	return nil
}

// authCall posts to an unauthenticated auth endpoint. A stale bearer token
// would be rejected there, and a 401 means bad credentials, not expiry.
func (m *Manager) authCall(ctx context.Context, path string, body, out any) error {
	return m.api.Do(ctx, &client.Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        body,
		SkipAuth:    true,
		SkipRefresh: true,
	}, out)
}

func (m *Manager) setState(s State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state = s
	return prev
}

// settle derives the resting state from the stored access token.
func (m *Manager) settle() {
	s := Anonymous
	if m.IsAuthenticated() {
		s = Authenticated
	}
	m.setState(s)
}
