// Package mockapi is an in-process stand-in for the booking backend. It
// implements the authentication and resource endpoints the SDK consumes,
// issues real HS256 JWTs, and exposes hooks tests use to force token expiry
// and server-side failures.
package mockapi

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/crypto/bcrypt"
)

//go:embed openapi.yaml
var openapiSpec []byte

type contextKey int

const userKey contextKey = iota

const (
	defaultAccessTTL  = 5 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	otpTTL            = 5 * time.Minute
)

type otpEntry struct {
	code      string
	userID    int
	expiresAt time.Time
}

// Server holds the backend's in-memory state.
type Server struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	echoOTP    bool
	now        func() time.Time
	logger     *slog.Logger

	mu            sync.Mutex
	generation    int
	accounts      map[int]*account
	otps          map[string]otpEntry
	blacklist     map[string]bool
	venues        []Venue
	events        []Event
	bookings      []Booking
	venueBookings []VenueBooking
	feedback      []Feedback
	nextID        int

	refreshFailStatus int
	logoutFailStatus  int

	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64
	hits         sync.Map // path -> *atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithRefreshTTL sets the lifetime of issued refresh tokens.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Server) { s.refreshTTL = d }
}

// WithSecret sets the HS256 signing secret.
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithOTPEcho includes the generated OTP in the request response, as the
// backend does in debug mode.
func WithOTPEcho(echo bool) Option {
	return func(s *Server) { s.echoOTP = echo }
}

// WithClock overrides the time source used for token issuance and checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server seeded with an admin account, sample venues and
// sample events.
func New(opts ...Option) *Server {
	s := &Server{
		secret:     []byte("occasio-mock-secret"),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		echoOTP:    true,
		now:        time.Now,
		accounts:   make(map[int]*account),
		otps:       make(map[string]otpEntry),
		blacklist:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	s.logger = s.logger.With("component", "mockapi")
	s.seed()
	return s
}

// Handler returns the full HTTP handler with every route under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Mount("/api", s.Router())
	return r
}

// Router returns a chi.Router with all API routes, to be mounted at /api.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.countHits)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/docs",
	}, nil))
	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/redoc",
	}, nil))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register/", s.Register)
		r.Post("/login/", s.Login)
		r.Post("/token/refresh/", s.RefreshToken)
		r.With(s.requireAuth).Post("/logout/", s.Logout)
		r.Post("/otp/request/", s.RequestOTP)
		r.Post("/otp/verify/", s.VerifyOTP)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/venues/", s.ListVenues)
		r.Get("/venues/{id}/", s.GetVenue)
		r.Get("/events/", s.ListEvents)
		r.Get("/events/{id}/", s.GetEvent)

		r.Get("/users/{id}/", s.GetUser)
		r.Patch("/users/{id}/", s.UpdateUser)

		r.Get("/bookings/", s.ListBookings)
		r.Post("/bookings/", s.CreateBooking)
		r.Get("/bookings/{id}/", s.GetBooking)
		r.Patch("/bookings/{id}/", s.UpdateBooking)

		r.Get("/venue-bookings/", s.ListVenueBookings)
		r.Post("/venue-bookings/", s.CreateVenueBooking)
		r.Get("/venue-bookings/{id}/", s.GetVenueBooking)
		r.Patch("/venue-bookings/{id}/", s.UpdateVenueBooking)

		r.Get("/feedback/", s.ListFeedback)
		r.Post("/feedback/", s.CreateFeedback)
	})
	return r
}

// requireAuth validates the bearer access token and stores the caller on
// the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		claims, err := s.validate(token, tokenTypeAccess)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		s.mu.Lock()
		acct, ok := s.accounts[claims.UserID]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountFromContext(ctx context.Context) *account {
	acct, _ := ctx.Value(userKey).(*account)
	return acct
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.hits.LoadOrStore(r.Method+" "+r.URL.Path, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
		next.ServeHTTP(w, r)
	})
}

// Hits returns how many times method+path (e.g. "GET /api/bookings/") was
// requested.
func (s *Server) Hits(method, path string) int {
	v, ok := s.hits.Load(method + " " + path)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}

// RefreshCalls returns how many refresh requests have been received.
func (s *Server) RefreshCalls() int { return int(s.refreshCalls.Load()) }

// LogoutCalls returns how many logout requests have been received.
func (s *Server) LogoutCalls() int { return int(s.logoutCalls.Load()) }

// ExpireAccessTokens invalidates every access token issued so far, as if
// they had all reached their expiry.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// FailRefresh makes the refresh endpoint answer with status. Zero restores
// normal behaviour.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	s.refreshFailStatus = status
	s.mu.Unlock()
}

// FailLogout makes the logout endpoint answer with status. Zero restores
// normal behaviour.
func (s *Server) FailLogout(status int) {
	s.mu.Lock()
	s.logoutFailStatus = status
	s.mu.Unlock()
}

// AddUser creates an account and returns its public representation.
func (s *Server) AddUser(username, email, phone, password, role string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return User{}, err
	}
	if role == "" {
		role = "user"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	acct := &account{
		User: User{
			ID:       s.nextID,
			Username: username,
			Email:    email,
			Phone:    phone,
			Role:     role,
		},
		passwordHash: hash,
		staff:        role == "admin",
	}
	s.accounts[acct.ID] = acct
	return acct.User, nil
}

// IssueTokens returns a fresh token pair for userID.
func (s *Server) IssueTokens(userID int) (TokenPair, error) {
	s.mu.Lock()
	acct, ok := s.accounts[userID]
	s.mu.Unlock()
	if !ok {
		return TokenPair{}, fmt.Errorf("user %d not found", userID)
	}
	access, refresh, err := s.issuePair(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh, User: acct.User}, nil
}

// LastOTP returns the pending OTP for identifier, if any.
func (s *Server) LastOTP(identifier string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.otps[otpKey(identifier)]
	return e.code, ok
}

func (s *Server) seed() {
	admin, err := s.AddUser("admin", "admin@occasio.test", "", "admin123", "admin")
	if err != nil {
		panic(err)
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	venues := []struct {
		name, location, description string
		capacity                    int
		price                       float64
	}{
		{"Elegant Guest House", "123 Wedding Lane, Kanpur, India", "Perfect for weddings and large celebrations.", 500, 50000},
		{"Business Conference Hall", "45 Corporate Street, Kanpur, India", "Ideal for meetings, conferences, and corporate events.", 200, 30000},
		{"Premium Guest House", "78 Premium Road, Kanpur, India", "Versatile space for weddings and meetings.", 300, 70000},
		{"Riverside Banquet Hall", "99 River View, Kanpur, India", "Beautiful venue with riverside views.", 400, 60000},
	}
	for _, v := range venues {
		s.nextID++
		s.venues = append(s.venues, Venue{
			ID:          s.nextID,
			Name:        v.name,
			Location:    v.location,
			Capacity:    v.capacity,
			Price:       money(v.price),
			Description: v.description,
			CreatedBy:   admin.ID,
			CreatedAt:   now,
		})
	}
	events := []struct {
		title string
		venue int
		price float64
	}{
		{"Spring Wedding Expo", 0, 499},
		{"Startup Founders Meetup", 1, 250},
		{"Riverside Music Night", 3, 799},
	}
	for i, e := range events {
		s.nextID++
		s.events = append(s.events, Event{
			ID:          s.nextID,
			Title:       e.title,
			Description: e.title + " at " + s.venues[e.venue].Name,
			Date:        now.AddDate(0, 1, i).Format(dateLayout),
			Time:        "18:00:00",
			Venue:       s.venues[e.venue].ID,
			CreatedBy:   admin.ID,
			Capacity:    s.venues[e.venue].Capacity,
			Price:       money(e.price),
		})
	}
}

const dateLayout = "2006-01-02"

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func otpKey(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return "email:" + strings.ToLower(identifier)
	}
	return "phone:" + identifier
}
