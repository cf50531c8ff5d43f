// Package booking wraps the resource endpoints of the booking API: events,
// venues, ticket and venue bookings, reviews and the account profile. Invoices
// and payments are derived client-side from confirmed bookings.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/occasio/occasio/client"
)

// Error carries the message shown to the user for a failed call: the
// backend's own message when it sent one, otherwise a fixed fallback.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Service calls the booking endpoints on behalf of the logged-in user.
type Service struct {
	api    *client.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used to count upcoming bookings.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service backed by api.
func NewService(api *client.Client, opts ...Option) *Service {
	s := &Service{api: api, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.logger = s.logger.With("component", "booking")
	return s
}

func (s *Service) fail(op, fallback string, err error) error {
	s.logger.Debug("request failed", slog.String("op", op), slog.String("error", err.Error()))
	return &Error{Op: op, Message: client.Message(err, fallback), Err: err}
}

func itemPath(collection string, id int) string {
	return collection + strconv.Itoa(id) + "/"
}

// ListBookings returns the caller's ticket bookings.
func (s *Service) ListBookings(ctx context.Context) ([]Booking, error) {
	var out []Booking
	if err := s.api.Get(ctx, "bookings/", &out); err != nil {
		return nil, s.fail("list bookings", "Failed to fetch bookings", err)
	}
	return out, nil
}

// GetBooking returns one ticket booking.
func (s *Service) GetBooking(ctx context.Context, id int) (Booking, error) {
	var out Booking
	if err := s.api.Get(ctx, itemPath("bookings/", id), &out); err != nil {
		return Booking{}, s.fail("get booking", "Failed to fetch booking", err)
	}
	return out, nil
}

// CreateBooking books tickets for an event.
func (s *Service) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	var out Booking
	if err := s.api.Post(ctx, "bookings/", req, &out); err != nil {
		return Booking{}, s.fail("create booking", "Failed to create booking", err)
	}
	s.logger.Info("booking created", slog.Int("booking_id", out.ID), slog.Int("event_id", out.Event))
	return out, nil
}

// CancelBooking marks a ticket booking cancelled.
func (s *Service) CancelBooking(ctx context.Context, id int) (Booking, error) {
	var out Booking
	if err := s.setStatus(ctx, itemPath("bookings/", id), StatusCancelled, &out); err != nil {
		return Booking{}, s.fail("cancel booking", "Failed to cancel booking", err)
	}
	return out, nil
}

// ConfirmBooking marks a ticket booking confirmed. Only staff may confirm
// bookings they do not own.
func (s *Service) ConfirmBooking(ctx context.Context, id int) (Booking, error) {
	var out Booking
	if err := s.setStatus(ctx, itemPath("bookings/", id), StatusConfirmed, &out); err != nil {
		return Booking{}, s.fail("confirm booking", "Failed to confirm booking", err)
	}
	s.logger.Info("booking confirmed", slog.Int("booking_id", out.ID))
	return out, nil
}

// ListVenueBookings returns the caller's venue bookings.
func (s *Service) ListVenueBookings(ctx context.Context) ([]VenueBooking, error) {
	var out []VenueBooking
	if err := s.api.Get(ctx, "venue-bookings/", &out); err != nil {
		return nil, s.fail("list venue bookings", "Failed to fetch venue bookings", err)
	}
	return out, nil
}

// GetVenueBooking returns one venue booking.
func (s *Service) GetVenueBooking(ctx context.Context, id int) (VenueBooking, error) {
	var out VenueBooking
	if err := s.api.Get(ctx, itemPath("venue-bookings/", id), &out); err != nil {
		return VenueBooking{}, s.fail("get venue booking", "Failed to fetch venue booking", err)
	}
	return out, nil
}

// CreateVenueBooking reserves a venue. The backend rejects past dates and
// dates the venue is already booked for.
func (s *Service) CreateVenueBooking(ctx context.Context, req VenueBookingRequest) (VenueBooking, error) {
	var out VenueBooking
	if err := s.api.Post(ctx, "venue-bookings/", req, &out); err != nil {
		return VenueBooking{}, s.fail("create venue booking", "Failed to create venue booking", err)
	}
	s.logger.Info("venue booked", slog.Int("booking_id", out.ID), slog.String("date", out.EventDate))
	return out, nil
}

// CancelVenueBooking marks a venue booking cancelled.
func (s *Service) CancelVenueBooking(ctx context.Context, id int) (VenueBooking, error) {
	var out VenueBooking
	if err := s.setStatus(ctx, itemPath("venue-bookings/", id), StatusCancelled, &out); err != nil {
		return VenueBooking{}, s.fail("cancel venue booking", "Failed to cancel venue booking", err)
	}
	return out, nil
}

// ConfirmVenueBooking marks a venue booking confirmed.
func (s *Service) ConfirmVenueBooking(ctx context.Context, id int) (VenueBooking, error) {
	var out VenueBooking
	if err := s.setStatus(ctx, itemPath("venue-bookings/", id), StatusConfirmed, &out); err != nil {
		return VenueBooking{}, s.fail("confirm venue booking", "Failed to confirm venue booking", err)
	}
	s.logger.Info("venue booking confirmed", slog.Int("booking_id", out.ID))
	return out, nil
}

func (s *Service) setStatus(ctx context.Context, path, status string, out any) error {
	return s.api.Patch(ctx, path, map[string]string{"status": status}, out)
}

// ListEvents returns every event.
func (s *Service) ListEvents(ctx context.Context) ([]Event, error) {
	var out []Event
	if err := s.api.Get(ctx, "events/", &out); err != nil {
		return nil, s.fail("list events", "Failed to fetch events", err)
	}
	return out, nil
}

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, id int) (Event, error) {
	var out Event
	if err := s.api.Get(ctx, itemPath("events/", id), &out); err != nil {
		return Event{}, s.fail("get event", "Failed to fetch event", err)
	}
	return out, nil
}

// ListVenues returns every venue.
func (s *Service) ListVenues(ctx context.Context) ([]Venue, error) {
	var out []Venue
	if err := s.api.Get(ctx, "venues/", &out); err != nil {
		return nil, s.fail("list venues", "Failed to fetch venues", err)
	}
	return out, nil
}

// GetVenue returns one venue.
func (s *Service) GetVenue(ctx context.Context, id int) (Venue, error) {
	var out Venue
	if err := s.api.Get(ctx, itemPath("venues/", id), &out); err != nil {
		return Venue{}, s.fail("get venue", "Failed to fetch venue", err)
	}
	return out, nil
}

// ListReviews returns all reviews.
func (s *Service) ListReviews(ctx context.Context) ([]Review, error) {
	var out []Review
	if err := s.api.Get(ctx, "feedback/", &out); err != nil {
		return nil, s.fail("list reviews", "Failed to fetch reviews", err)
	}
	return out, nil
}

// CreateReview leaves a review for an event.
func (s *Service) CreateReview(ctx context.Context, req ReviewRequest) (Review, error) {
	var out Review
	if err := s.api.Post(ctx, "feedback/", req, &out); err != nil {
		return Review{}, s.fail("create review", "Failed to submit review", err)
	}
	return out, nil
}

// GetProfile returns the account with the given ID.
func (s *Service) GetProfile(ctx context.Context, userID int) (Profile, error) {
	var out Profile
	if err := s.api.Get(ctx, itemPath("users/", userID), &out); err != nil {
		return Profile{}, s.fail("get profile", "Failed to load settings", err)
	}
	return out, nil
}

// UpdateProfile applies the set fields of upd.
func (s *Service) UpdateProfile(ctx context.Context, userID int, upd ProfileUpdate) (Profile, error) {
	var out Profile
	if err := s.api.Patch(ctx, itemPath("users/", userID), upd, &out); err != nil {
		return Profile{}, s.fail("update profile", "Failed to save settings", err)
	}
	return out, nil
}

// Invoices derives one invoice per confirmed booking, newest first.
func (s *Service) Invoices(ctx context.Context) ([]Invoice, error) {
	bookings, venueBookings, err := s.bothBookings(ctx)
	if err != nil {
		return nil, err
	}
	return invoicesFor(bookings, venueBookings), nil
}

// Payments derives one payment per confirmed booking, newest first.
func (s *Service) Payments(ctx context.Context) ([]Payment, error) {
	bookings, venueBookings, err := s.bothBookings(ctx)
	if err != nil {
		return nil, err
	}
	return paymentsFor(bookings, venueBookings), nil
}

// Dashboard loads every panel of the landing page concurrently. The first
// failure cancels the rest.
func (s *Service) Dashboard(ctx context.Context, userID int) (Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.GetProfile(ctx, userID)
		d.Profile = p
		return err
	})
	g.Go(func() error {
		b, err := s.ListBookings(ctx)
		d.Bookings = b
		return err
	})
	g.Go(func() error {
		vb, err := s.ListVenueBookings(ctx)
		d.VenueBookings = vb
		return err
	})
	g.Go(func() error {
		e, err := s.ListEvents(ctx)
		d.Events = e
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d.Invoices = invoicesFor(d.Bookings, d.VenueBookings)
	for _, inv := range d.Invoices {
		d.TotalSpent += inv.Amount
	}
	today := s.now().Format(time.DateOnly)
	for _, vb := range d.VenueBookings {
		if vb.Status != StatusCancelled && vb.EventDate >= today {
			d.Upcoming++
		}
	}
	events := make(map[int]Event, len(d.Events))
	for _, e := range d.Events {
		events[e.ID] = e
	}
	for _, b := range d.Bookings {
		if e, ok := events[b.Event]; ok && b.Status != StatusCancelled && e.Date >= today {
			d.Upcoming++
		}
	}
	return d, nil
}

func (s *Service) bothBookings(ctx context.Context) ([]Booking, []VenueBooking, error) {
	var (
		bookings      []Booking
		venueBookings []VenueBooking
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bookings, err = s.ListBookings(ctx)
		return err
	})
	g.Go(func() (err error) {
		venueBookings, err = s.ListVenueBookings(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return bookings, venueBookings, nil
}

func invoicesFor(bookings []Booking, venueBookings []VenueBooking) []Invoice {
	out := []Invoice{}
	for _, b := range bookings {
		if b.Status != StatusConfirmed {
			continue
		}
		out = append(out, Invoice{
			Number:      fmt.Sprintf("INV-E%06d", b.ID),
			Kind:        KindEvent,
			BookingID:   b.ID,
			Description: fmt.Sprintf("%d ticket(s) for event #%d", b.NumTickets, b.Event),
			Amount:      b.TotalPrice,
			IssuedAt:    b.BookingDate,
		})
	}
	for _, vb := range venueBookings {
		if vb.Status != StatusConfirmed {
			continue
		}
		out = append(out, Invoice{
			Number:      fmt.Sprintf("INV-V%06d", vb.ID),
			Kind:        KindVenue,
			BookingID:   vb.ID,
			Description: fmt.Sprintf("%s on %s", vb.VenueName, vb.EventDate),
			Amount:      vb.TotalPrice,
			IssuedAt:    vb.BookingDate,
		})
	}
	slices.SortStableFunc(out, func(a, b Invoice) int {
		return b.IssuedAt.Compare(a.IssuedAt)
	})
	return out
}

func paymentsFor(bookings []Booking, venueBookings []VenueBooking) []Payment {
	invoices := invoicesFor(bookings, venueBookings)
	out := make([]Payment, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, Payment{
			Reference: "PAY-" + inv.Number[len("INV-"):],
			Kind:      inv.Kind,
			BookingID: inv.BookingID,
			Amount:    inv.Amount,
			PaidAt:    inv.IssuedAt,
			Status:    "paid",
		})
	}
	return out
}
