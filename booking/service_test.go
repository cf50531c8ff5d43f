package booking_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occasio/occasio/booking"
	"github.com/occasio/occasio/client"
	"github.com/occasio/occasio/internal/mockapi"
	"github.com/occasio/occasio/notify"
	"github.com/occasio/occasio/session"
	"github.com/occasio/occasio/storage/memory"
)

type fixture struct {
	backend *mockapi.Server
	svc     *booking.Service
	user    *session.UserProfile
}

// loggedIn starts a backend, logs in as a fresh user and returns a Service
// acting for them.
func loggedIn(t *testing.T) *fixture {
	t.Helper()
	backend := mockapi.New()
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	_, err := backend.AddUser("ravi", "ravi@example.com", "+919876543210", "secret12", "")
	require.NoError(t, err)

	store := memory.NewStore()
	api, err := client.New(ts.URL+"/api/", store, client.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	bus := notify.New()
	t.Cleanup(bus.Close)
	mgr, err := session.New(api, store, session.WithNotifier(bus))
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	sess, err := mgr.Login(testContext(t), "ravi", "secret12")
	require.NoError(t, err)
	return &fixture{backend: backend, svc: booking.NewService(api), user: sess.User}
}

func TestEventsAndVenues(t *testing.T) {
	f := loggedIn(t)

	venues, err := f.svc.ListVenues(testContext(t))
	require.NoError(t, err)
	require.Len(t, venues, 4)
	assert.Equal(t, booking.Money(5000000), venues[0].Price)

	venue, err := f.svc.GetVenue(testContext(t), venues[1].ID)
	require.NoError(t, err)
	assert.Equal(t, venues[1].Name, venue.Name)

	events, err := f.svc.ListEvents(testContext(t))
	require.NoError(t, err)
	require.NotEmpty(t, events)
	event, err := f.svc.GetEvent(testContext(t), events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, events[0].Title, event.Title)
}

func TestBookingLifecycle(t *testing.T) {
	f := loggedIn(t)
	events, err := f.svc.ListEvents(testContext(t))
	require.NoError(t, err)

	b, err := f.svc.CreateBooking(testContext(t), booking.BookingRequest{Event: events[0].ID, NumTickets: 3, Purpose: "party"})
	require.NoError(t, err)
	assert.Equal(t, events[0].Price*3, b.TotalPrice)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, f.user.ID, b.User)

	got, err := f.svc.GetBooking(testContext(t), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	cancelled, err := f.svc.CancelBooking(testContext(t), b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)

	list, err := f.svc.ListBookings(testContext(t))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, booking.StatusCancelled, list[0].Status)
}

func TestCreateBookingValidation(t *testing.T) {
	f := loggedIn(t)
	events, err := f.svc.ListEvents(testContext(t))
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(testContext(t), booking.BookingRequest{Event: events[0].ID})
	var bErr *booking.Error
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, "purpose: Purpose is required.", bErr.Message)
	assert.True(t, client.IsStatus(err, http.StatusBadRequest))
}

func TestVenueBookingDoubleBooked(t *testing.T) {
	f := loggedIn(t)
	venues, err := f.svc.ListVenues(testContext(t))
	require.NoError(t, err)
	date := time.Now().AddDate(0, 0, 14).Format(time.DateOnly)

	vb, err := f.svc.CreateVenueBooking(testContext(t), booking.VenueBookingRequest{
		Venue:     venues[0].ID,
		EventDate: date,
		Purpose:   "wedding",
	})
	require.NoError(t, err)
	assert.Equal(t, venues[0].Price, vb.TotalPrice)
	assert.Equal(t, venues[0].Name, vb.VenueName)

	_, err = f.svc.CreateVenueBooking(testContext(t), booking.VenueBookingRequest{
		Venue:     venues[0].ID,
		EventDate: date,
		Purpose:   "party",
	})
	require.Error(t, err)
	assert.Equal(t, "This venue is already booked for the selected date.", err.Error())

	// Cancelling frees the date.
	_, err = f.svc.CancelVenueBooking(testContext(t), vb.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateVenueBooking(testContext(t), booking.VenueBookingRequest{
		Venue:     venues[0].ID,
		EventDate: date,
		Purpose:   "party",
	})
	require.NoError(t, err)

	list, err := f.svc.ListVenueBookings(testContext(t))
	require.NoError(t, err)
	assert.Len(t, list, 2)
	got, err := f.svc.GetVenueBooking(testContext(t), vb.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, got.Status)
}

func TestNotFoundUsesServerDetail(t *testing.T) {
	f := loggedIn(t)

	_, err := f.svc.GetBooking(testContext(t), 9999)
	require.Error(t, err)
	assert.Equal(t, "Not found.", err.Error())
	assert.True(t, client.IsStatus(err, http.StatusNotFound))
}

func TestFallbackMessage(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/bookings/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ts := httptest.NewServer(r)
	defer ts.Close()
	api, err := client.New(ts.URL+"/api/", memory.NewStore())
	require.NoError(t, err)

	_, err = booking.NewService(api).CreateBooking(testContext(t), booking.BookingRequest{Event: 1, Purpose: "other"})
	var bErr *booking.Error
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, "Failed to create booking", bErr.Message)
	assert.Equal(t, "create booking", bErr.Op)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestReviews(t *testing.T) {
	f := loggedIn(t)
	events, err := f.svc.ListEvents(testContext(t))
	require.NoError(t, err)

	_, err = f.svc.CreateReview(testContext(t), booking.ReviewRequest{Event: events[0].ID, Rating: 9})
	assert.Error(t, err)

	r, err := f.svc.CreateReview(testContext(t), booking.ReviewRequest{Event: events[0].ID, Rating: 5, Comment: "Lovely evening"})
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, r.User)

	list, err := f.svc.ListReviews(testContext(t))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Lovely evening", list[0].Comment)
}

func TestProfileSettings(t *testing.T) {
	f := loggedIn(t)

	p, err := f.svc.GetProfile(testContext(t), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ravi@example.com", p.Email)

	phone := "+910000000000"
	p, err = f.svc.UpdateProfile(testContext(t), f.user.ID, booking.ProfileUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, phone, p.Phone)
	assert.Equal(t, "ravi@example.com", p.Email, "unset fields are left alone")

	_, err = f.svc.GetProfile(testContext(t), 1)
	assert.True(t, client.IsStatus(err, http.StatusForbidden))
}

func TestInvoicesPaymentsAndDashboard(t *testing.T) {
	f := loggedIn(t)
	events, err := f.svc.ListEvents(testContext(t))
	require.NoError(t, err)
	venues, err := f.svc.ListVenues(testContext(t))
	require.NoError(t, err)

	confirmed, err := f.svc.CreateBooking(testContext(t), booking.BookingRequest{Event: events[0].ID, NumTickets: 2, Purpose: "party"})
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(testContext(t), booking.BookingRequest{Event: events[1].ID, Purpose: "corporate"})
	require.NoError(t, err)
	vb, err := f.svc.CreateVenueBooking(testContext(t), booking.VenueBookingRequest{
		Venue:     venues[2].ID,
		EventDate: time.Now().AddDate(0, 2, 0).Format(time.DateOnly),
		Purpose:   "wedding",
	})
	require.NoError(t, err)

	invoices, err := f.svc.Invoices(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, invoices, "nothing confirmed yet")

	require.True(t, f.backend.SetBookingStatus(confirmed.ID, booking.StatusConfirmed))
	require.True(t, f.backend.SetVenueBookingStatus(vb.ID, booking.StatusConfirmed))

	invoices, err = f.svc.Invoices(testContext(t))
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	var total booking.Money
	for _, inv := range invoices {
		total += inv.Amount
	}
	assert.Equal(t, confirmed.TotalPrice+vb.TotalPrice, total)

	payments, err := f.svc.Payments(testContext(t))
	require.NoError(t, err)
	require.Len(t, payments, 2)

	d, err := f.svc.Dashboard(testContext(t), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ravi", d.Profile.Username)
	assert.Len(t, d.Bookings, 2)
	assert.Len(t, d.VenueBookings, 1)
	assert.NotEmpty(t, d.Events)
	assert.Len(t, d.Invoices, 2)
	assert.Equal(t, total, d.TotalSpent)
	assert.Equal(t, 3, d.Upcoming)
}

func TestDashboardFailsFast(t *testing.T) {
	f := loggedIn(t)

	_, err := f.svc.Dashboard(testContext(t), 1)
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, http.StatusForbidden))
}

func TestStaffConfirmsBooking(t *testing.T) {
	f := loggedIn(t)
	events, err := f.svc.ListEvents(testContext(t))
	require.NoError(t, err)
	b, err := f.svc.CreateBooking(testContext(t), booking.BookingRequest{Event: events[2].ID, Purpose: "other"})
	require.NoError(t, err)

	_, err = f.svc.ConfirmBooking(testContext(t), 424242)
	var bErr *booking.Error
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, "confirm booking", bErr.Op)

	admin := asAdmin(t, f.backend)
	confirmed, err := admin.ConfirmBooking(testContext(t), b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, confirmed.Status)

	all, err := admin.ListBookings(testContext(t))
	require.NoError(t, err)
	assert.Len(t, all, 1, "staff see every booking")
}

// asAdmin returns a Service logged in as the seeded administrator against
// the same backend.
func asAdmin(t *testing.T, backend *mockapi.Server) *booking.Service {
	t.Helper()
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)
	store := memory.NewStore()
	api, err := client.New(ts.URL+"/api/", store, client.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	mgr, err := session.New(api, store)
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	_, err = mgr.Login(testContext(t), "admin", "admin123")
	require.NoError(t, err)
	return booking.NewService(api)
}
