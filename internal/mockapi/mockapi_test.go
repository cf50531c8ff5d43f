package mockapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occasio/occasio/internal/mockapi"
)

func setupServer(t *testing.T, opts ...mockapi.Option) (*mockapi.Server, *httptest.Server) {
	t.Helper()
	s := mockapi.New(opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(testContext(t), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func login(t *testing.T, baseURL, username, password string) mockapi.TokenPair {
	t.Helper()
	resp := doJSON(t, http.MethodPost, baseURL+"/api/auth/login/", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[mockapi.TokenPair](t, resp)
}

func TestRegisterAndLogin(t *testing.T) {
	_, ts := setupServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register/", "", map[string]string{
		"username":  "asha",
		"email":     "asha@example.com",
		"password":  "secret12",
		"password2": "secret12",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pair := decode[mockapi.TokenPair](t, resp)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)
	assert.Equal(t, "asha", pair.User.Username)
	assert.Equal(t, "user", pair.User.Role)

	byEmail := login(t, ts.URL, "ASHA@example.com", "secret12")
	assert.Equal(t, pair.User.ID, byEmail.User.ID)
}

func TestRegisterFieldErrors(t *testing.T) {
	_, ts := setupServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register/", "", map[string]string{
		"username":  "admin",
		"password":  "abc",
		"password2": "abd",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := decode[map[string][]string](t, resp)
	assert.Contains(t, fields["username"], "A user with that username already exists.")
	assert.Contains(t, fields["password"], "Password fields didn't match.")
}

func TestLoginBadCredentials(t *testing.T) {
	_, ts := setupServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login/", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "No active account found with the given credentials", body["detail"])
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	_, ts := setupServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/bookings/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/bookings/", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExpireAccessTokensAndRefresh(t *testing.T) {
	s, ts := setupServer(t)
	pair := login(t, ts.URL, "admin", "admin123")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/venues/", pair.Access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s.ExpireAccessTokens()
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/venues/", pair.Access, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/token/refresh/", "", map[string]string{"refresh": pair.Refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fresh := decode[map[string]string](t, resp)
	require.NotEmpty(t, fresh["access"])
	assert.Equal(t, 1, s.RefreshCalls())

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/venues/", fresh["access"], nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAccessTokenExpiresWithClock(t *testing.T) {
	var offset atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	_, ts := setupServer(t, mockapi.WithClock(clock), mockapi.WithAccessTTL(time.Minute))
	pair := login(t, ts.URL, "admin", "admin123")

	offset.Store(int64(2 * time.Minute))
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/events/", pair.Access, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFailRefresh(t *testing.T) {
	s, ts := setupServer(t)
	pair := login(t, ts.URL, "admin", "admin123")

	s.FailRefresh(http.StatusUnauthorized)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/token/refresh/", "", map[string]string{"refresh": pair.Refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	s.FailRefresh(0)
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/token/refresh/", "", map[string]string{"refresh": pair.Refresh})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, s.RefreshCalls())
}

func TestLogoutBlacklistsRefreshToken(t *testing.T) {
	s, ts := setupServer(t)
	pair := login(t, ts.URL, "admin", "admin123")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/logout/", pair.Access, map[string]string{"refresh": pair.Refresh})
	require.Equal(t, http.StatusResetContent, resp.StatusCode)
	assert.Equal(t, 1, s.LogoutCalls())

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/token/refresh/", "", map[string]string{"refresh": pair.Refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/logout/", pair.Access, map[string]string{"refresh": pair.Refresh})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOTPFlow(t *testing.T) {
	s, ts := setupServer(t)
	_, err := s.AddUser("ravi", "ravi@example.com", "+919876543210", "secret12", "")
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/otp/request/", "", map[string]string{
		"identifier": "ravi@example.com",
		"password":   "secret12",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	challenge := decode[map[string]string](t, resp)
	assert.Equal(t, "OTP sent to email", challenge["detail"])
	require.Len(t, challenge["otp"], 6)

	code, ok := s.LastOTP("ravi@example.com")
	require.True(t, ok)
	assert.Equal(t, challenge["otp"], code)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/otp/verify/", "", map[string]string{
		"identifier": "ravi@example.com",
		"code":       "000000",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or expired OTP.", decode[map[string]string](t, resp)["detail"])

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/otp/verify/", "", map[string]string{
		"identifier": "ravi@example.com",
		"code":       code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decode[mockapi.TokenPair](t, resp)
	assert.Equal(t, "ravi", pair.User.Username)

	// Codes are single use.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/auth/otp/verify/", "", map[string]string{
		"identifier": "ravi@example.com",
		"code":       code,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOTPRequestWithoutEcho(t *testing.T) {
	s, ts := setupServer(t, mockapi.WithOTPEcho(false))
	_, err := s.AddUser("ravi", "", "+919876543210", "secret12", "")
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/otp/request/", "", map[string]string{
		"identifier": "+919876543210",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "OTP sent to phone", body["detail"])
	assert.NotContains(t, body, "otp")
}

func TestVenueBookingConflicts(t *testing.T) {
	s, ts := setupServer(t)
	pair := login(t, ts.URL, "admin", "admin123")
	venue := s.Venues()[0]
	date := time.Now().AddDate(0, 0, 10).Format("2006-01-02")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/venue-bookings/", pair.Access, map[string]any{
		"venue":      venue.ID,
		"event_date": date,
		"purpose":    "wedding",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	vb := decode[mockapi.VenueBooking](t, resp)
	assert.Equal(t, venue.Price, vb.TotalPrice)
	assert.Equal(t, "pending", vb.Status)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/venue-bookings/", pair.Access, map[string]any{
		"venue":      venue.ID,
		"event_date": date,
		"purpose":    "party",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := decode[map[string][]string](t, resp)
	assert.Equal(t, []string{"This venue is already booked for the selected date."}, fields["non_field_errors"])

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/venue-bookings/", pair.Access, map[string]any{
		"venue":      venue.ID,
		"event_date": "2000-01-01",
		"purpose":    "party",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields = decode[map[string][]string](t, resp)
	assert.Equal(t, []string{"Event date cannot be in the past."}, fields["event_date"])
}

func TestBookingTotalAndVisibility(t *testing.T) {
	s, ts := setupServer(t)
	_, err := s.AddUser("ravi", "ravi@example.com", "", "secret12", "")
	require.NoError(t, err)
	ravi := login(t, ts.URL, "ravi", "secret12")
	admin := login(t, ts.URL, "admin", "admin123")
	event := s.Events()[0]

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bookings/", ravi.Access, map[string]any{
		"event":       event.ID,
		"num_tickets": 3,
		"purpose":     "party",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	b := decode[mockapi.Booking](t, resp)
	assert.Equal(t, "1497.00", b.TotalPrice)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/bookings/", admin.Access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]mockapi.Booking](t, resp), 1)

	other, err := s.AddUser("meera", "", "", "secret12", "")
	require.NoError(t, err)
	meera := login(t, ts.URL, other.Username, "secret12")
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/bookings/", meera.Access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]mockapi.Booking](t, resp))
}

func TestHits(t *testing.T) {
	s, ts := setupServer(t)
	pair := login(t, ts.URL, "admin", "admin123")

	doJSON(t, http.MethodGet, ts.URL+"/api/events/", pair.Access, nil)
	doJSON(t, http.MethodGet, ts.URL+"/api/events/", pair.Access, nil)
	assert.Equal(t, 2, s.Hits(http.MethodGet, "/api/events/"))
	assert.Equal(t, 0, s.Hits(http.MethodGet, "/api/venues/"))
}
