package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occasio/occasio/client"
	"github.com/occasio/occasio/storage"
	"github.com/occasio/occasio/storage/memory"
)

// tokenServer accepts a single valid bearer token on GET /api/things/ and
// answers 401 otherwise.
type tokenServer struct {
	mu    sync.Mutex
	valid string
	seen  []string
}

func (ts *tokenServer) setValid(token string) {
	ts.mu.Lock()
	ts.valid = token
	ts.mu.Unlock()
}

func (ts *tokenServer) headers() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.seen...)
}

func (ts *tokenServer) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/things/", func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			ts.mu.Lock()
			ts.seen = append(ts.seen, auth)
			ok := auth == "Bearer "+ts.valid
			ts.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail":"Given token not valid for any token type"}`))
				return
			}
			w.Write([]byte(`{"name":"thing"}`))
		})
		r.Post("/echo/", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(body)
		})
		r.Post("/reset/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusResetContent)
		})
		r.Post("/invalid/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"username":["A user with that username already exists."],"password":"too short"}`))
		})
	})
	return r
}

type thing struct {
	Name string `json:"name"`
}

func setup(t *testing.T, opts ...client.Option) (*client.Client, *tokenServer, storage.TokenStore) {
	t.Helper()
	ts := &tokenServer{valid: "good"}
	srv := httptest.NewServer(ts.router())
	t.Cleanup(srv.Close)

	store := memory.NewStore()
	c, err := client.New(srv.URL+"/api", store, opts...)
	require.NoError(t, err)
	return c, ts, store
}

func TestNewValidation(t *testing.T) {
	store := memory.NewStore()

	_, err := client.New("not a url", store)
	assert.Error(t, err)

	_, err = client.New("http://example.com/api/", nil)
	assert.Error(t, err)

	c, err := client.New("http://example.com/api", store)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/api/", c.BaseURL())

	c, err = client.New("", store)
	require.NoError(t, err)
	assert.Equal(t, client.DefaultBaseURL, c.BaseURL())
}

func TestBearerFromStore(t *testing.T) {
	c, ts, store := setup(t)
	require.NoError(t, store.Set(storage.KeyAccess, "good"))

	var out thing
	require.NoError(t, c.Get(testContext(t), "things/", &out))
	assert.Equal(t, "thing", out.Name)
	assert.Equal(t, []string{"Bearer good"}, ts.headers())
}

func TestNoTokenNoHeader(t *testing.T) {
	c, ts, _ := setup(t)

	err := c.Get(testContext(t), "/things/", nil)
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, []string{""}, ts.headers())
}

func TestSkipAuth(t *testing.T) {
	c, ts, store := setup(t)
	require.NoError(t, store.Set(storage.KeyAccess, "good"))

	err := c.Do(testContext(t), &client.Request{Method: http.MethodGet, Path: "things/", SkipAuth: true, SkipRefresh: true}, nil)
	require.Error(t, err)
	assert.Equal(t, []string{""}, ts.headers())
}

func TestRefreshAndRetryOnce(t *testing.T) {
	var calls atomic.Int32
	c, ts, store := setup(t)
	require.NoError(t, store.Set(storage.KeyAccess, "stale"))
	c.SetRefresher(client.RefreshFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		require.NoError(t, store.Set(storage.KeyAccess, "good"))
		return "good", nil
	}))

	var out thing
	require.NoError(t, c.Get(testContext(t), "things/", &out))
	assert.Equal(t, "thing", out.Name)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"Bearer stale", "Bearer good"}, ts.headers())
}

func TestRetryStillUnauthorized(t *testing.T) {
	var calls atomic.Int32
	c, ts, store := setup(t)
	require.NoError(t, store.Set(storage.KeyAccess, "stale"))
	c.SetRefresher(client.RefreshFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "also-bad", nil
	}))

	err := c.Get(testContext(t), "things/", nil)
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, int32(1), calls.Load(), "one refresh per request")
	assert.Len(t, ts.headers(), 2, "one retry per request")
}

func TestRefreshFailureReturnsOriginal401(t *testing.T) {
	c, ts, store := setup(t)
	require.NoError(t, store.Set(storage.KeyAccess, "stale"))
	c.SetRefresher(client.RefreshFunc(func(ctx context.Context) (string, error) {
		return "", errors.New("session expired")
	}))

	err := c.Get(testContext(t), "things/", nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Given token not valid for any token type", apiErr.Detail)
	assert.Len(t, ts.headers(), 1, "no retry without a new token")
}

func TestEmptyRefreshDoesNotRetry(t *testing.T) {
	c, ts, store := setup(t)
	require.NoError(t, store.Set(storage.KeyAccess, "stale"))
	c.SetRefresher(client.RefreshFunc(func(ctx context.Context) (string, error) {
		return "", nil
	}))

	err := c.Get(testContext(t), "things/", nil)
	assert.True(t, client.IsStatus(err, http.StatusUnauthorized))
	assert.Len(t, ts.headers(), 1)
}

func TestSkipRefresh(t *testing.T) {
	var calls atomic.Int32
	c, _, store := setup(t)
	require.NoError(t, store.Set(storage.KeyAccess, "stale"))
	c.SetRefresher(client.RefreshFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "good", nil
	}))

	err := c.Do(testContext(t), &client.Request{Method: http.MethodGet, Path: "things/", SkipRefresh: true}, nil)
	assert.True(t, client.IsStatus(err, http.StatusUnauthorized))
	assert.Zero(t, calls.Load())
}

func TestConcurrent401sRefreshIndependently(t *testing.T) {
	const n = 5
	var calls atomic.Int32
	c, ts, store := setup(t)
	require.NoError(t, store.Set(storage.KeyAccess, "stale"))
	ts.setValid("good")
	c.SetRefresher(client.RefreshFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "good", nil
	}))

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Get(testContext(t), "things/", nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(n), calls.Load(), "refreshes are not deduplicated")
}

func TestPostEncodesBody(t *testing.T) {
	c, _, _ := setup(t)

	var out map[string]any
	require.NoError(t, c.Post(testContext(t), "echo/", map[string]any{"refresh": "r1"}, &out))
	assert.Equal(t, "r1", out["refresh"])
}

func TestResetContentSkipsDecode(t *testing.T) {
	c, _, _ := setup(t)

	var out map[string]any
	require.NoError(t, c.Post(testContext(t), "reset/", nil, &out))
	assert.Nil(t, out)
}

func TestFieldErrors(t *testing.T) {
	c, _, _ := setup(t)

	err := c.Post(testContext(t), "invalid/", map[string]string{}, nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, map[string][]string{
		"username": {"A user with that username already exists."},
		"password": {"too short"},
	}, apiErr.FieldErrors())
	assert.Equal(t, "password: too short; username: A user with that username already exists.", apiErr.Message("Registration failed"))
}

func TestMessageFallback(t *testing.T) {
	apiErr := &client.APIError{StatusCode: http.StatusInternalServerError, Body: []byte("<html>")}
	assert.Equal(t, "Failed to create booking", client.Message(apiErr, "Failed to create booking"))
	assert.Equal(t, "boom", client.Message(errors.New("boom"), "fallback"))
	assert.Equal(t, "fallback", client.Message(nil, "fallback"))
}

func TestTransportErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	store := memory.NewStore()
	c, err := client.New("http://127.0.0.1:1/api/", store, client.WithRefresher(client.RefreshFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "good", nil
	})))
	require.NoError(t, err)

	err = c.Get(testContext(t), "things/", nil)
	require.Error(t, err)
	var apiErr *client.APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Zero(t, calls.Load())
}
