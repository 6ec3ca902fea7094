package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iamdevroyal/blocpoint-client/internal/mocks"
	mocksauth "github.com/iamdevroyal/blocpoint-client/internal/mocks/auth"
	"github.com/iamdevroyal/blocpoint-client/internal/ports"
	"github.com/iamdevroyal/blocpoint-client/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	apiPrefix    = "/api/v1"
	expiredRoute = "/auth/login?expired=1"
)

type recorded struct {
	path   string
	header http.Header
}

// backend is a scripted fake API that records every request it receives.
type backend struct {
	t   *testing.T
	srv *httptest.Server
	mux *http.ServeMux

	mu       sync.Mutex
	requests []recorded
	hits     map[string]int
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{t: t, mux: http.NewServeMux(), hits: map[string]int{}}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, recorded{path: r.URL.Path, header: r.Header.Clone()})
		b.hits[r.URL.Path]++
		b.mu.Unlock()
		b.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) handle(path string, h http.HandlerFunc) {
	b.mux.HandleFunc(apiPrefix+path, h)
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[apiPrefix+path]
}

func (b *backend) recordedFor(path string) []recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recorded
	for _, r := range b.requests {
		if r.path == apiPrefix+path {
			out = append(out, r)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
}

// tokenGate serves 200 for the accepted bearer token and 401 otherwise.
func tokenGate(accepted string, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+accepted {
			unauthorized(w)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func refreshTo(from, to string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+from {
			unauthorized(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"token": to}})
	}
}

func seededStore(token string) *mocksauth.MemoryStateStore {
	seed := map[string]string{
		session.KeyIdentity: `{"id":"agent-1","first_name":"Ada"}`,
		session.KeyDeviceID: "device-1",
	}
	if token != "" {
		seed[session.KeyToken] = token
		seed[session.KeyTokenExpiresAt] = "2030-01-01T00:00:00Z"
	}
	return mocksauth.NewMemoryStateStore(seed)
}

func newTestClient(t *testing.T, b *backend, store ports.StateStore, nav ports.Navigator) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:   b.srv.URL + apiPrefix,
		UserAgent: "blocpoint-test/1.0",
		Tokens:    session.NewState(store),
		Navigator: nav,
	})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	store := session.NewState(mocksauth.NewMemoryStateStore(nil))

	_, err := New(Options{BaseURL: "http://api.test"})
	require.Error(t, err)

	_, err = New(Options{BaseURL: "ftp://api.test", Tokens: store})
	require.Error(t, err)

	_, err = New(Options{BaseURL: "http://", Tokens: store})
	require.Error(t, err)

	c, err := New(Options{BaseURL: "http://api.test/v1", Tokens: store})
	require.NoError(t, err)
	assert.Equal(t, expiredRoute, c.ExpiredRoute())
}

func TestClient_AttachesHeaders(t *testing.T) {
	b := newBackend(t)
	b.handle("/wallet/transfer", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
	})
	b.handle("/wallet", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"balance": 10}})
	})
	c := newTestClient(t, b, seededStore("tok-1"), nil)
	ctx := context.Background()

	_, err := c.Post(ctx, "/wallet/transfer", map[string]any{"amount": 100})
	require.NoError(t, err)
	_, err = c.Get(ctx, "/wallet", nil)
	require.NoError(t, err)

	post := b.recordedFor("/wallet/transfer")
	require.Len(t, post, 1)
	h := post[0].header
	assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "application/json", h.Get("Accept"))
	assert.Equal(t, "blocpoint-test/1.0", h.Get("User-Agent"))
	_, err = uuid.Parse(h.Get(HeaderCorrelationID))
	require.NoError(t, err)
	_, err = uuid.Parse(h.Get(HeaderIdempotencyKey))
	require.NoError(t, err)

	get := b.recordedFor("/wallet")
	require.Len(t, get, 1)
	assert.Empty(t, get[0].header.Get(HeaderIdempotencyKey), "GET must not carry an idempotency key")
	assert.NotEmpty(t, get[0].header.Get(HeaderCorrelationID))
	assert.NotEqual(t, h.Get(HeaderCorrelationID), get[0].header.Get(HeaderCorrelationID))
}

func TestClient_AnonymousRequestHasNoBearer(t *testing.T) {
	b := newBackend(t)
	b.handle("/auth/request-otp", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": nil})
	})
	c := newTestClient(t, b, seededStore(""), nil)

	_, err := c.Post(context.Background(), "/auth/request-otp", map[string]any{"phone": "+2348012345678"})
	require.NoError(t, err)

	reqs := b.recordedFor("/auth/request-otp")
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].header.Get("Authorization"))
}

func TestClient_RefreshAndRetry(t *testing.T) {
	b := newBackend(t)
	b.handle("/wallet/transfer", tokenGate("new", map[string]any{"data": map[string]any{"reference": "TX-1"}}))
	b.handle("/auth/refresh", refreshTo("old", "new"))

	store := seededStore("old")
	nav := &mocksauth.RecordingNavigator{}
	c := newTestClient(t, b, store, nav)

	resp, err := c.Post(context.Background(), "/wallet/transfer", map[string]any{"amount": 5})
	require.NoError(t, err)

	var ref string
	found, err := resp.Extract("data.reference", &ref)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "TX-1", ref)

	assert.Equal(t, 1, b.count("/auth/refresh"))
	assert.Equal(t, 2, b.count("/wallet/transfer"))
	assert.Empty(t, nav.Targets())

	snap := store.Snapshot()
	assert.Equal(t, "new", snap[session.KeyToken])
	assert.Equal(t, `{"id":"agent-1","first_name":"Ada"}`, snap[session.KeyIdentity])
	assert.Equal(t, "device-1", snap[session.KeyDeviceID])

	attempts := b.recordedFor("/wallet/transfer")
	require.Len(t, attempts, 2)
	assert.Equal(t, "Bearer old", attempts[0].header.Get("Authorization"))
	assert.Equal(t, "Bearer new", attempts[1].header.Get("Authorization"))
	assert.Equal(t,
		attempts[0].header.Get(HeaderIdempotencyKey),
		attempts[1].header.Get(HeaderIdempotencyKey),
		"retry reuses the logical call's idempotency key",
	)
	assert.NotEqual(t,
		attempts[0].header.Get(HeaderCorrelationID),
		attempts[1].header.Get(HeaderCorrelationID),
		"each transmission gets its own correlation id",
	)

	refresh := b.recordedFor("/auth/refresh")
	require.Len(t, refresh, 1)
	assert.Equal(t, "Bearer old", refresh[0].header.Get("Authorization"))
}

func TestClient_RefreshFailureExpiresTokenOnly(t *testing.T) {
	b := newBackend(t)
	b.handle("/wallet", tokenGate("never", nil))
	b.handle("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) { unauthorized(w) })

	ctrl := gomock.NewController(t)
	nav := mocks.NewMockNavigator(ctrl)
	nav.EXPECT().Navigate(gomock.Any(), expiredRoute).Return(nil).Times(1)

	store := seededStore("old")
	c := newTestClient(t, b, store, nav)

	_, err := c.Get(context.Background(), "/wallet", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "/wallet", apiErr.Path, "the original failure is surfaced, not the refresh failure")

	assert.Equal(t, 1, b.count("/auth/refresh"))
	assert.Equal(t, 1, b.count("/wallet"))
	assert.Equal(t, map[string]string{
		session.KeyIdentity: `{"id":"agent-1","first_name":"Ada"}`,
		session.KeyDeviceID: "device-1",
	}, store.Snapshot())
}

func TestClient_RetryStillUnauthorizedIsNotRetriedAgain(t *testing.T) {
	b := newBackend(t)
	b.handle("/wallet", func(w http.ResponseWriter, _ *http.Request) { unauthorized(w) })
	b.handle("/auth/refresh", refreshTo("old", "new"))

	store := seededStore("old")
	nav := &mocksauth.RecordingNavigator{}
	c := newTestClient(t, b, store, nav)

	_, err := c.Get(context.Background(), "/wallet", nil)
	require.True(t, IsUnauthorized(err))

	assert.Equal(t, 1, b.count("/auth/refresh"), "at most one refresh per call")
	assert.Equal(t, 2, b.count("/wallet"), "at most one retry per call")
	assert.Equal(t, []string{expiredRoute}, nav.Targets())

	snap := store.Snapshot()
	assert.NotContains(t, snap, session.KeyToken)
	assert.Contains(t, snap, session.KeyIdentity)
	assert.Contains(t, snap, session.KeyDeviceID)
}

func TestClient_AnonymousUnauthorizedSkipsRefresh(t *testing.T) {
	b := newBackend(t)
	b.handle("/auth/me", func(w http.ResponseWriter, _ *http.Request) { unauthorized(w) })
	b.handle("/auth/refresh", refreshTo("old", "new"))

	store := seededStore("")
	nav := &mocksauth.RecordingNavigator{}
	c := newTestClient(t, b, store, nav)

	_, err := c.Get(context.Background(), "/auth/me", nil)
	require.True(t, IsUnauthorized(err))

	assert.Zero(t, b.count("/auth/refresh"))
	assert.Equal(t, []string{expiredRoute}, nav.Targets())
	assert.Contains(t, store.Snapshot(), session.KeyIdentity)
}

func TestClient_RefreshEndpointDoesNotRecurse(t *testing.T) {
	b := newBackend(t)
	b.handle("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) { unauthorized(w) })

	store := seededStore("old")
	nav := &mocksauth.RecordingNavigator{}
	c := newTestClient(t, b, store, nav)

	_, err := c.Post(context.Background(), "/auth/refresh", nil)
	require.True(t, IsUnauthorized(err))

	assert.Equal(t, 1, b.count("/auth/refresh"))
	assert.Equal(t, []string{expiredRoute}, nav.Targets())
	assert.NotContains(t, store.Snapshot(), session.KeyToken)
}

func TestClient_NonUnauthorizedErrorsPassThrough(t *testing.T) {
	b := newBackend(t)
	b.handle("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The pin field is required.",
			"errors":  map[string][]string{"pin": {"The pin field is required."}},
		})
	})
	b.handle("/wallet", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	store := seededStore("tok")
	nav := &mocksauth.RecordingNavigator{}
	c := newTestClient(t, b, store, nav)
	ctx := context.Background()

	_, err := c.Post(ctx, "/auth/login", map[string]any{"phone": "+2348012345678"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "The pin field is required.", apiErr.Message)
	assert.Equal(t, "The pin field is required.", apiErr.FieldError("pin"))
	assert.Empty(t, apiErr.FieldError("phone"))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.HTTPStatus())

	_, err = c.Get(ctx, "/wallet", nil)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Contains(t, err.Error(), "GET /wallet: 500 Internal Server Error")

	assert.Zero(t, b.count("/auth/refresh"))
	assert.Empty(t, nav.Targets())
	assert.Equal(t, "tok", store.Snapshot()[session.KeyToken])
}

func TestClient_TransportErrorPassesThrough(t *testing.T) {
	b := newBackend(t)
	store := seededStore("tok")
	nav := &mocksauth.RecordingNavigator{}
	c := newTestClient(t, b, store, nav)
	b.srv.Close()

	_, err := c.Get(context.Background(), "/wallet", nil)
	require.Error(t, err)
	assert.Zero(t, StatusCode(err))
	assert.Empty(t, nav.Targets())
	assert.Equal(t, "tok", store.Snapshot()[session.KeyToken])
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	b := newBackend(t)

	// Hold both first attempts until they have both arrived so their 401s overlap.
	var arrived sync.WaitGroup
	arrived.Add(2)
	var firstAttempts atomic.Int32
	b.handle("/wallet", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer new" {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"balance": 1}})
			return
		}
		if firstAttempts.Add(1) <= 2 {
			arrived.Done()
			arrived.Wait()
		}
		unauthorized(w)
	})
	b.handle("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		refreshTo("old", "new")(w, r)
	})

	store := seededStore("old")
	nav := &mocksauth.RecordingNavigator{}
	c := newTestClient(t, b, store, nav)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), "/wallet", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, b.count("/auth/refresh"))
	assert.Equal(t, 4, b.count("/wallet"))
	assert.Empty(t, nav.Targets())
	assert.Equal(t, "new", store.Snapshot()[session.KeyToken])
}

func TestClient_CancelDuringRefreshKeepsSession(t *testing.T) {
	b := newBackend(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	started := make(chan struct{})
	b.handle("/wallet", func(w http.ResponseWriter, _ *http.Request) { unauthorized(w) })
	b.handle("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		unauthorized(w)
	})

	store := seededStore("old")
	nav := &mocksauth.RecordingNavigator{}
	c := newTestClient(t, b, store, nav)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Get(ctx, "/wallet", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, nav.Targets())
	assert.Equal(t, "old", store.Snapshot()[session.KeyToken])
}

func TestClient_CustomHooksAndHandlers(t *testing.T) {
	b := newBackend(t)
	b.handle("/wallet", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	fallback := &Response{StatusCode: http.StatusOK, Body: []byte(`{"data":{"cached":true}}`)}
	var seenAttempt Attempt
	c, err := New(Options{
		BaseURL: b.srv.URL + apiPrefix,
		Tokens:  session.NewState(seededStore("tok")),
		RequestHooks: []RequestHook{
			func(req *http.Request, _ *Call) error {
				seenAttempt = AttemptFromContext(req.Context())
				req.Header.Set("X-Client-Platform", "cli")
				return nil
			},
		},
		ErrorHandlers: []ErrorHandler{
			func(_ context.Context, _ *Call, err error) (*Response, error) {
				if IsStatus(err, http.StatusServiceUnavailable) {
					return fallback, nil
				}
				return nil, err
			},
		},
	})
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), "/wallet", nil)
	require.NoError(t, err)
	assert.Same(t, fallback, resp)
	assert.Equal(t, FirstAttempt, seenAttempt)

	reqs := b.recordedFor("/wallet")
	require.Len(t, reqs, 1)
	assert.Equal(t, "cli", reqs[0].header.Get("X-Client-Platform"))
}

func TestClient_CustomHandlerRunsOnceWhenRetryFails(t *testing.T) {
	b := newBackend(t)
	b.handle("/wallet", func(w http.ResponseWriter, _ *http.Request) { unauthorized(w) })
	b.handle("/auth/refresh", refreshTo("old", "new"))

	nav := &mocksauth.RecordingNavigator{}
	var calls atomic.Int32
	var seen []Attempt
	c, err := New(Options{
		BaseURL:   b.srv.URL + apiPrefix,
		Tokens:    session.NewState(seededStore("old")),
		Navigator: nav,
		ErrorHandlers: []ErrorHandler{
			func(_ context.Context, call *Call, err error) (*Response, error) {
				calls.Add(1)
				seen = append(seen, call.Attempt)
				return nil, err
			},
		},
	})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/wallet", nil)
	require.True(t, IsUnauthorized(err))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []Attempt{RetryAttempt}, seen)
	assert.Equal(t, 2, b.count("/wallet"))
	assert.Equal(t, []string{expiredRoute}, nav.Targets())
}

func TestClient_CustomHandlerSeesRetryFailureOnce(t *testing.T) {
	b := newBackend(t)
	var wallet atomic.Int32
	b.handle("/wallet", func(w http.ResponseWriter, _ *http.Request) {
		if wallet.Add(1) == 1 {
			unauthorized(w)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	b.handle("/auth/refresh", refreshTo("old", "new"))

	nav := &mocksauth.RecordingNavigator{}
	var calls atomic.Int32
	c, err := New(Options{
		BaseURL:   b.srv.URL + apiPrefix,
		Tokens:    session.NewState(seededStore("old")),
		Navigator: nav,
		ErrorHandlers: []ErrorHandler{
			func(_ context.Context, _ *Call, err error) (*Response, error) {
				calls.Add(1)
				return nil, err
			},
		},
	})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/wallet", nil)
	require.True(t, IsStatus(err, http.StatusServiceUnavailable))

	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, nav.Targets())
}

func TestResponse_ExtractAndData(t *testing.T) {
	resp := &Response{Body: []byte(`{"data":{"token":"t","agent":{"id":4,"first_name":"Ada"}}}`)}

	var agent map[string]any
	found, err := resp.Extract("data.agent || data.identity || data", &agent)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ada", agent["first_name"])

	var missing string
	found, err = resp.Extract("data.otp_token", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	data, err := resp.Data()
	require.NoError(t, err)
	assert.Equal(t, "t", data["token"])

	empty := &Response{}
	found, err = empty.Extract("data", &missing)
	require.NoError(t, err)
	assert.False(t, found)
	require.Error(t, empty.Decode(&agent))

	bad := &Response{Body: []byte("not json")}
	_, err = bad.Extract("data", &missing)
	require.Error(t, err)
}

func TestAttempt(t *testing.T) {
	assert.False(t, FirstAttempt.Retried())
	assert.True(t, RetryAttempt.Retried())

	ctx := context.Background()
	assert.Equal(t, FirstAttempt, AttemptFromContext(ctx))
	assert.Equal(t, RetryAttempt, AttemptFromContext(WithAttempt(ctx, RetryAttempt)))
}

func TestIsMutating(t *testing.T) {
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		assert.True(t, IsMutating(m), m)
	}
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		assert.False(t, IsMutating(m), m)
	}
}

func TestNewHTTPClient(t *testing.T) {
	hc, err := NewHTTPClient(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, hc.Timeout)
	assert.NotNil(t, hc.Jar)
}
