package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/alert"
	"github.com/fjod/storefront/internal/logger"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithHTTPClient(srv.Client()), WithLogger(logger.Discard())}, opts...)
	return NewClient(srv.URL, opts...)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestSend_SetsBearerAndRequestID(t *testing.T) {
	headers := make(chan http.Header, 1)
	r := chi.NewRouter()
	r.Get("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		writeJSON(w, http.StatusOK, `[]`)
	})

	c := newTestClient(t, r, WithTokenSource(TokenFunc(func() string { return "tok-1" })))
	_, err := NewCartService(c).Get(context.Background())
	require.NoError(t, err)

	h := <-headers
	assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))
	assert.NotEmpty(t, h.Get("X-Request-ID"))
}

func TestSend_NoTokenNoHeader(t *testing.T) {
	headers := make(chan http.Header, 1)
	r := chi.NewRouter()
	r.Get("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		writeJSON(w, http.StatusOK, `[]`)
	})

	c := newTestClient(t, r, WithTokenSource(TokenFunc(func() string { return "" })))
	_, err := NewCartService(c).Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, (<-headers).Get("Authorization"))
}

func TestSend_ErrorTaxonomy(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"message":"Product is out of stock"}`)
	})
	r.Delete("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"message":"boom"}`)
	})
	r.Patch("/api/cart/{id}/increment", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":"item not in cart"}`)
	})

	svc := NewCartService(newTestClient(t, r))
	ctx := context.Background()

	err := svc.Add(ctx, "p1")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "Product is out of stock", UserMessage(err))

	err = svc.Clear(ctx)
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, unknownMessage, UserMessage(err))

	err = svc.Increment(ctx, "p1")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "item not in cart", UserMessage(err))
}

func TestSend_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithLogger(logger.Discard()), WithTimeout(time.Second))
	_, err := NewCartService(c).Get(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.Equal(t, networkMessage, UserMessage(err))
}

func TestSend_UnauthorizedRunsGuardOncePerEpisode(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"jwt expired"}`)
	})

	rec := &alert.Recorder{}
	guard := NewGuard(rec, 0)
	var logouts atomic.Int32
	guard.OnExpire(func(context.Context) { logouts.Add(1) })

	svc := NewCartService(newTestClient(t, r, WithUnauthorizedHandler(guard)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Get(context.Background())
			assert.True(t, IsAuth(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), logouts.Load())
	assert.Equal(t, 1, rec.Len())
	assert.Equal(t, 1, guard.Episodes())
	assert.True(t, guard.Active())

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, "Session Expired", last.Title)
	assert.True(t, last.Blocking)

	last.Acknowledge()
	assert.False(t, guard.Active())

	_, _ = svc.Get(context.Background())
	assert.Equal(t, 2, guard.Episodes())
	assert.Equal(t, int32(2), logouts.Load())
}

func TestGuard_SettleDelay(t *testing.T) {
	rec := &alert.Recorder{}
	guard := NewGuard(rec, 20*time.Millisecond)
	guard.Unauthorized(context.Background())
	guard.Acknowledge()

	assert.True(t, guard.Active())
	require.Eventually(t, func() bool { return !guard.Active() }, time.Second, 5*time.Millisecond)
}

func TestLogin_BadCredentialsBypassGuard(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusUnauthorized, `{"message":"Invalid credentials"}`)
	})

	guard := NewGuard(&alert.Recorder{}, 0)
	c := newTestClient(t, r,
		WithUnauthorizedHandler(guard),
		WithTokenSource(TokenFunc(func() string { return "stale" })))

	_, err := NewAuthService(c).Login(context.Background(), "a@b.c", "nope")
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Equal(t, 0, guard.Episodes())
}

func TestLogin_DecodesSession(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"token":"t1","user":{"_id":"u1","name":"Ann","email":"ann@example.com"}}}`)
	})

	s, err := NewAuthService(newTestClient(t, r)).Login(context.Background(), "ann@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "t1", s.Token)
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.ID)
	assert.Equal(t, "Ann", s.User.Name)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusBadGateway, `{}`)
	})

	svc := NewCartService(newTestClient(t, r, WithBreaker(2, time.Minute)))
	ctx := context.Background()

	_, err := svc.Get(ctx)
	assert.Equal(t, KindUnknown, KindOf(err))
	_, err = svc.Get(ctx)
	assert.Equal(t, KindUnknown, KindOf(err))

	_, err = svc.Get(ctx)
	assert.True(t, IsNetwork(err))
	assert.Equal(t, int32(2), hits.Load())
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	var hits atomic.Int32
	r := chi.NewRouter()
	r.Post("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusBadRequest, `{"message":"bad"}`)
	})

	svc := NewCartService(newTestClient(t, r, WithBreaker(1, time.Minute)))
	for i := 0; i < 3; i++ {
		assert.True(t, IsValidation(svc.Add(context.Background(), "p")))
	}
	assert.Equal(t, int32(3), hits.Load())
}
