package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 5) // 10 per minute, burst of 5
	defer rl.Stop()

	billID := uuid.New()

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(billID), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(billID), "6th request should be rate limited")
}

func TestRateLimiter_DifferentBills(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 3)
	defer rl.Stop()

	bill1 := uuid.New()
	bill2 := uuid.New()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(bill1))
	}
	assert.False(t, rl.Allow(bill1))

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(bill2), "bill2 request %d should be allowed", i+1)
	}
}

func newRequestWithBillID(t *testing.T, e *echo.Echo, billID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/bills/"+billID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(billID)
	return c, rec
}

func TestRateLimitMiddleware_SkipsRouteWithoutBillID(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(1, 1)
	defer rl.Stop()

	req := httptest.NewRequest(http.MethodPost, "/bills", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handlerCalled := false
	handler := func(c echo.Context) error {
		handlerCalled = true
		return c.String(http.StatusOK, "OK")
	}

	for i := 0; i < 5; i++ {
		handlerCalled = false
		err := RateLimitMiddleware(rl)(handler)(c)
		require.NoError(t, err)
		assert.True(t, handlerCalled)
	}
}

func TestRateLimitMiddleware_RateLimitsByBillID(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(10, 2)
	defer rl.Stop()

	billID := uuid.New().String()
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	for i := 0; i < 2; i++ {
		c, rec := newRequestWithBillID(t, e, billID)
		err := RateLimitMiddleware(rl)(handler)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	}

	c, rec := newRequestWithBillID(t, e, billID)
	err := RateLimitMiddleware(rl)(handler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
