package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowExhaustsBudgetPerClient(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 3})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"))
	}
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "budgets are per client")
}

func TestAllowRefillsOverTime(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 2, WindowDuration: 20 * time.Millisecond})
	defer l.Stop()

	require.True(t, l.allow("10.0.0.1"))
	require.True(t, l.allow("10.0.0.1"))
	require.False(t, l.allow("10.0.0.1"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.allow("10.0.0.1"))
}

func TestMiddlewareRejectsWithRetryAfter(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 1})
	defer l.Stop()

	app := fiber.New()
	app.Use(l.Middleware())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}
