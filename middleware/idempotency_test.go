package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingApp(t *testing.T, ttl time.Duration) (*fiber.App, *int) {
	t.Helper()
	store := NewIdempotencyStore(ttl)
	t.Cleanup(store.Close)

	calls := 0
	app := fiber.New()
	app.Post("/act", UserContextMiddleware(), Idempotency(store), func(c *fiber.Ctx) error {
		calls++
		return c.JSON(fiber.Map{"calls": calls})
	})
	return app, &calls
}

func post(t *testing.T, app *fiber.App, uid, body, headerKey string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/act", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	if headerKey != "" {
		req.Header.Set("X-Idempotency-Key", headerKey)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	app, calls := newCountingApp(t, time.Minute)

	status, first := post(t, app, "u1", `{"requestId":"req-1"}`, "")
	require.Equal(t, http.StatusOK, status)
	status, second := post(t, app, "u1", `{"requestId":"req-1"}`, "")
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, *calls)

	// A new request id executes normally.
	_, third := post(t, app, "u1", `{"requestId":"req-2"}`, "")
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, *calls)
}

func TestIdempotencyKeySources(t *testing.T) {
	app, calls := newCountingApp(t, time.Minute)

	// Header key works when the body carries none.
	post(t, app, "u1", `{}`, "hdr-1")
	post(t, app, "u1", `{}`, "hdr-1")
	assert.Equal(t, 1, *calls)

	// idempotencyKey in the body is honored too.
	post(t, app, "u1", `{"idempotencyKey":"body-1"}`, "")
	post(t, app, "u1", `{"idempotencyKey":"body-1"}`, "")
	assert.Equal(t, 2, *calls)
}

func TestIdempotencyScopedPerUser(t *testing.T) {
	app, calls := newCountingApp(t, time.Minute)

	post(t, app, "u1", `{"requestId":"shared"}`, "")
	post(t, app, "u2", `{"requestId":"shared"}`, "")
	// Same key, different users: both execute.
	assert.Equal(t, 2, *calls)
}

func TestIdempotencyWithoutKeyNeverCaches(t *testing.T) {
	app, calls := newCountingApp(t, time.Minute)

	post(t, app, "u1", `{}`, "")
	post(t, app, "u1", `{}`, "")
	assert.Equal(t, 2, *calls)
}

func TestIdempotencyEntriesExpire(t *testing.T) {
	store := NewIdempotencyStore(10 * time.Millisecond)
	t.Cleanup(store.Close)

	store.put("k", &cachedResponse{status: 200, body: []byte("x")})
	require.NotNil(t, store.get("k"))

	time.Sleep(25 * time.Millisecond)
	assert.Nil(t, store.get("k"))
}

func TestUserContextMiddlewareRejectsAnonymous(t *testing.T) {
	app, calls := newCountingApp(t, time.Minute)

	status, _ := post(t, app, "", `{}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 0, *calls)
}
