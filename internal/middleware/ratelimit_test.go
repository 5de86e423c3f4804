package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimitPerCaller(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()
	assertPerCallerLimit(t, cache)
}

func TestRateLimitWithoutRedisUsesLocalBuckets(t *testing.T) {
	assertPerCallerLimit(t, nil)
}

func assertPerCallerLimit(t *testing.T, cache redis.UniversalClient) {
	t.Helper()
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(callerKey, Caller{UserID: c.Get("X-Test-User"), Role: RoleUser})
		return c.Next()
	})
	app.Post("/withdraw", RateLimit(cache, "withdraw", 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	send := func(user string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/withdraw", nil)
		req.Header.Set("X-Test-User", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if status := send("alice"); status != fiber.StatusCreated {
			t.Fatalf("request %d: expected 201 got %d", i, status)
		}
	}
	if status := send("alice"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", status)
	}
	if status := send("bob"); status != fiber.StatusCreated {
		t.Fatalf("other caller should not be limited, got %d", status)
	}
}

func TestLocalLimiterEvictsIdleSubjects(t *testing.T) {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newLocalLimiter(1)
	l.now = func() time.Time { return clock }

	if !l.allow("alice") || !l.allow("bob") {
		t.Fatal("first request of each subject should pass")
	}
	if l.allow("alice") {
		t.Fatal("second request within the window should be limited")
	}
	if got := l.size(); got != 2 {
		t.Fatalf("expected 2 buckets, got %d", got)
	}

	clock = clock.Add(30 * time.Second)
	if !l.allow("carol") {
		t.Fatal("new subject should pass")
	}
	clock = clock.Add(40 * time.Second)
	if !l.allow("dave") {
		t.Fatal("new subject should pass")
	}
	if got := l.size(); got != 2 {
		t.Fatalf("expected only carol and dave to remain, got %d buckets", got)
	}
	if !l.allow("alice") {
		t.Fatal("evicted subject starts with a full bucket")
	}
}
