package channels

import "testing"

func TestWebhookRateLimiter_AllowsWithinLimit(t *testing.T) {
	r := NewWebhookRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		if !r.Allow("key") {
			t.Fatalf("hit %d: expected allowed within limit", i)
		}
	}
}

func TestWebhookRateLimiter_BlocksOverLimit(t *testing.T) {
	r := NewWebhookRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		r.Allow("key")
	}
	if r.Allow("key") {
		t.Error("expected request over limit to be blocked")
	}
}

func TestWebhookRateLimiter_SeparateKeysIndependent(t *testing.T) {
	r := NewWebhookRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		r.Allow("a")
	}
	if !r.Allow("b") {
		t.Error("expected a different key to have its own budget")
	}
}
