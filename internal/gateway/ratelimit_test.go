package gateway

import "testing"

func TestRateLimiter_DisabledByDefault(t *testing.T) {
	rl := NewRateLimiter(0, 5)
	if rl.Enabled() {
		t.Fatal("expected rpm<=0 to disable the limiter")
	}
	for i := 0; i < 50; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatal("expected disabled limiter to always allow")
		}
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("expected the first burst requests to be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("expected the third immediate request to be rejected")
	}
}

func TestRateLimiter_SetLimit_AppliesToNewAndExistingKeys(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("expected the first request to be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("expected the second immediate request to be rejected at burst 1")
	}

	rl.SetLimit(60, 5)

	// A key with no existing bucket picks up the new burst right away.
	if !rl.Allow("5.6.7.8") || !rl.Allow("5.6.7.8") {
		t.Fatal("expected a fresh key to use the updated burst")
	}

	// SetLimit must not panic when applied to the pre-existing bucket.
	if v, ok := rl.limiters.Load("1.2.3.4"); !ok {
		t.Fatal("expected the original key's bucket to still be present")
	} else if v.(*limiterEntry).limiter == nil {
		t.Fatal("expected the original key's limiter to remain set")
	}
}

func TestRateLimiter_SetLimit_CanDisable(t *testing.T) {
	rl := NewRateLimiter(60, 5)
	if !rl.Enabled() {
		t.Fatal("expected limiter to start enabled")
	}
	rl.SetLimit(0, 5)
	if rl.Enabled() {
		t.Fatal("expected SetLimit(0, ...) to disable the limiter")
	}
}
