package cronexpr

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"every minute", "* * * * *", true},
		{"step minute", "*/5 * * * *", true},
		{"fixed minute", "30 * * * *", true},
		{"daily at time", "0 9 * * *", true},
		{"range rejected", "1-5 * * * *", false},
		{"list rejected", "0 6,0 * * *", false},
		{"seconds field rejected", "* * * * * *", false},
		{"L form rejected", "0 0 L * *", false},
		{"too few fields", "* * * *", false},
		{"out of range hour", "0 24 * * *", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.expr); got != tt.want {
				t.Errorf("Validate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func mustIST(y int, mo time.Month, d, h, m int) time.Time {
	return time.Date(y, mo, d, h, m, 0, 0, IST)
}

func TestNextAfter_EveryMinute(t *testing.T) {
	t0 := mustIST(2026, 3, 1, 10, 30)
	got := NextAfter("* * * * *", t0.UTC())
	want := mustIST(2026, 3, 1, 10, 31).UTC()
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextAfter_NeverReturnsT0(t *testing.T) {
	// t0 itself matches "30 10 * * *" exactly; result must be strictly after.
	t0 := mustIST(2026, 3, 1, 10, 30).UTC()
	got := NextAfter("30 10 * * *", t0)
	if !got.After(t0) {
		t.Errorf("NextAfter must be strictly after t0, got %v for t0 %v", got, t0)
	}
	want := mustIST(2026, 3, 2, 10, 30).UTC()
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextAfter_StepMinutes(t *testing.T) {
	t0 := mustIST(2026, 3, 1, 10, 32).UTC()
	got := NextAfter("*/15 * * * *", t0)
	want := mustIST(2026, 3, 1, 10, 45).UTC()
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextAfter_DailyFixedTime(t *testing.T) {
	t0 := mustIST(2026, 3, 1, 23, 0).UTC()
	got := NextAfter("0 9 * * *", t0)
	want := mustIST(2026, 3, 2, 9, 0).UTC()
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextAfter_MonthRollover(t *testing.T) {
	t0 := mustIST(2026, 1, 31, 9, 1).UTC()
	got := NextAfter("0 9 * * *", t0)
	want := mustIST(2026, 2, 1, 9, 0).UTC()
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextAfter_UnparseableFallsBackOneHour(t *testing.T) {
	t0 := time.Now().UTC()
	got := NextAfter("not a cron expr", t0)
	diff := got.Sub(t0)
	if diff < 59*time.Minute || diff > 61*time.Minute {
		t.Errorf("expected ~1h fallback, got diff %v", diff)
	}
}

// P5: nextAfter(expr, nextAfter(expr, t)) is strictly greater than nextAfter(expr, t).
func TestNextAfter_Idempotence(t *testing.T) {
	exprs := []string{"* * * * *", "*/7 * * * *", "15 * * * *", "0 3 * * *"}
	t0 := time.Now().UTC()
	for _, expr := range exprs {
		first := NextAfter(expr, t0)
		second := NextAfter(expr, first)
		if !second.After(first) {
			t.Errorf("expr %q: NextAfter(first)=%v not after first=%v", expr, second, first)
		}
	}
}

// P6: any expression accepted by Validate yields a non-null NextAfter.
func TestNextAfter_ValidationCompleteness(t *testing.T) {
	exprs := []string{"* * * * *", "*/5 * * * *", "30 14 * * *", "0 0 1 * *"}
	for _, expr := range exprs {
		if !Validate(expr) {
			t.Fatalf("expected %q to validate", expr)
		}
		got := NextAfter(expr, time.Now().UTC())
		if got.IsZero() {
			t.Errorf("expr %q: NextAfter returned zero time", expr)
		}
	}
}
