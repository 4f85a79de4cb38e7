package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFormatPriceToString(t *testing.T) {
	cases := []struct {
		price, tick float64
		want        string
	}{
		{25, 0.1, "25.0"},
		{75.04, 0.1, "75.0"},
		{1.23456, 0.0001, "1.2346"},
		{12.5, 0, "12.5"},
	}
	for _, tc := range cases {
		if got := FormatPriceToString(tc.price, tc.tick); got != tc.want {
			t.Fatalf("FormatPriceToString(%v, %v) = %q want %q", tc.price, tc.tick, got, tc.want)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	if got := FormatUnits(-80); got != "-80" {
		t.Fatalf("got %q", got)
	}
	if got := FormatUnits(80.9); got != "80" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 5); got != "ab..." {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 5); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestRetryDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 5 * time.Second, Multiplier: 2, MaxDelay: 15 * time.Second}
	if p.Delay(1) != 5*time.Second || p.Delay(2) != 10*time.Second || p.Delay(3) != 15*time.Second {
		t.Fatalf("unexpected delays %v %v %v", p.Delay(1), p.Delay(2), p.Delay(3))
	}
}

func TestRetryDo(t *testing.T) {
	p := RetryPolicy{Name: "test", MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = p.Do(context.Background(), func(int) error {
		calls++
		return errors.New("boom")
	})
	if !errors.Is(err, ErrExhausted) || calls != 3 {
		t.Fatalf("expected exhausted after 3 calls, got err=%v calls=%d", err, calls)
	}
}

func TestRetryPermanent(t *testing.T) {
	p := RetryPolicy{Name: "test", MaxAttempts: 5, BaseDelay: time.Millisecond}
	sentinel := errors.New("rejected")
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return Permanent(sentinel)
	})
	if err != sentinel || calls != 1 {
		t.Fatalf("expected sentinel after one call, got %v (%d calls)", err, calls)
	}
}

func TestRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := RetryPolicy{Name: "test", MaxAttempts: 3, BaseDelay: time.Hour}
	err := p.Do(ctx, func(int) error { return errors.New("boom") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
