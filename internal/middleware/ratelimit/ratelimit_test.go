package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(3)

	for i := 0; i < 3; i++ {
		if !l.Allow(42) {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if l.Allow(42) {
		t.Error("request over limit allowed")
	}
}

func TestUsersIndependent(t *testing.T) {
	l := New(1)

	if !l.Allow(1) {
		t.Fatal("first user denied")
	}
	if !l.Allow(2) {
		t.Error("second user denied, counters must be per-user")
	}
}

func TestWindowReset(t *testing.T) {
	l := New(1)

	if !l.Allow(42) {
		t.Fatal("first request denied")
	}
	if l.Allow(42) {
		t.Fatal("second request allowed")
	}

	l.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if !l.Allow(42) {
		t.Error("request after window denied")
	}
}

func TestDisabled(t *testing.T) {
	l := New(0)

	for i := 0; i < 100; i++ {
		if !l.Allow(42) {
			t.Fatal("disabled limiter denied a request")
		}
	}
}
