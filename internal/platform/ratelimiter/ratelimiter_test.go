package ratelimiter

import (
	"testing"
	"time"
)

func TestWindowLimiterCapsWithinWindow(t *testing.T) {
	l := NewWindow(3, time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("10.0.0.1", now)
		if !ok {
			t.Fatalf("request %d rejected under the cap", i)
		}
	}
	ok, wait := l.Allow("10.0.0.1", now)
	if ok {
		t.Fatal("request over the cap allowed")
	}
	if wait <= 0 || wait > time.Minute {
		t.Fatalf("wait = %v, want within (0, 1m]", wait)
	}

	// A different key has its own window.
	if ok, _ := l.Allow("10.0.0.2", now); !ok {
		t.Fatal("independent key rejected")
	}
}

func TestWindowLimiterResets(t *testing.T) {
	l := NewWindow(1, time.Minute)
	now := time.Now()

	if ok, _ := l.Allow("k", now); !ok {
		t.Fatal("first request rejected")
	}
	if ok, _ := l.Allow("k", now); ok {
		t.Fatal("second request in same window allowed")
	}
	if ok, _ := l.Allow("k", now.Add(time.Minute)); !ok {
		t.Fatal("request after window reset rejected")
	}
}

func TestWindowLimiterIgnoresEmptyKeyAndNil(t *testing.T) {
	var nilLimiter *WindowLimiter
	if ok, _ := nilLimiter.Allow("k", time.Now()); !ok {
		t.Fatal("nil limiter should allow")
	}
	l := NewWindow(1, time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("  ", now); !ok {
			t.Fatal("blank key should not be limited")
		}
	}
	if NewWindow(0, time.Minute) != nil || NewWindow(1, 0) != nil {
		t.Fatal("invalid args should yield nil limiter")
	}
}

func TestMapLimiterBurstThenThrottle(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Now()

	if !l.Allow("ip", now) || !l.Allow("ip", now) {
		t.Fatal("burst rejected")
	}
	if l.Allow("ip", now) {
		t.Fatal("exceeded burst allowed")
	}
	if !l.Allow("ip", now.Add(time.Second)) {
		t.Fatal("refilled token rejected")
	}
}
