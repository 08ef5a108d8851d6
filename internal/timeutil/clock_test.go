package timeutil

import (
	"testing"
	"time"
)

func TestMockClockAdvance(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := NewMockClock(base)

	if !clock.Now().Equal(base) {
		t.Errorf("Now() = %v, want %v", clock.Now(), base)
	}

	clock.Advance(time.Minute)
	if got := clock.Since(base); got != time.Minute {
		t.Errorf("Since(base) = %v, want 1m", got)
	}

	clock.Set(base.Add(time.Hour))
	if !clock.Now().Equal(base.Add(time.Hour)) {
		t.Errorf("Now() after Set = %v", clock.Now())
	}
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	clock := NewMockClock(time.Unix(1000, 0))
	ticker := clock.NewTicker(time.Minute)

	select {
	case <-ticker.C():
		t.Fatal("ticker fired before the interval elapsed")
	default:
	}

	clock.Advance(time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after the interval elapsed")
	}

	ticker.Stop()
	clock.Advance(time.Hour)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTickerTrigger(t *testing.T) {
	clock := NewMockClock(time.Unix(1000, 0))
	ticker := clock.NewTicker(time.Hour).(*MockTicker)

	now := time.Unix(2000, 0)
	ticker.Trigger(now)

	select {
	case got := <-ticker.C():
		if !got.Equal(now) {
			t.Errorf("tick time = %v, want %v", got, now)
		}
	default:
		t.Fatal("Trigger did not deliver a tick")
	}
}

func TestRealClock(t *testing.T) {
	clock := RealClock{}

	before := time.Now()
	now := clock.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v went backwards past %v", now, before)
	}
	if clock.Since(before) < 0 {
		t.Error("Since returned a negative duration for a past time")
	}

	ticker := clock.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}
