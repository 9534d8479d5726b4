package burn

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// steppingClock advances by step on every reading.
type steppingClock struct {
	mu    sync.Mutex
	now   time.Time
	step  time.Duration
	reads int
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	c.now = c.now.Add(c.step)
	return c.now
}

func TestBurnStopsAtDeadline(t *testing.T) {
	clock := &steppingClock{now: time.Unix(1000, 0), step: time.Second}
	b := NewBurner(clock, nil)

	elapsed := b.Burn(5 * time.Second)

	if elapsed < 5*time.Second {
		t.Fatalf("expected at least 5s of clock time, got %v", elapsed)
	}
	// start + 5 loop checks (the fifth reaches the deadline) + final reading
	if clock.reads != 7 {
		t.Fatalf("expected 7 clock reads, got %d", clock.reads)
	}
}

func TestBurnNonPositiveReturnsImmediately(t *testing.T) {
	for _, d := range []time.Duration{0, -5 * time.Second} {
		clock := &steppingClock{now: time.Unix(1000, 0), step: time.Millisecond}
		NewBurner(clock, nil).Burn(d)
		// start, one failed loop check, final reading
		if clock.reads != 3 {
			t.Errorf("Burn(%v): expected 3 clock reads, got %d", d, clock.reads)
		}
	}
}

func TestBurnRealTime(t *testing.T) {
	const target = 200 * time.Millisecond
	b := NewBurner(Monotonic{}, nil)

	start := time.Now()
	b.Burn(target)
	got := time.Since(start)

	if got < target {
		t.Fatalf("burn returned early after %v", got)
	}
	if got > target+2*time.Second {
		t.Fatalf("burn overran: %v", got)
	}
}

func TestBurnWallClock(t *testing.T) {
	b := NewBurner(Wall{}, nil)
	start := time.Now()
	b.Burn(50 * time.Millisecond)
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("wall clock burn returned too early")
	}
}

func TestBurnTracksInFlight(t *testing.T) {
	tracker := NewTracker()
	b := NewBurner(Monotonic{}, tracker)

	done := make(chan struct{})
	go func() {
		b.Burn(300 * time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for tracker.InFlight() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tracker.InFlight() != 1 {
		t.Fatalf("expected 1 in-flight burn, got %d", tracker.InFlight())
	}
	active := tracker.Active()
	if len(active) != 1 || active[0].Seconds != 0.3 {
		t.Fatalf("unexpected active burns: %+v", active)
	}

	<-done
	if tracker.InFlight() != 0 {
		t.Fatalf("expected no in-flight burns, got %d", tracker.InFlight())
	}
	if tracker.Completed() != 1 {
		t.Fatalf("expected 1 completed burn, got %d", tracker.Completed())
	}
}

func TestTrackerActiveOrder(t *testing.T) {
	tracker := NewTracker()
	first := tracker.Begin(time.Second)
	second := tracker.Begin(2 * time.Second)
	third := tracker.Begin(3 * time.Second)
	tracker.End(second)

	active := tracker.Active()
	if len(active) != 2 || active[0].ID != first.ID || active[1].ID != third.ID {
		t.Fatalf("unexpected active burns: %+v", active)
	}

	tracker.End(second)
	if tracker.Completed() != 1 {
		t.Fatalf("ending a ticket twice must count once, got %d", tracker.Completed())
	}
}

func TestClockFor(t *testing.T) {
	tests := []struct {
		mode string
		want Clock
		err  error
	}{
		{mode: "", want: Monotonic{}},
		{mode: "monotonic", want: Monotonic{}},
		{mode: "WALL", want: Wall{}},
		{mode: "sundial", err: ErrUnknownClock},
	}

	for _, tt := range tests {
		got, err := ClockFor(tt.mode)
		if !errors.Is(err, tt.err) {
			t.Errorf("ClockFor(%q) error = %v, want %v", tt.mode, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("ClockFor(%q) = %T, want %T", tt.mode, got, tt.want)
		}
	}
}

func TestWallClockHasNoMonotonicReading(t *testing.T) {
	now := Wall{}.Now()
	if now != now.Round(0) {
		t.Fatal("wall clock reading still carries a monotonic component")
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(2); got != 2*time.Second {
		t.Errorf("Seconds(2) = %v", got)
	}
	if got := Seconds(-5); got != -5*time.Second {
		t.Errorf("Seconds(-5) = %v", got)
	}
	if got := Seconds(math.MaxInt); got != time.Duration(math.MaxInt64) {
		t.Errorf("Seconds(MaxInt) = %v, want saturation", got)
	}
	if got := Seconds(math.MinInt); got != time.Duration(math.MinInt64) {
		t.Errorf("Seconds(MinInt) = %v, want saturation", got)
	}
}
