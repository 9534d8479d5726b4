// Package burn pins a goroutine at full CPU for a requested interval.
package burn

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"
)

// ErrUnknownClock is returned by ClockFor for an unsupported mode.
var ErrUnknownClock = errors.New("unknown clock mode")

// Clock supplies the time readings the burn loop polls.
type Clock interface {
	Now() time.Time
}

// Monotonic reads time.Now with its monotonic component, so wall clock
// steps do not move the deadline.
type Monotonic struct{}

func (Monotonic) Now() time.Time { return time.Now() }

// Wall strips the monotonic reading; comparisons follow the system clock.
type Wall struct{}

func (Wall) Now() time.Time { return time.Now().Round(0) }

// ClockFor returns the clock for a configured mode.
func ClockFor(mode string) (Clock, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "monotonic":
		return Monotonic{}, nil
	case "wall":
		return Wall{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownClock, mode)
	}
}

const maxSeconds = int64(math.MaxInt64 / int64(time.Second))

// Seconds converts a request duration to a time.Duration, saturating
// instead of overflowing for absurdly large values.
func Seconds(n int) time.Duration {
	switch {
	case int64(n) > maxSeconds:
		return time.Duration(math.MaxInt64)
	case int64(n) < -maxSeconds:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(n) * time.Second
}

// operand is a variable so the square root is not folded at compile time.
var operand = 12545.0 * 67890.0

var sink atomic.Uint64

// Burner runs busy-wait loops and records them in a Tracker.
type Burner struct {
	clock   Clock
	tracker *Tracker
}

// NewBurner creates a burner. A nil clock means Monotonic; a nil tracker
// disables bookkeeping.
func NewBurner(clock Clock, tracker *Tracker) *Burner {
	if clock == nil {
		clock = Monotonic{}
	}
	return &Burner{clock: clock, tracker: tracker}
}

// Tracker returns the tracker the burner reports to, possibly nil.
func (b *Burner) Tracker() *Tracker { return b.tracker }

// Burn spins until the clock reaches now+d and returns the elapsed time.
// It never sleeps, yields or observes cancellation; d <= 0 returns at once.
func (b *Burner) Burn(d time.Duration) time.Duration {
	start := b.clock.Now()
	deadline := start.Add(d)

	if b.tracker != nil {
		ticket := b.tracker.Begin(d)
		defer b.tracker.End(ticket)
	}

	var x float64
	for b.clock.Now().Before(deadline) {
		x = math.Sqrt(operand)
	}
	sink.Store(math.Float64bits(x))

	return b.clock.Now().Sub(start)
}
