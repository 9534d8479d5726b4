package burn

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Ticket describes one in-flight burn.
type Ticket struct {
	ID      uint64    `json:"id"`
	Seconds float64   `json:"seconds"`
	Started time.Time `json:"started"`
}

// Tracker keeps the set of burns currently running. It exists for
// observability only; burns never consult it.
type Tracker struct {
	nextID    atomic.Uint64
	completed atomic.Uint64

	mu     sync.Mutex
	active map[uint64]Ticket
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{active: make(map[uint64]Ticket)}
}

// Begin registers a burn and returns its ticket.
func (t *Tracker) Begin(d time.Duration) Ticket {
	tk := Ticket{
		ID:      t.nextID.Add(1),
		Seconds: d.Seconds(),
		Started: time.Now(),
	}
	t.mu.Lock()
	t.active[tk.ID] = tk
	t.mu.Unlock()
	return tk
}

// End removes the ticket and counts the burn as completed.
func (t *Tracker) End(tk Ticket) {
	t.mu.Lock()
	_, ok := t.active[tk.ID]
	delete(t.active, tk.ID)
	t.mu.Unlock()
	if ok {
		t.completed.Add(1)
	}
}

// InFlight returns the number of running burns.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Completed returns the number of burns that have finished.
func (t *Tracker) Completed() uint64 {
	return t.completed.Load()
}

// Active lists running burns, oldest first.
func (t *Tracker) Active() []Ticket {
	t.mu.Lock()
	out := make([]Ticket, 0, len(t.active))
	for _, tk := range t.active {
		out = append(out, tk)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
