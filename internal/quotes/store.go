// Package quotes serves the Dune quotes shown on /dune-quotes from a
// pluggable store.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/0xReLogic/Furnace/internal/circuitbreaker"
	"github.com/0xReLogic/Furnace/internal/config"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown quotes backend")

// Quote is a single attributed quote.
type Quote struct {
	Name  string `json:"name" bson:"name"`
	Quote string `json:"quote" bson:"quote"`
}

// Store reads and seeds quotes.
type Store interface {
	// List returns every quote in insertion order.
	List(ctx context.Context) ([]Quote, error)
	// Seed inserts quotes only if the store holds none.
	Seed(ctx context.Context, quotes []Quote) error
	Close(ctx context.Context) error
}

// Defaults returns the quotes a fresh store is seeded with.
func Defaults() []Quote {
	return []Quote{
		{Name: "Duke Leto Atreides", Quote: "Without change, something sleeps inside us, and seldom awakens."},
		{Name: "Princess Irulan", Quote: "What do you despise? By this are you truly known."},
		{Name: "Paul Atreides", Quote: "Fear is the mind-killer. Fear is the little-death that brings total obliteration."},
	}
}

// Open connects to the configured backend and seeds it with Defaults.
func Open(ctx context.Context, cfg config.QuotesConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		store = NewMemoryStore()
	case "mongo":
		store, err = NewMongoStore(ctx, cfg.Mongo)
	case "redis":
		store, err = NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Seed(ctx, Defaults()); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("seed quotes: %w", err)
	}
	return store, nil
}

// Guarded routes List calls through a circuit breaker so a failing backend
// is not hammered on every request.
type Guarded struct {
	Store
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuarded wraps store with breaker.
func NewGuarded(store Store, breaker *circuitbreaker.CircuitBreaker) *Guarded {
	return &Guarded{Store: store, breaker: breaker}
}

// List returns circuitbreaker.ErrOpen without touching the backend while
// the breaker is open.
func (g *Guarded) List(ctx context.Context) ([]Quote, error) {
	var out []Quote
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.Store.List(ctx)
		return err
	})
	return out, err
}
