// Package loadgen drives CPU-burn traffic at a Furnace instance so the
// effects of burns can be watched from the outside.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	vegeta "github.com/tsenart/vegeta/lib"

	"github.com/0xReLogic/Furnace/internal/logging"
)

// Options configures an attack. Requests are always GETs.
type Options struct {
	Target   string
	Rate     int           // requests per second
	Duration time.Duration // how long to keep sending
	Timeout  time.Duration // per request
	Workers  uint64
}

func (o *Options) validate() error {
	if o.Target == "" {
		return errors.New("target is required")
	}
	if o.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %d", o.Rate)
	}
	if o.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", o.Duration)
	}
	if o.Timeout == 0 {
		o.Timeout = 60 * time.Second
	}
	if o.Workers == 0 {
		o.Workers = vegeta.DefaultWorkers
	}
	return nil
}

// Run attacks opts.Target at a constant rate and returns the aggregated
// metrics. Cancelling ctx stops the attack early; the metrics gathered so
// far are still returned.
func Run(ctx context.Context, opts Options) (*vegeta.Metrics, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	attacker := vegeta.NewAttacker(
		vegeta.Timeout(opts.Timeout),
		vegeta.Workers(opts.Workers),
	)
	targeter := vegeta.NewStaticTargeter(vegeta.Target{Method: http.MethodGet, URL: opts.Target})
	rate := vegeta.Rate{Freq: opts.Rate, Per: time.Second}

	logger := logging.L().With().Str("target", opts.Target).Logger()
	logger.Info().Int("rate", opts.Rate).Dur("duration", opts.Duration).Msg("attack started")

	stop := context.AfterFunc(ctx, attacker.Stop)
	defer stop()

	var m vegeta.Metrics
	for res := range attacker.Attack(targeter, rate, opts.Duration, "furnace") {
		m.Add(res)
	}
	m.Close()

	logger.Info().
		Uint64("requests", m.Requests).
		Float64("success", m.Success).
		Dur("p99", m.Latencies.P99).
		Msg("attack finished")

	if err := ctx.Err(); err != nil {
		return &m, fmt.Errorf("attack interrupted: %w", err)
	}
	return &m, nil
}

// Report writes the vegeta text report for m.
func Report(w io.Writer, m *vegeta.Metrics) error {
	return vegeta.NewTextReporter(m).Report(w)
}

// BurnURL builds the /cpu-intensive URL on base for a burn of secs seconds.
func BurnURL(base string, secs int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base url %q: scheme and host are required", base)
	}
	u.Path = "/cpu-intensive"
	u.RawQuery = url.Values{"duration": {strconv.Itoa(secs)}}.Encode()
	return u.String(), nil
}
