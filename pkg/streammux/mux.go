// Package streammux fairly merges multiple upstream Fact sources (pod
// watcher, alert webhooks, deploy watcher, metric sampler) into a single
// bounded channel the rule engine consumes, applying drop-oldest
// backpressure when the engine falls behind (spec §4.2).
package streammux

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/kubernaut-bdi/agent/pkg/ruleengine/policy"
	"github.com/kubernaut-bdi/agent/pkg/types"
)

// Config configures a Mux's bounded output channel and backpressure
// behavior.
type Config struct {
	// BufferSize is the capacity of the merged output channel.
	// Default: 256.
	BufferSize int
}

// DefaultConfig returns the default Mux configuration.
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

// Source is one upstream Fact producer registered with a Mux.
type Source struct {
	Name string
	Ch   <-chan types.Fact
}

// Mux fans multiple Fact sources into one bounded output channel. When
// the output channel is full, Mux drops the oldest buffered Fact to make
// room for the newest one rather than blocking an upstream source —
// staleness is preferable to an unbounded queue for a live incident feed.
type Mux struct {
	config Config
	out    chan types.Fact
	log    logr.Logger

	evaluator *policy.Evaluator
	filters   []policy.Filter

	mu       sync.Mutex
	dropped  map[string]int64
	received map[string]int64
	filtered map[string]int64
}

func New(config Config, log logr.Logger) *Mux {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	return &Mux{
		config:   config,
		out:      make(chan types.Fact, config.BufferSize),
		log:      log.WithName("streammux"),
		dropped:  make(map[string]int64),
		received: make(map[string]int64),
		filtered: make(map[string]int64),
	}
}

// WithAdmissionFilter installs the compiled alert-filter policy and the
// configured filter set. Once installed, every AlertFact is evaluated
// against the filters before it reaches Out; all other fact kinds pass
// through untouched since the config `filters` section scopes alert
// admission only (spec's supplemented filter feature).
func (m *Mux) WithAdmissionFilter(evaluator *policy.Evaluator, filters []policy.Filter) *Mux {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluator = evaluator
	m.filters = filters
	return m
}

// UpdateFilters swaps the active filter set without touching the
// compiled evaluator, so a config hot-reload (`internal/config.Watcher`)
// can retune namespace/severity admission without a process restart.
func (m *Mux) UpdateFilters(filters []policy.Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = filters
}

// Out is the merged, bounded Fact stream. Closed once every registered
// source has closed and Run returns.
func (m *Mux) Out() <-chan types.Fact { return m.out }

// Run pumps every source into Out until ctx is cancelled or every source
// channel closes, then closes Out. Safe to call once per Mux. pump never
// returns an error (a source closing is normal shutdown, not failure), so
// the errgroup here is pure fan-in lifecycle management: Run blocks until
// every source has stopped pumping, same as the teacher's worker pools.
func (m *Mux) Run(ctx context.Context, sources ...Source) {
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			m.pump(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	close(m.out)
}

func (m *Mux) pump(ctx context.Context, src Source) {
	for {
		select {
		case <-ctx.Done():
			return
		case fact, ok := <-src.Ch:
			if !ok {
				return
			}
			m.mu.Lock()
			m.received[src.Name]++
			m.mu.Unlock()
			if !m.admit(ctx, src.Name, fact) {
				continue
			}
			m.forward(ctx, src.Name, fact)
		}
	}
}

// admit applies the configured alert-filter policy. Only AlertFacts are
// subject to filtering; every other fact kind always admits, since the
// config `filters` section scopes alert admission specifically. A
// filter evaluation error fails open (admits the fact) so a policy bug
// never silently swallows an incident.
func (m *Mux) admit(ctx context.Context, sourceName string, fact types.Fact) bool {
	m.mu.Lock()
	evaluator, filters := m.evaluator, m.filters
	m.mu.Unlock()

	if evaluator == nil || fact.Kind != types.FactAlert || fact.Alert == nil {
		return true
	}
	allowed, err := evaluator.Allow(ctx, filters, fact.Alert.Tags["namespace"], string(fact.Alert.Severity))
	if err != nil {
		m.log.V(0).Info("filter evaluation failed, admitting fact", "source", sourceName, "error", err.Error())
		return true
	}
	if !allowed {
		m.mu.Lock()
		m.filtered[sourceName]++
		m.mu.Unlock()
		m.log.V(1).Info("alert fact filtered out by policy", "source", sourceName, "alert_id", fact.Alert.ID)
	}
	return allowed
}

func (m *Mux) forward(ctx context.Context, sourceName string, fact types.Fact) {
	select {
	case m.out <- fact:
		return
	default:
	}

	// Output is full: drop the oldest queued fact to make room, then
	// retry a non-blocking send for the new one. A second miss (another
	// pump winning the race) simply drops this fact instead — fairness
	// over any single source is not guaranteed under sustained overload.
	select {
	case <-m.out:
		m.mu.Lock()
		m.dropped[sourceName]++
		m.mu.Unlock()
		m.log.V(0).Info("output buffer full, dropped oldest fact", "source", sourceName)
	default:
	}

	select {
	case m.out <- fact:
	case <-ctx.Done():
	default:
		m.mu.Lock()
		m.dropped[sourceName]++
		m.mu.Unlock()
		m.log.V(0).Info("dropped fact under sustained overload", "source", sourceName)
	}
}

// Stats is a point-in-time snapshot of per-source receive/drop/filter
// counters, for visibility into backpressure.
type Stats struct {
	Received map[string]int64
	Dropped  map[string]int64
	Filtered map[string]int64
}

func (m *Mux) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		Received: make(map[string]int64, len(m.received)),
		Dropped:  make(map[string]int64, len(m.dropped)),
		Filtered: make(map[string]int64, len(m.filtered)),
	}
	for k, v := range m.received {
		stats.Received[k] = v
	}
	for k, v := range m.dropped {
		stats.Dropped[k] = v
	}
	for k, v := range m.filtered {
		stats.Filtered[k] = v
	}
	return stats
}
