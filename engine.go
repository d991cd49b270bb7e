package shadow

//
// Engine (spec.md §4.1, §5 "Concurrency & Resource Model": conservative
// synchronization, horizon computation, termination)
//
// Grounded on the shared-clock, round-based event loop pattern in the
// inference-sim reference code (a single ClusterEventQueue drained under
// a barrier), generalized here to many workers each owning a disjoint
// host partition: golang.org/x/sync/errgroup fans a round out across
// workers and joins on completion, and github.com/hashicorp/go-multierror
// aggregates whatever non-fatal host-level errors surfaced during it.
//

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// EngineConfig configures one [Engine] run (spec.md §6 CLI flags).
type EngineConfig struct {
	// Seed is the global determinism seed (spec.md §5, §6 --seed).
	Seed uint64

	// Workers is the number of partitions to run concurrently (spec.md §6 --workers).
	Workers int

	// MinRunahead is the conservative synchronization window (spec.md §4.8, §6 --runahead).
	MinRunahead SimTime

	// KillTime, if not [SimTimeInvalid], stops the run once reached
	// (spec.md §5 "Cancellation and timeouts").
	KillTime SimTime

	// MaxDescriptorsPerHost bounds each host's descriptor table; 0 means unbounded.
	MaxDescriptorsPerHost int

	// Log is the engine-wide logging sink (spec.md §7).
	Log Logger

	// MetricsRegisterer, if non-nil, is where per-host Prometheus metrics
	// are registered (SPEC_FULL.md §7).
	MetricsRegisterer prometheus.Registerer
}

// Engine owns the full set of workers and hosts for one simulation run.
type Engine struct {
	cfg      EngineConfig
	topology *Topology
	routes   *RoutingTable
	workers  []*Worker
	hosts    map[HostID]*Host
	log      Logger
}

// NewEngine validates topo against cfg.MinRunahead, builds its routing
// table, and constructs one [Host] per topology entry, distributed
// round-robin across cfg.Workers workers.
func NewEngine(topo *Topology, cfg EngineConfig) (*Engine, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	log := cfg.Log
	if log == nil {
		log = DiscardLogger
	}
	if err := topo.Validate(cfg.MinRunahead); err != nil {
		return nil, err
	}

	routes := topo.Build()
	e := &Engine{cfg: cfg, topology: topo, routes: routes, hosts: map[HostID]*Host{}, log: log}

	for i := 0; i < cfg.Workers; i++ {
		e.workers = append(e.workers, NewWorker(i))
	}

	for i, hc := range topo.Hosts() {
		id := HostID(i + 1)
		if cc, ok := topo.clusters[hc.Cluster]; ok {
			if hc.BandwidthUp == 0 {
				hc.BandwidthUp = cc.BandwidthUp
			}
			if hc.BandwidthDown == 0 {
				hc.BandwidthDown = cc.BandwidthDown
			}
		}
		var metrics *HostMetrics
		if cfg.MetricsRegisterer != nil {
			metrics = NewHostMetrics(cfg.MetricsRegisterer, hc.Name)
		}
		h := NewHost(id, hc, HostDeps{
			Routes:         routes,
			Log:            log,
			Metrics:        metrics,
			GlobalSeed:     cfg.Seed,
			MaxDescriptors: cfg.MaxDescriptorsPerHost,
		})
		e.workers[i%len(e.workers)].AddHost(h)
		e.hosts[id] = h
	}

	for _, w := range e.workers {
		w.lookup = e.workerFor
	}

	return e, nil
}

func (e *Engine) workerFor(id HostID) *Worker {
	h, ok := e.hosts[id]
	if !ok {
		return nil
	}
	return h.dispatcher.(*Worker)
}

// Hosts returns every host in this engine, keyed by id.
func (e *Engine) Hosts() map[HostID]*Host { return e.hosts }

// Host looks up one host by id.
func (e *Engine) Host(id HostID) (*Host, bool) {
	h, ok := e.hosts[id]
	return h, ok
}

// Run drives the simulation to completion (spec.md §5): each round
// computes a shared horizon H = min(worker local minimum) + runahead,
// runs every worker's due events up to H in parallel, then drains
// cross-worker mailboxes before recomputing H. Host-level errors are
// collected and returned together; a [ErrConfiguration] or
// [ErrInvariant] aborts the run immediately (spec.md §7).
func (e *Engine) Run(ctx context.Context) error {
	for _, h := range e.hosts {
		h.ScheduleFirstHeartbeat()
	}
	if e.cfg.KillTime != SimTimeInvalid {
		for _, h := range e.hosts {
			h.scheduleEvent(&Event{
				DeliverTime: e.cfg.KillTime,
				TargetHost:  h.id,
				Kind:        EventEngineKill,
				Payload:     EngineKillPayload{},
			})
		}
	}

	var errs *multierror.Error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if e.quiesced() {
			break
		}

		horizon := e.horizon()

		g, _ := errgroup.WithContext(ctx)
		for _, w := range e.workers {
			w := w
			g.Go(func() error {
				_, err := w.RunUntil(horizon)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			errs = multierror.Append(errs, err)
			if isFatalEngineError(err) {
				return errs.ErrorOrNil()
			}
		}

		for _, w := range e.workers {
			w.DrainMailbox()
		}
	}
	return errs.ErrorOrNil()
}

// horizon computes H, the global conservative synchronization bound
// (spec.md §4.8: "H = min(local_min_time + min_runahead)").
func (e *Engine) horizon() SimTime {
	min := SimTimeInvalid
	for _, w := range e.workers {
		local := w.LocalMinTime()
		if local == SimTimeInvalid {
			continue
		}
		withRunahead := local.Add(e.cfg.MinRunahead)
		if withRunahead < min {
			min = withRunahead
		}
	}
	return min
}

// quiesced reports whether every worker has drained both its hosts'
// event queues and its mailbox, or every host has been killed.
func (e *Engine) quiesced() bool {
	allKilled := len(e.workers) > 0
	empty := true
	for _, w := range e.workers {
		if w.QueueLen() > 0 || !w.MailboxEmpty() {
			empty = false
		}
		if !w.AllKilled() {
			allKilled = false
		}
	}
	return empty || allKilled
}

func isFatalEngineError(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInvariant)
}
