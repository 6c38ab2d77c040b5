package fleet

import (
	"context"
	"time"

	"github.com/eluv-io/errors-go"
	elog "github.com/eluv-io/log-go"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/eluv-io/tsaudit/probe"
)

var log = elog.Get("/tsaudit/fleet")

// Snapshot is the published outcome of one cycle. It is never modified after
// publication.
type Snapshot struct {
	Cycle     int64                   `json:"cycle"`
	StartedAt time.Time               `json:"started_at"`
	Elapsed   time.Duration           `json:"elapsed"`
	Results   []*probe.AnalysisResult `json:"results"` // in configured endpoint order
	Faults    []string                `json:"faults"`
}

// Problematic returns the results having at least one problematic program.
func (s *Snapshot) Problematic() []*probe.AnalysisResult {
	var res []*probe.AnalysisResult
	for _, r := range s.Results {
		if r.HasProblems() {
			res = append(res, r)
		}
	}
	return res
}

// Prober runs one observation of an endpoint.
type Prober interface {
	Run(ctx context.Context) *probe.AnalysisResult
}

// ProbeFactory creates the prober of an endpoint for one cycle.
type ProbeFactory func(ep probe.Endpoint, cfg probe.Config) (Prober, error)

// Observer is notified of every published snapshot.
type Observer interface {
	ObserveCycle(s *Snapshot)
}

func defaultProbeFactory(ep probe.Endpoint, cfg probe.Config) (Prober, error) {
	p, err := probe.New(ep, cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Orchestrator probes all configured endpoints concurrently once per cycle
// and publishes the results to a Cache.
type Orchestrator struct {
	cfg       *Config
	cache     Cache
	newProbe  ProbeFactory
	observers []Observer

	snapshot       atomic.Pointer[Snapshot]
	cycles         atomic.Int64
	lastFaultCount *atomic.Int64
}

type Option func(o *Orchestrator)

// WithProbeFactory replaces the factory creating a probe per endpoint.
func WithProbeFactory(f ProbeFactory) Option {
	return func(o *Orchestrator) {
		o.newProbe = f
	}
}

// WithObserver registers an observer called after each published cycle.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, obs)
	}
}

// NewOrchestrator validates cfg and returns an orchestrator publishing to cache.
func NewOrchestrator(cfg *Config, cache Cache, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.E("NewOrchestrator", errors.K.Invalid, "reason", "missing config")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, errors.E("NewOrchestrator", errors.K.Invalid, err)
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	o := &Orchestrator{
		cfg:            cfg,
		cache:          cache,
		newProbe:       defaultProbeFactory,
		lastFaultCount: atomic.NewInt64(-1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Snapshot returns the last published snapshot, or nil before the first
// completed cycle.
func (o *Orchestrator) Snapshot() *Snapshot {
	return o.snapshot.Load()
}

// Cache returns the cache the orchestrator publishes to.
func (o *Orchestrator) Cache() Cache {
	return o.cache
}

// Run performs cycles separated by the configured interval until ctx is
// cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info("fleet orchestrator starting",
		"endpoints", len(o.cfg.Endpoints),
		"window", o.cfg.Window,
		"interval", o.cfg.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("fleet orchestrator stopped", "cycles", o.cycles.Load())
			return nil
		case <-timer.C:
		}
		if _, err := o.RunCycle(ctx); err != nil && ctx.Err() == nil {
			log.Warn("fleet cycle failed", "err", err)
		}
		timer.Reset(o.cfg.Interval)
	}
}

// RunCycle probes every endpoint once, waits for all probes to finish and
// publishes the snapshot. The fault list is only republished when its length
// differs from the previous publication. A cancelled cycle publishes nothing.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	pcfg := o.cfg.ProbeConfig()
	results := make([]*probe.AnalysisResult, len(o.cfg.Endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, ep := range o.cfg.Endpoints {
		i, ep := i, ep
		g.Go(func() error {
			results[i] = o.runProbe(gctx, ep, pcfg)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.E("Orchestrator.RunCycle", err)
	}

	var all []string
	for _, res := range results {
		if !res.HasProblems() {
			continue
		}
		all = append(all, FaultDescriptions(res, o.cfg.Thresholds.FaultCCErrors)...)
	}
	faults := PublishableFaults(all)

	snap := &Snapshot{
		Cycle:     o.cycles.Inc(),
		StartedAt: start,
		Elapsed:   time.Since(start),
		Results:   results,
		Faults:    faults,
	}
	o.publish(snap)

	log.Info("fleet cycle done",
		"cycle", snap.Cycle,
		"endpoints", len(results),
		"problematic_endpoints", len(snap.Problematic()),
		"faults", len(faults),
		"elapsed", snap.Elapsed)
	return snap, nil
}

func (o *Orchestrator) runProbe(ctx context.Context, ep probe.Endpoint, cfg probe.Config) *probe.AnalysisResult {
	p, err := o.newProbe(ep, cfg)
	if err != nil {
		log.Warn("fleet failed to create probe", "endpoint", ep.ID(), "err", err)
		return &probe.AnalysisResult{
			Endpoint:            ep.ID(),
			Name:                ep.Name,
			URL:                 ep.URL(),
			StartedAt:           time.Now(),
			Programs:            []probe.ProgramResult{},
			ProblematicPrograms: []int{},
			Err:                 err.Error(),
		}
	}
	return p.Run(ctx)
}

func (o *Orchestrator) publish(snap *Snapshot) {
	o.snapshot.Store(snap)
	o.cache.Set(KeySnapshot, snap, 0)

	count := int64(len(snap.Faults))
	if o.lastFaultCount.Swap(count) != count {
		o.cache.Set(KeyFaults, snap.Faults, o.cfg.FaultTTL)
		log.Debug("fleet faults published", "count", count, "ttl", o.cfg.FaultTTL)
	}

	for _, obs := range o.observers {
		obs.ObserveCycle(snap)
	}
}
