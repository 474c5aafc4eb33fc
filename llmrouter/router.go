// Package llmrouter picks a provider.Adapter per generation request by
// evaluating an ordered rule list against the request's task
// characteristics, falling back across a declared chain when the chosen
// provider is unhealthy or fails mid-generation.
//
// Grounded on the teacher's llms.LLMRegistry (name-keyed provider
// lookup), generalized from a flat registry into rule-driven selection
// since the source has no router of its own. providerRegistry (in
// registry.go) replaces the teacher's reject-on-duplicate semantics
// with upsert, since rotating a provider's credentials is an expected
// operation here, not a bug.
package llmrouter

import (
	"context"
	"sort"
	"sync"
	"time"

	coordinator "github.com/agentmesh/coordinator"
	"github.com/agentmesh/coordinator/pkg/logger"
	"github.com/agentmesh/coordinator/pkg/obs"
	"github.com/agentmesh/coordinator/provider"
)

var log = logger.With("llmrouter")

// CostMode biases tie-breaking among equally-matching healthy providers.
type CostMode string

const (
	CostModeCost    CostMode = "cost"
	CostModeSpeed   CostMode = "speed"
	CostModeQuality CostMode = "quality"
)

// Config configures a Router at construction.
type Config struct {
	DefaultProvider string
	Fallbacks       []string // declared order, default-provider-first is implicit
	Rules           []Rule
	CostMode        CostMode
}

// Decision records why a provider was chosen, returned alongside every
// successful Generate call.
type Decision struct {
	Provider string
	Reason   string
}

// latencySample is a running average used by the speed cost mode.
type latencySample struct {
	mu      sync.Mutex
	count   int
	average float64 // milliseconds
}

func (l *latencySample) record(ms float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	l.average += (ms - l.average) / float64(l.count)
}

func (l *latencySample) get() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return 0
	}
	return l.average
}

// Router is process-wide and safe for concurrent use; its rules,
// latency samples and metrics sink are guarded by mu, and its health
// cache by the cache's own lock.
type Router struct {
	mu sync.RWMutex

	cfg       Config
	providers *providerRegistry
	health    *healthCache
	estimator *tokenEstimator
	latency   map[string]*latencySample
	metrics   *obs.Metrics

	rules []Rule // sorted by descending priority at construction
}

// SetMetrics attaches a metrics sink; nil disables recording.
func (r *Router) SetMetrics(m *obs.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// New constructs a Router. Adapters are registered separately via
// Register so the router never imports a concrete provider package.
func New(cfg Config) *Router {
	rules := append([]Rule(nil), cfg.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	return &Router{
		cfg:       cfg,
		providers: newProviderRegistry(),
		health:    newHealthCache(),
		estimator: newTokenEstimator(),
		latency:   make(map[string]*latencySample),
		rules:     rules,
	}
}

// Register adds or replaces a named provider adapter.
func (r *Router) Register(name string, adapter provider.Adapter) {
	r.providers.register(name, adapter)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.latency[name]; !ok {
		r.latency[name] = &latencySample{}
	}
}

// Providers returns the name of every registered provider, in
// registration order.
func (r *Router) Providers() []string {
	return r.providers.names()
}

// fallbackChain returns the ordered list of provider names to try:
// the selected one first, then the default (if different), then the
// declared fallbacks in order, de-duplicated.
func (r *Router) fallbackChain(selected string) []string {
	seen := map[string]struct{}{}
	var chain []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		chain = append(chain, name)
	}
	add(selected)
	add(r.cfg.DefaultProvider)
	for _, f := range r.cfg.Fallbacks {
		add(f)
	}
	return chain
}

// selectProvider runs the rule-evaluation algorithm and returns the
// chosen provider name plus the reason, without regard to generation.
func (r *Router) selectProvider(ctx context.Context, tc provider.TaskCharacteristics) (string, string) {
	rules := r.rules

	for _, rule := range rules {
		if !rule.Condition.matches(tc) {
			continue
		}
		adapter, ok := r.providers.get(rule.TargetProvider)
		if !ok || !r.health.isHealthy(ctx, rule.TargetProvider, adapter) {
			continue
		}
		return rule.TargetProvider, rule.Reason
	}

	if adapter, ok := r.providers.get(r.cfg.DefaultProvider); ok && r.health.isHealthy(ctx, r.cfg.DefaultProvider, adapter) {
		return r.cfg.DefaultProvider, "default provider"
	}

	// Walk the fallback chain looking for the first healthy candidate.
	for _, name := range r.fallbackChain(r.cfg.DefaultProvider) {
		adapter, ok := r.providers.get(name)
		if !ok || !r.health.isHealthy(ctx, name, adapter) {
			continue
		}
		if name == r.cfg.DefaultProvider {
			continue // already tried above
		}
		return name, "Fallback from " + r.cfg.DefaultProvider + " to " + name
	}

	return "", ""
}

// breakTie applies the router's cost-optimization preference among
// providers that would otherwise be chosen arbitrarily. Not used by the
// core selection algorithm (which is priority-deterministic) but exposed
// for callers comparing several healthy candidates directly.
func (r *Router) breakTie(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) == 1 || r.cfg.CostMode == "" {
		return candidates[0]
	}

	best := candidates[0]
	for _, name := range candidates[1:] {
		a, aok := r.providers.get(best)
		b, bok := r.providers.get(name)
		if !aok || !bok {
			continue
		}
		if r.prefers(b, name, a, best) {
			best = name
		}
	}
	return best
}

func (r *Router) prefers(b provider.Adapter, bName string, a provider.Adapter, aName string) bool {
	switch r.cfg.CostMode {
	case CostModeCost:
		bFree := b.Capabilities().CostTier == provider.CostFree
		aFree := a.Capabilities().CostTier == provider.CostFree
		return bFree && !aFree
	case CostModeSpeed:
		r.mu.RLock()
		bSample, aSample := r.latency[bName], r.latency[aName]
		r.mu.RUnlock()
		return bSample.get() > 0 && bSample.get() < aSample.get()
	case CostModeQuality:
		bc, ac := b.Capabilities(), a.Capabilities()
		if bc.FunctionCalling != ac.FunctionCalling {
			return bc.FunctionCalling
		}
		return bc.MaxContextSize > ac.MaxContextSize
	default:
		return false
	}
}

// Generate estimates task characteristics from prompt (if opts.Task is
// nil), selects a provider, and generates. On failure it advances the
// fallback chain: authentication errors do not retry the same provider
// but may advance; rate-limit errors advance immediately and mark the
// provider in cool-down.
func (r *Router) Generate(ctx context.Context, prompt string, messages []provider.Message, opts provider.Options) (provider.Response, Decision, error) {
	tc := provider.TaskCharacteristics{}
	if opts.Task != nil {
		tc = *opts.Task
	} else {
		tc = r.estimator.estimateCharacteristics(prompt, opts)
	}
	opts.Task = &tc

	selected, reason := r.selectProvider(ctx, tc)
	if selected == "" {
		return provider.Response{}, Decision{}, coordinator.NewError("llmrouter", "Generate", coordinator.ErrLLMUnavailable,
			"no healthy provider available", nil)
	}

	chain := r.fallbackChain(selected)
	var lastErr error
	for i, name := range chain {
		adapter, ok := r.providers.get(name)
		r.mu.RLock()
		metrics := r.metrics
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if i > 0 && !r.health.isHealthy(ctx, name, adapter) {
			continue
		}
		if i > 0 {
			metrics.RecordFallback(ctx)
			log.Info("llmrouter advanced fallback chain", "from", selected, "to", name, "attempt", i)
		}

		start := time.Now()
		resp, err := adapter.Generate(ctx, messages, opts)
		if err == nil {
			r.mu.RLock()
			sample := r.latency[name]
			r.mu.RUnlock()
			sample.record(float64(time.Since(start).Milliseconds()))
			if metrics != nil {
				metrics.RouterLatency.Record(ctx, time.Since(start).Seconds())
			}
			decisionReason := reason
			if i > 0 {
				decisionReason = "Fallback from " + selected + " to " + name
			}
			return resp, Decision{Provider: name, Reason: decisionReason}, nil
		}

		lastErr = err
		if kind, ok := provider.KindOf(err); ok {
			switch kind {
			case provider.ErrRateLimit:
				r.health.markRateLimited(name)
			case provider.ErrAuthentication:
				// does not retry this provider; chain still advances below.
			default:
				r.health.invalidate(name)
			}
		}
	}

	return provider.Response{}, Decision{}, coordinator.NewError("llmrouter", "Generate", coordinator.ErrAllProvidersFailed,
		"every provider in the fallback chain failed", lastErr)
}
