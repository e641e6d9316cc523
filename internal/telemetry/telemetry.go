// Package telemetry implements the mid-end's counters, per-pass timing
// samples, and policy-outcome records (spec.md §5, §6), plus the
// process-wide, mutex-guarded aggregator that merges per-function stats.
package telemetry

import (
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/segmentio/ksuid"
	"github.com/tliron/commonlog"
)

// maxSamples bounds the per-pass timing-sample ring so a pathological
// function cannot unbound telemetry memory (SPEC_FULL.md §9).
const maxSamples = 16

// Log is the process-wide logger, configured the way cmd/kanso-lsp
// configures commonlog: Warning by default, Debug under dev-enable.
var Log = commonlog.GetLogger("molt.midend")

// Configure sets the logger's verbosity. debug=true matches
// MOLT_MIDEND_DEV_ENABLE=1.
func Configure(debug bool) {
	level := 1 // Warning
	if debug {
		level = 4 // Debug
	}
	commonlog.Configure(level, nil)
}

// PassStats accumulates one pass's counters across every round of one
// function's optimization.
type PassStats struct {
	Attempted int
	Accepted  int
	Rejected  int
	Degraded  int
	Fallbacks int
	MSTotal   float64
	SamplesMS []float64
}

func (p *PassStats) recordMS(ms float64) {
	p.MSTotal += ms
	if len(p.SamplesMS) < maxSamples {
		p.SamplesMS = append(p.SamplesMS, ms)
	}
}

// FunctionStats is the full counter set spec.md §6 names, keyed loosely:
// any pass may bump an arbitrary named counter via Bump, and well-known
// per-pass stats live in Passes.
type FunctionStats struct {
	RunID   string
	Counts  map[string]int
	Passes  map[string]*PassStats
}

// NewFunctionStats creates an empty stats record stamped with a fresh
// correlation id.
func NewFunctionStats() *FunctionStats {
	return &FunctionStats{
		RunID:  ksuid.New().String(),
		Counts: make(map[string]int),
		Passes: make(map[string]*PassStats),
	}
}

// Bump increments a named counter, canonicalizing the key to snake_case so
// counters reported by ad hoc pass code always merge cleanly with the
// spec-named counters (cse_attempted, sccp_iteration_cap_hits, ...).
func (f *FunctionStats) Bump(name string, delta int) {
	key := strcase.ToSnake(name)
	f.Counts[key] += delta
}

// Get returns a counter's current value.
func (f *FunctionStats) Get(name string) int {
	return f.Counts[strcase.ToSnake(name)]
}

// Pass returns (creating if absent) the named pass's stats.
func (f *FunctionStats) Pass(name string) *PassStats {
	key := strcase.ToSnake(name)
	p, ok := f.Passes[key]
	if !ok {
		p = &PassStats{}
		f.Passes[key] = p
	}
	return p
}

// RecordPassMS attributes ms of wall-clock time to a named pass.
func (f *FunctionStats) RecordPassMS(name string, ms float64) {
	f.Pass(name).recordMS(ms)
}

// DegradeEvent is one step of the degradation ladder (spec.md §4.12).
type DegradeEvent struct {
	Action string
	Reason string
}

// PolicyOutcome is the serialized per-function policy result of spec.md §6.
type PolicyOutcome struct {
	RunID         string
	Profile       string
	Tier          string
	SpentMS       float64
	Degraded      bool
	DegradeEvents []DegradeEvent
}

// Aggregator merges per-function FunctionStats into process-wide totals.
// It is the single lock-guarded singleton spec.md §5 allows as shared
// process state.
type Aggregator struct {
	mu      sync.Mutex
	totals  map[string]int
	byFunc  map[string]*FunctionStats
	outcome map[string]PolicyOutcome
}

// NewAggregator constructs an empty aggregator. Production code uses the
// package-level Global; tests construct their own to avoid cross-test
// interference.
func NewAggregator() *Aggregator {
	return &Aggregator{
		totals:  make(map[string]int),
		byFunc:  make(map[string]*FunctionStats),
		outcome: make(map[string]PolicyOutcome),
	}
}

// Global is the process-wide aggregator cmd/molt-telemd reads snapshots
// from.
var Global = NewAggregator()

// Merge folds one function's stats and policy outcome into the aggregate.
func (a *Aggregator) Merge(functionKey string, stats *FunctionStats, outcome PolicyOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range stats.Counts {
		a.totals[strcase.ToSnake(k)] += v
	}
	a.byFunc[functionKey] = stats
	a.outcome[functionKey] = outcome
}

// Snapshot is an immutable copy of the aggregator's current state, safe to
// hand to cmd/molt-telemd's JSON-RPC layer without holding the lock.
type Snapshot struct {
	Totals   map[string]int
	Outcomes map[string]PolicyOutcome
}

// Snapshot returns a deep-enough copy of the current aggregate state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	totals := make(map[string]int, len(a.totals))
	for k, v := range a.totals {
		totals[k] = v
	}
	outcomes := make(map[string]PolicyOutcome, len(a.outcome))
	for k, v := range a.outcome {
		outcomes[k] = v
	}
	return Snapshot{Totals: totals, Outcomes: outcomes}
}
