package midend

import (
	"molt-midend/internal/config"
	"molt-midend/internal/telemetry"
)

// Profile names the deployment profile a function is being optimized
// under, matching the "dev"/"release" split spec.md §6 and §9 describe.
type Profile string

const (
	ProfileDev     Profile = "dev"
	ProfileRelease Profile = "release"
)

// Tier selects how aggressive a function's optimization pipeline is, used
// to degrade gracefully under a budget instead of failing outright. Only
// three tiers exist (spec.md §4.12): the ladder below them is "accept the
// last verified round" rather than a further tier.
type Tier string

const (
	TierA Tier = "A" // full pipeline, every round
	TierB Tier = "B" // deep edge threading disabled
	TierC Tier = "C" // deep edge threading and cross-block const dedup disabled
)

// Policy is the resolved per-function configuration the driver consults
// each round, per spec.md §4.12's field list.
type Policy struct {
	Profile                     Profile
	Tier                        Tier
	MaxRounds                   int
	BudgetMS                    float64
	EnableDeepEdgeThread        bool
	EnableCrossBlockConstDedupe bool
	SCCPIterCap                 int
	CSEIterCap                  int
}

// ResolvePolicy implements the matrix spec.md §4.12 names: dev profile gets
// tier A with a tight round cap for fast edit-compile loops; release on the
// stdlib path with a large op count steps straight down to tier C (both
// deep edge threading and cross-block const dedup disabled) to keep
// compile time bounded on the hottest paths; everything else runs the full
// tier A pipeline.
func ResolvePolicy(cfg config.Config, fnName string, opCount int, isStdlibPath bool) Policy {
	profile := ProfileRelease
	if cfg.DevEnable {
		profile = ProfileDev
	}

	budget := 250.0
	if cfg.BudgetMSOverride != nil {
		budget = *cfg.BudgetMSOverride
	}

	if profile == ProfileDev {
		return Policy{
			Profile: profile, Tier: TierA, MaxRounds: 2, BudgetMS: budget,
			EnableDeepEdgeThread: true, EnableCrossBlockConstDedupe: true,
			SCCPIterCap: 2000, CSEIterCap: 2,
		}
	}

	if isStdlibPath && opCount > 5000 {
		return Policy{
			Profile: profile, Tier: TierC, MaxRounds: 6, BudgetMS: budget,
			EnableDeepEdgeThread: false, EnableCrossBlockConstDedupe: false,
			SCCPIterCap: defaultSCCPMaxIters, CSEIterCap: 1,
		}
	}

	return Policy{
		Profile: profile, Tier: TierA, MaxRounds: 12, BudgetMS: budget,
		EnableDeepEdgeThread: true, EnableCrossBlockConstDedupe: true,
		SCCPIterCap: defaultSCCPMaxIters, CSEIterCap: 3,
	}
}

// Degrade steps a policy down one rung of spec.md §4.12's ladder: first
// disable deep edge threading, then disable cross-block const dedup.
// Once both are already disabled there is nothing left this function can
// do to cut cost further; the caller's next move is to accept the last
// verified round (or hard-fail), not call Degrade again. Returns the new
// policy, the degrade event describing the step taken, and whether a step
// was actually available.
func Degrade(p Policy) (Policy, telemetry.DegradeEvent, bool) {
	switch {
	case p.EnableDeepEdgeThread:
		p.EnableDeepEdgeThread = false
		p.Tier = TierB
		return p, telemetry.DegradeEvent{Action: "disable_deep_edge_thread"}, true
	case p.EnableCrossBlockConstDedupe:
		p.EnableCrossBlockConstDedupe = false
		p.Tier = TierC
		return p, telemetry.DegradeEvent{Action: "disable_cross_block_const_dedupe"}, true
	default:
		return p, telemetry.DegradeEvent{}, false
	}
}
