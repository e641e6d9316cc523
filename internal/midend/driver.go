package midend

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"molt-midend/internal/config"
	"molt-midend/internal/midenderr"
	"molt-midend/internal/telemetry"
	"molt-midend/internal/tir"
)

// Optimize runs the fixed-point pipeline over fn per spec.md §4 and §6,
// returning the rewritten function and the telemetry outcome for this run.
// When the pipeline fails (a malformed CFG, or a verifier, budget or
// convergence failure that no degradation step absorbed) it returns the
// error only if cfg.HardFail is set; otherwise it returns fn unchanged and
// a nil error.
func Optimize(fn *tir.Function, cfg config.Config) (*tir.Function, telemetry.PolicyOutcome, error) {
	telemetry.Configure(cfg.DevEnable)
	stats := telemetry.NewFunctionStats()
	policy := ResolvePolicy(cfg, fn.Name, len(fn.Ops), isStdlibPath(fn))

	started := time.Now()
	out, degradeEvents, err := runFixedPoint(fn.Ops, fn.PredefinedValueNames, policy, cfg, stats)
	spent := float64(time.Since(started).Milliseconds())

	outcome := telemetry.PolicyOutcome{
		RunID:         stats.RunID,
		Profile:       string(policy.Profile),
		Tier:          string(policy.Tier),
		SpentMS:       spent,
		Degraded:      len(degradeEvents) > 0,
		DegradeEvents: degradeEvents,
	}
	telemetry.Global.Merge(fn.Module+"."+fn.Name, stats, outcome)

	if err != nil {
		if cfg.HardFail {
			return nil, outcome, err
		}
		return fn, outcome, nil
	}

	result := fn.Clone()
	result.Ops = out
	return result, outcome, nil
}

func isStdlibPath(fn *tir.Function) bool {
	return len(fn.SourcePath) >= 6 && fn.SourcePath[:6] == "stdlib"
}

// runFixedPoint repeatedly applies one optimization round (SCCP -> guard
// elimination/hoisting -> GVN/CSE -> LICM -> loop-bound-informed edge
// threading -> DCE) until the structural hash stops changing, the round
// cap is hit, or the budget is exceeded and degradation bottoms out.
func runFixedPoint(ops []tir.Op, predefined []string, policy Policy, cfg config.Config, stats *telemetry.FunctionStats) ([]tir.Op, []telemetry.DegradeEvent, error) {
	started := time.Now()
	var degradeEvents []telemetry.DegradeEvent

	current, rewrites, err := PreCanonicalize(ops)
	if err != nil {
		return nil, degradeEvents, midenderr.Wrap(err, "precanon")
	}
	stats.Bump("precanon_rewrites", rewrites)

	current, repaired, err := Validate(current)
	if err != nil {
		return nil, degradeEvents, midenderr.Wrap(err, "validate")
	}
	if repaired {
		stats.Bump("validate_repairs", 1)
	}

	var lastVerified []tir.Op
	acceptLastVerified := func(reason string, fallback error) ([]tir.Op, []telemetry.DegradeEvent, error) {
		if lastVerified == nil {
			return nil, degradeEvents, fallback
		}
		degradeEvents = append(degradeEvents, telemetry.DegradeEvent{Action: "accept_last_verified_round", Reason: reason})
		stats.Bump("accept_last_verified_round", 1)
		return lastVerified, degradeEvents, nil
	}

	prevHash := ""
	round := 0
	for round < policy.MaxRounds {
		round++
		if policy.BudgetMS > 0 && float64(time.Since(started).Milliseconds()) > policy.BudgetMS {
			next, event, moved := Degrade(policy)
			if !moved {
				spent := float64(time.Since(started).Milliseconds())
				return acceptLastVerified("budget_exceeded", &midenderr.BudgetExceeded{Stage: "driver", SpentMS: spent, BudgetMS: policy.BudgetMS})
			}
			degradeEvents = append(degradeEvents, event)
			policy = next
			stats.Bump("degrade_events", 1)
			round--
			continue
		}

		cfgGraph, err := Build(current)
		if err != nil {
			return nil, degradeEvents, midenderr.Wrap(err, "cfg")
		}

		sccp := ComputeSCCP(current, cfgGraph, SCCPConfig{MaxIters: sccpMaxIters(cfg, policy)}, stats)

		guardRes := RunGuardElimination(current, cfgGraph, sccp, stats)
		hoistRes := HoistGuards(current, cfgGraph, stats)
		for k := range hoistRes.Eliminate {
			guardRes.Eliminate[k] = true
		}
		for idx, insOps := range hoistRes.InsertAt {
			guardRes.InsertAt[idx] = append(guardRes.InsertAt[idx], insOps...)
		}
		current = ApplyGuardElimination(current, guardRes)

		cseIterCap := policy.CSEIterCap
		if cseIterCap < 1 {
			cseIterCap = 1
		}
		for i := 0; i < cseIterCap; i++ {
			cfgGraph, err = Build(current)
			if err != nil {
				return nil, degradeEvents, midenderr.Wrap(err, "cfg")
			}
			sccpGVN := ComputeSCCP(current, cfgGraph, SCCPConfig{MaxIters: sccpMaxIters(cfg, policy)}, stats)
			gvnRes := RunGVN(current, cfgGraph, sccpGVN, policy.EnableCrossBlockConstDedupe, stats)
			rewritten := ApplyGVN(current, gvnRes)
			rewritten, phiCount := CollapseTrivialPhis(rewritten, stats)
			noProgress := len(gvnRes.Dead) == 0 && phiCount == 0
			current = rewritten
			if noProgress {
				break
			}
		}

		cfgGraph, err = Build(current)
		if err != nil {
			return nil, degradeEvents, midenderr.Wrap(err, "cfg")
		}
		sccp2 := ComputeSCCP(current, cfgGraph, SCCPConfig{MaxIters: sccpMaxIters(cfg, policy)}, stats)
		licmRes := RunLICM(current, cfgGraph, sccp2, stats)
		current = ApplyLICM(current, cfgGraph, licmRes)

		if policy.EnableDeepEdgeThread {
			cfgGraph, err = Build(current)
			if err != nil {
				return nil, degradeEvents, midenderr.Wrap(err, "cfg")
			}
			sccp3 := ComputeSCCP(current, cfgGraph, SCCPConfig{MaxIters: sccpMaxIters(cfg, policy)}, stats)
			current = ThreadEdges(current, cfgGraph, sccp3, stats)
		}

		cfgGraph, err = Build(current)
		if err != nil {
			return nil, degradeEvents, midenderr.Wrap(err, "cfg")
		}
		sccp4 := ComputeSCCP(current, cfgGraph, SCCPConfig{MaxIters: sccpMaxIters(cfg, policy)}, stats)
		current = RunDCE(current, cfgGraph, &sccp4, stats)
		current = PruneNoopJumps(current, stats)

		cfgGraph, err = Build(current)
		if err != nil {
			return nil, degradeEvents, midenderr.Wrap(err, "cfg")
		}
		if idx, name, ok := VerifyDefiniteAssignment(current, cfgGraph, predefined); !ok {
			return acceptLastVerified("verifier_failure", &midenderr.VerifierFailure{OpIndex: idx, OpKind: current[idx].Kind.String(), MissingName: name})
		}
		lastVerified = append([]tir.Op(nil), current...)

		hash := structuralHash(current)
		if hash == prevHash {
			break
		}
		prevHash = hash

		if round == policy.MaxRounds {
			next, event, moved := Degrade(policy)
			if !moved {
				stats.Bump("fixed_point_fail_fast", 1)
				return acceptLastVerified("round_cap_exceeded", &midenderr.ConvergenceFailure{Rounds: round})
			}
			degradeEvents = append(degradeEvents, event)
			policy = next
			stats.Bump("degrade_events", 1)
			round = 0
			prevHash = ""
		}
	}

	if policy.Profile == ProfileDev {
		stats.Bump("expanded_attempts", 1)
		again, _, err := runFixedPointOnce(current, predefined, policy, cfg, stats)
		if err == nil && structuralHash(again) == structuralHash(current) {
			stats.Bump("expanded_accepted", 1)
		} else {
			stats.Bump("expanded_fallbacks", 1)
		}
	}

	stats.Bump("rounds_run", round)
	return current, degradeEvents, nil
}

// runFixedPointOnce re-runs SCCP-guided DCE and noop-jump pruning once over
// the converged sequence for the dev-tier idempotence self-check: an
// already-converged sequence must produce itself again. The other passes
// of a round are not re-run here.
func runFixedPointOnce(ops []tir.Op, predefined []string, policy Policy, cfg config.Config, stats *telemetry.FunctionStats) ([]tir.Op, []telemetry.DegradeEvent, error) {
	cfgGraph, err := Build(ops)
	if err != nil {
		return ops, nil, err
	}
	sccp := ComputeSCCP(ops, cfgGraph, SCCPConfig{MaxIters: sccpMaxIters(cfg, policy)}, nil)
	out := RunDCE(ops, cfgGraph, &sccp, nil)
	out = PruneNoopJumps(out, nil)
	return out, nil, nil
}

func sccpMaxIters(cfg config.Config, policy Policy) int {
	if cfg.SCCPMaxItersOverride != nil {
		return *cfg.SCCPMaxItersOverride
	}
	return policy.SCCPIterCap
}

// structuralHash hashes the op sequence for convergence detection, per
// spec.md §4.13, ignoring LINE ops so source-position bookkeeping never
// blocks a fixed point.
func structuralHash(ops []tir.Op) string {
	h := sha256.New()
	for _, op := range ops {
		if op.Kind == tir.OpLine {
			continue
		}
		h.Write([]byte(op.Kind.String()))
		h.Write([]byte{0})
		for _, a := range op.Args {
			if a.IsVal {
				h.Write([]byte(a.Val.Name))
			} else {
				h.Write([]byte(fmt.Sprintf("%v", a.Imm)))
			}
			h.Write([]byte{0})
		}
		h.Write([]byte(op.Result.Name))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
