package midend

import "molt-midend/internal/tir"

// Validate checks the §3 structural invariants and attempts a single
// repair pass on imbalance, per spec.md §4.3: synthesize a missing
// END_IF/LOOP_END at the smallest enclosing block boundary. If no repair
// applies it returns a cfgInvalidStage error naming stage "validate"; if
// the repaired sequence still fails to build it returns Build's
// midenderr.CfgInvalid (stage "cfg").
func Validate(ops []tir.Op) ([]tir.Op, bool, error) {
	if _, err := Build(ops); err == nil {
		return ops, false, nil
	}
	repaired, ok := repairUnbalancedRegions(ops)
	if !ok {
		return ops, false, &cfgInvalidStage{stage: "validate"}
	}
	if _, err := Build(repaired); err != nil {
		return ops, false, err
	}
	return repaired, true, nil
}

// cfgInvalidStage reports an unrepairable region imbalance local to
// Validate; driver.go wraps it through midenderr.Wrap rather than relying
// on a type assertion here.
type cfgInvalidStage struct {
	stage string
}

func (e *cfgInvalidStage) Error() string {
	return "cfg invalid at stage " + e.stage + ": unrepairable region imbalance"
}

// repairUnbalancedRegions scans for IF/LOOP/TRY stacks left open at the
// end of the function (or closers with no matching opener) and inserts
// the smallest synthetic closer that restores balance immediately before
// the offending point.
func repairUnbalancedRegions(ops []tir.Op) ([]tir.Op, bool) {
	type frame struct {
		kind tir.OpKind
		idx  int
	}
	var stack []frame
	out := make([]tir.Op, 0, len(ops)+4)
	changed := false

	closerFor := map[tir.OpKind]tir.OpKind{
		tir.OpIf:        tir.OpEndIf,
		tir.OpLoopStart: tir.OpLoopEnd,
		tir.OpTryStart:  tir.OpTryEnd,
	}
	openerFor := map[tir.OpKind]tir.OpKind{
		tir.OpEndIf:   tir.OpIf,
		tir.OpLoopEnd: tir.OpLoopStart,
		tir.OpTryEnd:  tir.OpTryStart,
	}

	for _, op := range ops {
		switch op.Kind {
		case tir.OpIf, tir.OpLoopStart, tir.OpTryStart:
			stack = append(stack, frame{op.Kind, len(out)})
			out = append(out, op)
		case tir.OpEndIf, tir.OpLoopEnd, tir.OpTryEnd:
			want := openerFor[op.Kind]
			if len(stack) > 0 && stack[len(stack)-1].kind == want {
				stack = stack[:len(stack)-1]
				out = append(out, op)
				continue
			}
			// A closer with no matching opener: drop it; it cannot be
			// repaired by insertion (there is nothing to balance).
			changed = true
		case tir.OpElse:
			out = append(out, op)
		default:
			out = append(out, op)
		}
	}
	// Any still-open frames at EOF get a synthetic closer appended,
	// innermost (most recently opened) first.
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, tir.Op{Kind: closerFor[stack[i].kind], Result: tir.NoneValue})
		changed = true
	}
	return out, changed
}
