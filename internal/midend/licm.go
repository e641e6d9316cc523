package midend

import (
	"molt-midend/internal/telemetry"
	"molt-midend/internal/tir"
)

// LICMResult names the ops to move out of their loop; ApplyLICM places
// each in the preheader, just before LOOP_START.
type LICMResult struct {
	Hoist map[int]bool // op index -> hoist to the loop's preheader
}

// RunLICM hoists pure, non-trapping ops whose operands are all defined
// outside the loop body to the loop's preheader, per spec.md §4.9. An op
// that may trap (DIV, MOD) is only hoisted when SCCP already proved its
// divisor nonzero for every iteration; otherwise hoisting it would make a
// loop that never divides by zero at runtime raise on iteration zero of a
// hoisted evaluation that should never have executed.
func RunLICM(ops []tir.Op, cfg *CFG, sccp SCCPResult, stats *telemetry.FunctionStats) LICMResult {
	res := LICMResult{Hoist: map[int]bool{}}

	for start, end := range cfg.Control.LoopStartToEnd {
		definedInLoop := map[string]bool{}
		for i := start; i <= end; i++ {
			if ops[i].HasResult() {
				definedInLoop[ops[i].Result.Name] = true
			}
		}
		for i := start + 1; i < end; i++ {
			op := ops[i]
			if !op.HasResult() || !isPureOpKind(op.Kind) {
				continue
			}
			if mayTrap(op.Kind) && !provenSafeDivisor(op, sccp) {
				continue
			}
			invariant := true
			for _, a := range op.Args {
				if a.IsVal && definedInLoop[a.Val.Name] {
					invariant = false
					break
				}
			}
			if invariant {
				res.Hoist[i] = true
				if stats != nil {
					stats.Bump("licm_hoists", 1)
				}
			}
		}
	}
	return res
}

func provenSafeDivisor(op tir.Op, sccp SCCPResult) bool {
	if len(op.Args) != 2 {
		return false
	}
	divisor := op.Args[1]
	if !divisor.IsVal {
		n, ok := asInt(divisor.Imm)
		return ok && n != 0
	}
	l, ok := sccp.Values[divisor.Val.Name]
	if !ok || l.kind != latConst {
		return false
	}
	n, ok := asInt(l.val)
	return ok && n != 0
}

// ApplyLICM moves every hoisted op to immediately before its loop's
// LOOP_START, preserving relative order among hoisted ops from the same
// loop and leaving everything else untouched.
func ApplyLICM(ops []tir.Op, cfg *CFG, res LICMResult) []tir.Op {
	if len(res.Hoist) == 0 {
		return ops
	}
	hoistTarget := map[int]int{} // op index -> loop start index to insert before
	for start, end := range cfg.Control.LoopStartToEnd {
		for i := start + 1; i < end; i++ {
			if res.Hoist[i] {
				hoistTarget[i] = start
			}
		}
	}

	byTarget := map[int][]tir.Op{}
	for i, target := range hoistTarget {
		byTarget[target] = append(byTarget[target], ops[i])
	}
	for t := range byTarget {
		insertionSortOps(ops, byTarget[t])
	}

	out := make([]tir.Op, 0, len(ops))
	for i, op := range ops {
		if res.Hoist[i] {
			continue
		}
		if hoisted, ok := byTarget[i]; ok {
			out = append(out, hoisted...)
		}
		out = append(out, op)
	}
	return out
}

// insertionSortOps keeps a loop's hoisted op slice in the same relative
// order the ops appeared in the original sequence (stable small sort, the
// lists here are always short).
func insertionSortOps(all []tir.Op, sub []tir.Op) {
	pos := make(map[string]int, len(all))
	for i, o := range all {
		if o.HasResult() {
			pos[o.Result.Name] = i
		}
	}
	for i := 1; i < len(sub); i++ {
		v := sub[i]
		j := i - 1
		for j >= 0 && pos[sub[j].Result.Name] > pos[v.Result.Name] {
			sub[j+1] = sub[j]
			j--
		}
		sub[j+1] = v
	}
}
