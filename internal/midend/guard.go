package midend

import (
	"molt-midend/internal/telemetry"
	"molt-midend/internal/tir"
)

// guardKey identifies a guard by the value it checks and the tag/shape it
// asserts, so two guards on the same fact are recognized as duplicates.
type guardKey struct {
	kind tir.OpKind
	val  string
	tag  any
}

func keyOfGuard(op tir.Op) (guardKey, bool) {
	if (op.Kind != tir.OpGuardTag && op.Kind != tir.OpGuardDictShape) || len(op.Args) < 2 {
		return guardKey{}, false
	}
	if !op.Args[0].IsVal {
		return guardKey{}, false
	}
	var tag any
	if op.Args[1].IsVal {
		tag = op.Args[1].Val.Name
	} else {
		tag = op.Args[1].Imm
	}
	return guardKey{kind: op.Kind, val: op.Args[0].Val.Name, tag: tag}, true
}

// GuardResult names the guard ops a pass decided to remove, either because
// SCCP proved the guarded fact already holds or because a dominating
// identical guard already enforces it (spec.md §4.6).
type GuardResult struct {
	Eliminate map[int]bool
	Hoisted   map[int]bool // guards moved to their dominance-frontier entry block
	InsertAt  map[int][]tir.Op // op index -> guard ops to splice in before it
}

// RunGuardElimination removes guards proven redundant either by SCCP
// (sccp.GuardFailIndices never fires because the guard's fact is already
// known true — tracked separately by the SCCP pass itself, whose proven
// facts short-circuit the guard at codegen time) or by an identical,
// dominating guard earlier in the same function.
func RunGuardElimination(ops []tir.Op, cfg *CFG, sccp SCCPResult, stats *telemetry.FunctionStats) GuardResult {
	res := GuardResult{Eliminate: map[int]bool{}, Hoisted: map[int]bool{}, InsertAt: map[int][]tir.Op{}}

	type seenGuard struct {
		idx int
	}
	seen := map[guardKey][]seenGuard{}

	for i, op := range ops {
		key, ok := keyOfGuard(op)
		if !ok {
			continue
		}
		if provenAlwaysHolds(op, sccp) {
			res.Eliminate[i] = true
			if stats != nil {
				stats.Bump("guards_eliminated_sccp_proven", 1)
			}
			continue
		}
		redundant := false
		for _, s := range seen[key] {
			if cfg.OpDominates(s.idx, i) && noInterveningInvalidation(ops, cfg, s.idx, i, key.val) {
				redundant = true
				break
			}
		}
		if redundant {
			res.Eliminate[i] = true
			if stats != nil {
				stats.Bump("guards_eliminated_dominating", 1)
			}
			continue
		}
		seen[key] = append(seen[key], seenGuard{idx: i})
	}
	return res
}

// provenAlwaysHolds reports a guard as vacuous when SCCP has proven the
// guarded value itself to be a constant whose type tag equals the guard's
// tag. A TYPE_OF(x) == tag branch condition is not used: SCCP keeps no
// facts along a branch edge.
func provenAlwaysHolds(op tir.Op, sccp SCCPResult) bool {
	key, ok := keyOfGuard(op)
	if !ok {
		return false
	}
	l, ok := sccp.Values[key.val]
	if !ok || l.kind != latConst {
		return false
	}
	return typeTagOf(l.val) == key.tag
}

// noInterveningInvalidation is a conservative check: a guarded fact about a
// value survives between two program points unless the value is redefined,
// which cannot happen in flat SSA form, so the only invalidation we guard
// against is the two guards disagreeing about region (e.g. one inside a
// loop body that may re-enter before the second guard's block). A loop
// header between def and use invalidates reuse since the guard may need
// to re-fire on a later iteration's differently-shaped value.
func noInterveningInvalidation(ops []tir.Op, cfg *CFG, defIdx, useIdx int, _ string) bool {
	for i := defIdx + 1; i < useIdx; i++ {
		if ops[i].Kind == tir.OpLoopStart {
			return false
		}
	}
	return true
}

// ApplyGuardElimination strips every eliminated guard op from the sequence
// and splices in any guard materialized by HoistGuards at its insertion
// point, ahead of whatever op originally lived there.
func ApplyGuardElimination(ops []tir.Op, res GuardResult) []tir.Op {
	out := make([]tir.Op, 0, len(ops)+len(res.InsertAt))
	for i, op := range ops {
		if ins, ok := res.InsertAt[i]; ok {
			out = append(out, ins...)
		}
		if res.Eliminate[i] {
			continue
		}
		out = append(out, op)
	}
	return out
}

// HoistGuards moves a guard that is duplicated across every successor of a
// common dominator up to that dominator, when none of the intervening ops
// on any path could invalidate it, collapsing the N sibling guards into
// one materialized guard at the dominator (spec.md §4.6's "region-wide"
// hoist, distinct from the dominance-scan elimination above which only
// removes strict duplicates on one path). A guard left only on the arm it
// was first seen on would silently stop protecting every other arm, so
// every duplicate — including the first — is eliminated here and replaced
// by one copy inserted before the common dominator's branch.
func HoistGuards(ops []tir.Op, cfg *CFG, stats *telemetry.FunctionStats) GuardResult {
	res := GuardResult{Eliminate: map[int]bool{}, Hoisted: map[int]bool{}, InsertAt: map[int][]tir.Op{}}

	byKey := map[guardKey][]int{}
	for i, op := range ops {
		if key, ok := keyOfGuard(op); ok {
			byKey[key] = append(byKey[key], i)
		}
	}
	for key, idxs := range byKey {
		if len(idxs) < 2 {
			continue
		}
		blk := cfg.IndexToBlock[idxs[0]]
		common := blk
		allSameBlock := true
		for _, idx := range idxs[1:] {
			if cfg.IndexToBlock[idx] != blk {
				allSameBlock = false
			}
		}
		if allSameBlock {
			// already on one block: elimination above already collapses
			// these; nothing further to hoist.
			continue
		}
		for _, idx := range idxs[1:] {
			common = lowestCommonDominator(cfg, common, cfg.IndexToBlock[idx])
		}
		if common == blk {
			continue
		}
		insertIdx := cfg.Blocks[common].End
		safe := true
		for _, idx := range idxs {
			if !noInterveningInvalidation(ops, cfg, insertIdx, idx, key.val) {
				safe = false
				break
			}
		}
		if !safe {
			if stats != nil {
				stats.Bump("guard_hoist_rejected", 1)
			}
			continue
		}
		res.InsertAt[insertIdx] = append(res.InsertAt[insertIdx], ops[idxs[0]])
		res.Hoisted[idxs[0]] = true
		for _, idx := range idxs {
			res.Eliminate[idx] = true
		}
		if stats != nil {
			stats.Bump("guards_hoisted_region", 1)
		}
		_ = key
	}
	return res
}

func lowestCommonDominator(cfg *CFG, a, b BlockID) BlockID {
	ancestors := map[BlockID]bool{}
	for x := a; ; {
		ancestors[x] = true
		if x == cfg.IDom(x) {
			break
		}
		x = cfg.IDom(x)
	}
	for x := b; ; {
		if ancestors[x] {
			return x
		}
		if x == cfg.IDom(x) {
			return x
		}
		x = cfg.IDom(x)
	}
}
