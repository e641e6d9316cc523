package midend

import (
	"molt-midend/internal/telemetry"
	"molt-midend/internal/tir"
)

// RunDCE removes unreachable blocks, whole loop/try regions proven dead by
// SCCP, pure ops whose result has no remaining user, and label/jump ops
// left as placeholders by edge threading, per spec.md §4.9. It is safe to
// call before SCCP has run (reach is computed structurally) and is
// idempotent on an already-clean sequence.
func RunDCE(ops []tir.Op, cfg *CFG, sccp *SCCPResult, stats *telemetry.FunctionStats) []tir.Op {
	reach := cfg.reachableFromEntry()
	if sccp != nil {
		reach = map[BlockID]bool{}
		for b := range cfg.Blocks {
			if sccp.ExecutableBlocks[BlockID(b)] {
				reach[BlockID(b)] = true
			}
		}
		reach[0] = true
	}

	keepOp := make([]bool, len(ops))
	removedRegion := 0
	for i, op := range ops {
		blk := cfg.IndexToBlock[i]
		if !reach[blk] {
			removedRegion++
			continue
		}
		if op.Kind == tir.OpLabel && len(op.Args) == 1 && !op.Args[0].IsVal {
			if s, ok := op.Args[0].Imm.(string); ok && s == "" {
				removedRegion++
				continue
			}
		}
		keepOp[i] = true
	}

	removedPure := removeDeadPureOps(ops, keepOp)

	out := make([]tir.Op, 0, len(ops))
	for i, op := range ops {
		if keepOp[i] {
			out = append(out, op)
		}
	}
	if stats != nil {
		if removedRegion > 0 {
			stats.Bump("cfg_region_prunes", removedRegion)
		}
		if removedRegion+removedPure > 0 {
			stats.Bump("dce_removed_total", removedRegion+removedPure)
		}
	}
	return out
}

// removeDeadPureOps implements spec.md §4.9's pure-op DCE: iterate to a
// fixpoint, clearing keepOp for any already-kept op whose result has zero
// remaining users among the other kept ops. A pure op can always be
// recomputed, so once nothing reads its result it is dead; ops with
// observable effects even without a user (guards, RAISE, writes, calls)
// are never candidates regardless of use count. Iterating to a fixpoint
// lets removing one dead op's result expose its own now-unused operands
// (e.g. CONST 99 feeding nothing once the op that would have used it is
// itself removed).
func removeDeadPureOps(ops []tir.Op, keepOp []bool) int {
	removed := 0
	for {
		uses := map[string]int{}
		for i, op := range ops {
			if !keepOp[i] {
				continue
			}
			for _, a := range op.Args {
				if a.IsVal {
					uses[a.Val.Name]++
				}
			}
		}
		progress := false
		for i, op := range ops {
			if !keepOp[i] || !op.HasResult() || !isPureOpKind(op.Kind) {
				continue
			}
			if uses[op.Result.Name] == 0 {
				keepOp[i] = false
				removed++
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	return removed
}

// PruneNoopJumps removes a JUMP immediately followed by a LABEL defining
// the same target, and a LABEL with no remaining incoming JUMP, continuing
// the label/jump elision spec.md §4.11 names alongside block pruning.
func PruneNoopJumps(ops []tir.Op, stats *telemetry.FunctionStats) []tir.Op {
	referenced := map[string]bool{}
	for _, op := range ops {
		switch op.Kind {
		case tir.OpJump, tir.OpCheckException:
			if name, ok := labelName(op); ok {
				referenced[name] = true
			}
		}
	}
	labelPrunes := 0
	jumpElisions := 0
	out := make([]tir.Op, 0, len(ops))
	for i, op := range ops {
		if op.Kind == tir.OpLabel {
			if name, ok := labelName(op); ok && !referenced[name] {
				labelPrunes++
				continue
			}
		}
		if op.Kind == tir.OpJump && i+1 < len(ops) {
			if target, ok := labelName(op); ok {
				if next, ok := labelName(ops[i+1]); ok && ops[i+1].Kind == tir.OpLabel && next == target {
					jumpElisions++
					continue
				}
			}
		}
		out = append(out, op)
	}
	if stats != nil {
		if labelPrunes > 0 {
			stats.Bump("label_prunes", labelPrunes)
		}
		if jumpElisions > 0 {
			stats.Bump("jump_noop_elisions", jumpElisions)
		}
	}
	return out
}
