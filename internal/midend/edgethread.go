package midend

import (
	"fmt"

	"molt-midend/internal/telemetry"
	"molt-midend/internal/tir"
)

// ThreadEdges rewrites branch, loop-break, and try/check-exception ops
// whose outcome SCCP already proved, replacing the conditional form with
// the unconditional edge it will always take (spec.md §4.8). A target
// block with no entry label is given a freshly synthesized one so the
// thread always has somewhere to jump; DCE later prunes whatever becomes
// unreachable.
func ThreadEdges(ops []tir.Op, cfg *CFG, sccp SCCPResult, stats *telemetry.FunctionStats) []tir.Op {
	rewrite := make([]tir.Op, len(ops))
	copy(rewrite, ops)
	insertLabelAt := map[BlockID]string{}
	nextSynthetic := 0
	loopThreaded := 0
	tryThreaded := 0

	labelFor := func(b BlockID) string {
		if name, ok := cfg.BlockEntryLabel[b]; ok {
			return name
		}
		if name, ok := insertLabelAt[b]; ok {
			return name
		}
		name := fmt.Sprintf("__thread_%d", nextSynthetic)
		nextSynthetic++
		insertLabelAt[b] = name
		return name
	}

	for i, op := range ops {
		switch op.Kind {
		case tir.OpIf:
			choice := sccp.BranchChoice[i]
			if choice != "then" && choice != "else" {
				continue
			}
			var target string
			if choice == "then" {
				target = labelFor(cfg.Blocks[cfg.IndexToBlock[i]].Succs[0])
			} else {
				b := cfg.Blocks[cfg.IndexToBlock[i]]
				if len(b.Succs) != 2 {
					continue
				}
				target = labelFor(b.Succs[1])
			}
			rewrite[i] = tir.Op{Kind: tir.OpJump, Args: []tir.Arg{tir.ImmArg(target)}, Result: tir.NoneValue}
			loopThreaded++
			// The IF is now an unconditional JUMP; its ELSE/END_IF markers
			// would otherwise dangle with no opener once this op stops
			// being an IF, so neutralize them to noop labels. An ELSE that
			// closes the taken then-arm becomes a JUMP to the join instead,
			// so the then-arm skips the dead else-arm rather than falling
			// into it.
			if elseIdx, ok := cfg.Control.IfToElse[i]; ok {
				rewrite[elseIdx] = tir.Op{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg("")}, Result: tir.NoneValue}
				if endIdx, hasEnd := cfg.Control.IfToEnd[i]; hasEnd && choice == "then" {
					if join, ok := cfg.blockAfter(endIdx); ok {
						rewrite[elseIdx] = tir.Op{Kind: tir.OpJump, Args: []tir.Arg{tir.ImmArg(labelFor(join))}, Result: tir.NoneValue}
					}
				}
			}
			if endIdx, ok := cfg.Control.IfToEnd[i]; ok {
				rewrite[endIdx] = tir.Op{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg("")}, Result: tir.NoneValue}
			}

		case tir.OpLoopBreakIfTrue, tir.OpLoopBreakIfFalse:
			switch sccp.LoopBreakChoice[i] {
			case "break":
				rewrite[i] = tir.Op{Kind: tir.OpLoopBreak, Result: tir.NoneValue}
				loopThreaded++
			case "fallthrough":
				rewrite[i] = tir.Op{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg("")}, Result: tir.NoneValue}
				loopThreaded++
			}

		case tir.OpCheckException:
			start, inTry := enclosingTryStart(cfg, i)
			if !inTry {
				continue
			}
			exceptionPossible, knownExc := sccp.TryExceptionPossible[start]
			normalPossible, knownNormal := sccp.TryNormalPossible[start]
			switch {
			case knownExc && !exceptionPossible:
				// No-raise case: the try body can never raise, so the check
				// itself (and the handler edge it guards) is dead, and so are
				// the TRY_START/TRY_END markers around it.
				rewrite[i] = tir.Op{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg("")}, Result: tir.NoneValue}
				rewrite[start] = tir.Op{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg("")}, Result: tir.NoneValue}
				rewrite[cfg.Control.TryStartToEnd[start]] = tir.Op{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg("")}, Result: tir.NoneValue}
				tryThreaded++
			case knownNormal && !normalPossible:
				// Must-raise case: a guard inside the try body is proven to
				// always fail, so execution never reaches the fall-through
				// edge; thread straight to the handler and let DCE prune
				// the now-unreachable try-body tail.
				target, ok := cfg.Control.CheckExceptionTarget[i]
				if !ok {
					continue
				}
				rewrite[i] = tir.Op{Kind: tir.OpJump, Args: []tir.Arg{tir.ImmArg(target)}, Result: tir.NoneValue}
				tryThreaded++
			}
		}
	}

	if stats != nil {
		if loopThreaded > 0 {
			stats.Bump("loop_edge_thread_prunes", loopThreaded)
		}
		if tryThreaded > 0 {
			stats.Bump("try_edge_thread_prunes", tryThreaded)
		}
	}
	if len(insertLabelAt) == 0 {
		return rewrite
	}

	out := make([]tir.Op, 0, len(rewrite)+len(insertLabelAt))
	for i, op := range rewrite {
		if b := cfg.IndexToBlock[i]; cfg.Blocks[b].Start == i {
			if name, ok := insertLabelAt[b]; ok {
				out = append(out, tir.Op{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg(name)}, Result: tir.NoneValue})
			}
		}
		out = append(out, op)
	}
	return out
}

// enclosingTryStart finds the TRY_START of the innermost try region that
// contains the CHECK_EXCEPTION at checkIdx; Build only accepts a
// CHECK_EXCEPTION inside a try region.
func enclosingTryStart(cfg *CFG, checkIdx int) (int, bool) {
	best := -1
	for start, end := range cfg.Control.TryStartToEnd {
		if start < checkIdx && checkIdx < end && start > best {
			best = start
		}
	}
	return best, best >= 0
}
