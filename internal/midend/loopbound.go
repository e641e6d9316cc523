package midend

import "molt-midend/internal/tir"

// loopBoundFact captures a proven affine induction variable within a loop
// region: Start + Step*n compared against Bound via CompareOp, per
// spec.md §4.10.
type loopBoundFact struct {
	ivName    string
	Start     int64
	Step      int64
	Bound     int64
	BoundKnown bool
	CompareOp tir.OpKind // the op kind of the comparison this fact proves
	headerBlk BlockID
	loopStart int
	loopEnd   int
}

// computeLoopBoundFacts finds, for each loop region, a PHI-based induction
// variable with a constant start and constant step fed by a self-ADD in the
// latch, plus the bound it is compared against in a loop-exit condition
// (spec.md §4.10's affine comparison analysis).
func computeLoopBoundFacts(ops []tir.Op, cfg *CFG) map[int]loopBoundFact {
	facts := map[int]loopBoundFact{}
	for start, end := range cfg.Control.LoopStartToEnd {
		fact, ok := analyzeLoop(ops, cfg, start, end)
		if ok {
			facts[start] = fact
		}
	}
	return facts
}

func analyzeLoop(ops []tir.Op, cfg *CFG, start, end int) (loopBoundFact, bool) {
	headerBlk, ok := cfg.blockAfter(start)
	if !ok {
		return loopBoundFact{}, false
	}
	hb := cfg.Blocks[headerBlk]

	for i := hb.Start; i <= hb.End; i++ {
		op := ops[i]
		if op.Kind != tir.OpPhi || len(op.Args) != 2 {
			continue
		}
		ivName := op.Result.Name
		startVal, stepVal, ok := inductionShape(ops, start, end, ivName, op.Args)
		if !ok {
			continue
		}
		cmpOp, bound, boundKnown, ok := findLoopExitCompare(ops, start, end, ivName)
		if !ok {
			continue
		}
		return loopBoundFact{
			ivName:     ivName,
			Start:      startVal,
			Step:       stepVal,
			Bound:      bound,
			BoundKnown: boundKnown,
			CompareOp:  cmpOp,
			headerBlk:  headerBlk,
			loopStart:  start,
			loopEnd:    end,
		}, true
	}
	return loopBoundFact{}, false
}

// inductionShape checks that one PHI arg is a constant entering from outside
// the loop and the other is the result of ADD(iv, constStep) produced inside
// the loop body, returning (startConst, step, ok).
func inductionShape(ops []tir.Op, loopStart, loopEnd int, ivName string, args []tir.Arg) (int64, int64, bool) {
	var startVal int64
	var haveStart bool
	var step int64
	var haveStep bool

	for _, a := range args {
		if !a.IsVal {
			if n, ok := asInt(a.Imm); ok {
				startVal, haveStart = n, true
			}
			continue
		}
		for j, def := range ops {
			if (j < loopStart || j > loopEnd) && def.Kind == tir.OpConst && def.Result.Name == a.Val.Name && len(def.Args) == 1 && !def.Args[0].IsVal {
				if n, ok := asInt(def.Args[0].Imm); ok {
					startVal, haveStart = n, true
				}
			}
		}
		for i := loopStart; i <= loopEnd; i++ {
			op := ops[i]
			if op.Kind != tir.OpAdd || op.Result.Name != a.Val.Name || len(op.Args) != 2 {
				continue
			}
			if op.Args[0].IsVal && op.Args[0].Val.Name == ivName && !op.Args[1].IsVal {
				if n, ok := asInt(op.Args[1].Imm); ok {
					step, haveStep = n, true
				}
			} else if op.Args[1].IsVal && op.Args[1].Val.Name == ivName && !op.Args[0].IsVal {
				if n, ok := asInt(op.Args[0].Imm); ok {
					step, haveStep = n, true
				}
			}
		}
	}
	return startVal, step, haveStart && haveStep
}

// findLoopExitCompare looks for a comparison of the induction variable
// against a constant bound, used (directly or negated) by a
// LOOP_BREAK_IF_TRUE/FALSE in the same region.
func findLoopExitCompare(ops []tir.Op, loopStart, loopEnd int, ivName string) (tir.OpKind, int64, bool, bool) {
	for i := loopStart; i <= loopEnd; i++ {
		op := ops[i]
		switch op.Kind {
		case tir.OpLt, tir.OpLe, tir.OpGt, tir.OpGe:
			if len(op.Args) != 2 {
				continue
			}
			var bound int64
			var boundKnown bool
			sawIV := false
			for _, a := range op.Args {
				if a.IsVal && a.Val.Name == ivName {
					sawIV = true
					continue
				}
				if !a.IsVal {
					if n, ok := asInt(a.Imm); ok {
						bound, boundKnown = n, true
					}
				}
			}
			if sawIV {
				return op.Kind, bound, boundKnown, true
			}
		}
	}
	return 0, 0, false, false
}

// proveMonotonicCompareAt answers whether the comparison op at index i,
// somewhere inside a recognized loop region, is provably true or false for
// every value its operands can take at runtime. Per spec.md §4.10 this
// covers `ADD(base, c1) COMP ADD(base, c2)` (and the degenerate case where
// one or both sides are the bare base, i.e. offset zero): whatever value
// `base` holds, the comparison reduces to comparing the two constant
// offsets, so it is decidable without knowing base at all. Returns (ok,
// value) to match foldBinary's `ok, val := affine(kind)` call shape.
func proveMonotonicCompareAt(ops []tir.Op, i int, facts map[int]loopBoundFact) (bool, bool) {
	inLoop := false
	for _, f := range facts {
		if i >= f.loopStart && i <= f.loopEnd {
			inLoop = true
			break
		}
	}
	if !inLoop {
		return false, false
	}
	op := ops[i]
	if len(op.Args) != 2 {
		return false, false
	}
	lBase, lOff, lOK := decomposeArg(ops, op.Args[0])
	rBase, rOff, rOK := decomposeArg(ops, op.Args[1])
	if !lOK || !rOK || lBase != rBase {
		return false, false
	}
	switch op.Kind {
	case tir.OpLt:
		return true, lOff < rOff
	case tir.OpLe:
		return true, lOff <= rOff
	case tir.OpGt:
		return true, lOff > rOff
	case tir.OpGe:
		return true, lOff >= rOff
	default:
		return false, false
	}
}

// decomposeArg resolves an argument to a (base, constant-offset) pair: an
// immediate decomposes to (the empty base, its value); a value that is
// itself the result of `ADD(base, const)`/`ADD(const, base)`/`SUB(base,
// const)` decomposes through one level to its base and that constant;
// anything else is its own base at offset zero.
func decomposeArg(ops []tir.Op, a tir.Arg) (base string, offset int64, ok bool) {
	if !a.IsVal {
		n, ok := asInt(a.Imm)
		return "", n, ok
	}
	return decomposeAffineName(ops, a.Val.Name)
}

func decomposeAffineName(ops []tir.Op, name string) (string, int64, bool) {
	for _, op := range ops {
		if !op.HasResult() || op.Result.Name != name {
			continue
		}
		if (op.Kind != tir.OpAdd && op.Kind != tir.OpSub) || len(op.Args) != 2 {
			break
		}
		a0, a1 := op.Args[0], op.Args[1]
		if a0.IsVal && !a1.IsVal {
			if n, ok := asInt(a1.Imm); ok {
				if op.Kind == tir.OpSub {
					n = -n
				}
				return a0.Val.Name, n, true
			}
		}
		if !a0.IsVal && a1.IsVal && op.Kind == tir.OpAdd {
			if n, ok := asInt(a0.Imm); ok {
				return a1.Val.Name, n, true
			}
		}
		break
	}
	return name, 0, true
}
