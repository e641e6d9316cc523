// Package midend implements the mid-end IR optimizer: CFG construction,
// SCCP, GVN/CSE, the guard subsystem, LICM, the loop-bound analyzer, edge
// threading, DCE, the definite-assignment verifier, and the fixed-point
// driver that orchestrates them (spec.md §4).
package midend

import (
	"molt-midend/internal/midenderr"
	"molt-midend/internal/tir"
)

// BlockID indexes CFG.Blocks.
type BlockID int

// Block is a maximal straight-line run of ops with no internal branches.
type Block struct {
	ID    BlockID
	Start int // first op index, inclusive
	End   int // last op index, inclusive (== Start-1 for an impossible empty block, never emitted)
	Preds []BlockID
	Succs []BlockID
}

// Control holds the region side tables of spec.md §3, keyed by op index.
type Control struct {
	IfToElse            map[int]int
	IfToEnd             map[int]int
	ElseToEnd           map[int]int
	LoopStartToEnd      map[int]int
	LoopEndToStart      map[int]int
	TryStartToEnd       map[int]int
	TryEndToStart       map[int]int
	CheckExceptionTarget map[int]string // op index -> handler label
	loopBreakEnclosing  map[int]int     // LOOP_BREAK* op index -> enclosing LOOP_START index
}

// CFG is the control-flow graph built from one function's op sequence.
type CFG struct {
	Ops             []tir.Op
	Blocks          []*Block
	IndexToBlock    []BlockID
	LabelToBlock    map[string]BlockID
	BlockEntryLabel map[BlockID]string
	Control         Control

	// idom[b] is b's immediate dominator; idom[entry] == entry.
	idom []BlockID
	// rpo is Blocks in reverse-postorder from the entry block.
	rpo []BlockID
}

func isBlockEnderAfter(k tir.OpKind) bool {
	switch k {
	case tir.OpJump, tir.OpReturn, tir.OpRaise,
		tir.OpIf, tir.OpElse, tir.OpEndIf,
		tir.OpLoopStart, tir.OpLoopEnd,
		tir.OpTryStart, tir.OpTryEnd, tir.OpCheckException,
		tir.OpLoopBreak, tir.OpLoopBreakIfTrue, tir.OpLoopBreakIfFalse:
		return true
	default:
		return false
	}
}

func labelName(o tir.Op) (string, bool) {
	if len(o.Args) == 0 || o.Args[0].IsVal {
		return "", false
	}
	s, ok := o.Args[0].Imm.(string)
	return s, ok
}

// Build constructs a CFG from an op sequence, per spec.md §4.1.
func Build(ops []tir.Op) (*CFG, error) {
	n := len(ops)
	c := &CFG{Ops: ops}

	ctrl, err := matchRegions(ops)
	if err != nil {
		return nil, err
	}
	c.Control = ctrl

	// 1. Block boundary starts.
	starts := map[int]bool{0: true}
	for i, op := range ops {
		if op.Kind == tir.OpLabel || op.Kind == tir.OpStateLabel {
			starts[i] = true
		}
		if isBlockEnderAfter(op.Kind) && i+1 < n {
			starts[i+1] = true
		}
	}
	var sortedStarts []int
	for i := range starts {
		sortedStarts = append(sortedStarts, i)
	}
	insertionSort(sortedStarts)

	// 2. Build blocks from consecutive starts.
	c.IndexToBlock = make([]BlockID, n)
	c.LabelToBlock = make(map[string]BlockID)
	c.BlockEntryLabel = make(map[BlockID]string)
	for bi, s := range sortedStarts {
		end := n - 1
		if bi+1 < len(sortedStarts) {
			end = sortedStarts[bi+1] - 1
		}
		if end < s {
			continue // no ops past this start; degenerate, skip
		}
		b := &Block{ID: BlockID(len(c.Blocks)), Start: s, End: end}
		c.Blocks = append(c.Blocks, b)
		for i := s; i <= end; i++ {
			c.IndexToBlock[i] = b.ID
		}
		if name, ok := labelName(ops[s]); ok && (ops[s].Kind == tir.OpLabel || ops[s].Kind == tir.OpStateLabel) {
			c.LabelToBlock[name] = b.ID
			c.BlockEntryLabel[b.ID] = name
		}
	}

	if err := c.linkSuccessors(); err != nil {
		return nil, err
	}
	c.linkPredecessors()
	c.computeDominators()
	return c, nil
}

func insertionSort(xs []int) {
	for i := 1; i < len(xs); i++ {
		v := xs[i]
		j := i - 1
		for j >= 0 && xs[j] > v {
			xs[j+1] = xs[j]
			j--
		}
		xs[j+1] = v
	}
}

func (c *CFG) blockAfter(opIndex int) (BlockID, bool) {
	if opIndex+1 >= len(c.Ops) {
		return 0, false
	}
	return c.IndexToBlock[opIndex+1], true
}

func (c *CFG) linkSuccessors() error {
	for _, b := range c.Blocks {
		last := c.Ops[b.End]
		switch last.Kind {
		case tir.OpJump:
			name, ok := labelName(last)
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "JUMP without a label target"}
			}
			target, ok := c.LabelToBlock[name]
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "JUMP target label " + name + " undefined"}
			}
			b.Succs = []BlockID{target}

		case tir.OpReturn, tir.OpRaise:
			// no successors

		case tir.OpIf:
			thenBlk, ok := c.blockAfter(b.End)
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "IF at end of function"}
			}
			var elseBlk BlockID
			if elseIdx, hasElse := c.Control.IfToElse[b.End]; hasElse {
				blk, ok := c.blockAfter(elseIdx)
				if !ok {
					return &midenderr.CfgInvalid{Stage: "cfg", Reason: "ELSE at end of function"}
				}
				elseBlk = blk
			} else if endIdx, ok := c.Control.IfToEnd[b.End]; ok {
				blk, ok := c.blockAfter(endIdx)
				if ok {
					elseBlk = blk
				} else {
					// join is the implicit end of function; fall back to
					// then-block so the graph stays connected.
					elseBlk = thenBlk
				}
			} else {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "IF without matching END_IF"}
			}
			b.Succs = []BlockID{thenBlk, elseBlk}

		case tir.OpElse:
			endIdx, ok := c.Control.ElseToEnd[b.End]
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "ELSE without matching END_IF"}
			}
			if join, ok := c.blockAfter(endIdx); ok {
				b.Succs = []BlockID{join}
			}

		case tir.OpLoopEnd:
			// Back edge: the body repeats from the loop header; only the
			// LOOP_BREAK* ops lead out of the loop.
			startIdx, ok := c.Control.LoopEndToStart[b.End]
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "LOOP_END without matching LOOP_START"}
			}
			if header, ok := c.blockAfter(startIdx); ok {
				b.Succs = []BlockID{header}
			}

		case tir.OpLoopBreak:
			loopStart, ok := c.Control.loopBreakEnclosing[b.End]
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "LOOP_BREAK outside a loop region"}
			}
			endIdx := c.Control.LoopStartToEnd[loopStart]
			if exitBlk, ok := c.blockAfter(endIdx); ok {
				b.Succs = []BlockID{exitBlk}
			}

		case tir.OpLoopBreakIfTrue, tir.OpLoopBreakIfFalse:
			loopStart, ok := c.Control.loopBreakEnclosing[b.End]
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "LOOP_BREAK_IF_* outside a loop region"}
			}
			endIdx := c.Control.LoopStartToEnd[loopStart]
			var succs []BlockID
			if exitBlk, ok := c.blockAfter(endIdx); ok {
				succs = append(succs, exitBlk)
			}
			if fallBlk, ok := c.blockAfter(b.End); ok {
				succs = append(succs, fallBlk)
			}
			b.Succs = succs

		case tir.OpCheckException:
			name, ok := c.Control.CheckExceptionTarget[b.End]
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "CHECK_EXCEPTION without a handler target"}
			}
			handler, ok := c.LabelToBlock[name]
			if !ok {
				return &midenderr.CfgInvalid{Stage: "cfg", Reason: "CHECK_EXCEPTION handler label " + name + " undefined"}
			}
			var succs []BlockID
			succs = append(succs, handler)
			if fallBlk, ok := c.blockAfter(b.End); ok {
				succs = append(succs, fallBlk)
			}
			b.Succs = succs

		default:
			if next, ok := c.blockAfter(b.End); ok {
				b.Succs = []BlockID{next}
			}
		}
	}
	return nil
}

func (c *CFG) linkPredecessors() {
	for _, b := range c.Blocks {
		for _, s := range b.Succs {
			c.Blocks[s].Preds = append(c.Blocks[s].Preds, b.ID)
		}
	}
}

// matchRegions scans the op sequence once with per-region-kind stacks to
// populate Control's matched-pair tables, per spec.md §4.1 step 4.
func matchRegions(ops []tir.Op) (Control, error) {
	ctrl := Control{
		IfToElse:             map[int]int{},
		IfToEnd:              map[int]int{},
		ElseToEnd:            map[int]int{},
		LoopStartToEnd:       map[int]int{},
		LoopEndToStart:       map[int]int{},
		TryStartToEnd:        map[int]int{},
		TryEndToStart:        map[int]int{},
		CheckExceptionTarget: map[int]string{},
		loopBreakEnclosing:   map[int]int{},
	}

	var ifStack []int
	var loopStack []int
	var tryStack []int

	for i, op := range ops {
		switch op.Kind {
		case tir.OpIf:
			ifStack = append(ifStack, i)
		case tir.OpElse:
			if len(ifStack) == 0 {
				return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "ELSE without matching IF"}
			}
			ctrl.IfToElse[ifStack[len(ifStack)-1]] = i
		case tir.OpEndIf:
			if len(ifStack) == 0 {
				return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "END_IF without matching IF"}
			}
			ifIdx := ifStack[len(ifStack)-1]
			ifStack = ifStack[:len(ifStack)-1]
			ctrl.IfToEnd[ifIdx] = i
			if elseIdx, ok := ctrl.IfToElse[ifIdx]; ok {
				ctrl.ElseToEnd[elseIdx] = i
			}
		case tir.OpLoopStart:
			loopStack = append(loopStack, i)
		case tir.OpLoopEnd:
			if len(loopStack) == 0 {
				return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "LOOP_END without matching LOOP_START"}
			}
			startIdx := loopStack[len(loopStack)-1]
			loopStack = loopStack[:len(loopStack)-1]
			ctrl.LoopStartToEnd[startIdx] = i
			ctrl.LoopEndToStart[i] = startIdx
		case tir.OpLoopBreak, tir.OpLoopBreakIfTrue, tir.OpLoopBreakIfFalse, tir.OpLoopContinue:
			if len(loopStack) == 0 {
				return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "loop control op outside a loop region"}
			}
			ctrl.loopBreakEnclosing[i] = loopStack[len(loopStack)-1]
		case tir.OpTryStart:
			tryStack = append(tryStack, i)
		case tir.OpTryEnd:
			if len(tryStack) == 0 {
				return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "TRY_END without matching TRY_START"}
			}
			startIdx := tryStack[len(tryStack)-1]
			tryStack = tryStack[:len(tryStack)-1]
			ctrl.TryStartToEnd[startIdx] = i
			ctrl.TryEndToStart[i] = startIdx
		case tir.OpCheckException:
			if len(tryStack) == 0 {
				return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "CHECK_EXCEPTION outside a try region"}
			}
			name, ok := labelName(op)
			if !ok {
				return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "CHECK_EXCEPTION without a label argument"}
			}
			ctrl.CheckExceptionTarget[i] = name
		}
	}
	if len(ifStack) != 0 {
		return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "unbalanced IF region"}
	}
	if len(loopStack) != 0 {
		return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "unbalanced LOOP region"}
	}
	if len(tryStack) != 0 {
		return ctrl, &midenderr.CfgInvalid{Stage: "cfg", Reason: "unbalanced TRY region"}
	}
	return ctrl, nil
}
