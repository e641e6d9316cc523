package midend

import (
	"fmt"

	"molt-midend/internal/tir"
)

// Eval runs a restricted-subset reference interpreter over ops, used by
// tests to confirm an optimization pass preserved program semantics
// (spec.md §8's testable properties). It supports exactly the op kinds a
// test fixture needs to drive straight-line, branching, and loop bodies to
// a RETURN; anything else is a test-authoring error, not a runtime one.
func Eval(ops []tir.Op) (any, error) {
	env := map[string]any{}
	labelToPC := map[string]int{}
	for i, op := range ops {
		if (op.Kind == tir.OpLabel || op.Kind == tir.OpStateLabel) && len(op.Args) > 0 {
			if name, ok := labelName(op); ok {
				labelToPC[name] = i
			}
		}
	}
	cfg, err := Build(ops)
	if err != nil {
		return nil, err
	}

	read := func(a tir.Arg) (any, error) {
		if !a.IsVal {
			return a.Imm, nil
		}
		v, ok := env[a.Val.Name]
		if !ok {
			return nil, fmt.Errorf("eval: read of undefined value %q", a.Val.Name)
		}
		return v, nil
	}

	stepCap := len(ops)*256 + 10000
	pc := 0
	steps := 0
	for pc >= 0 && pc < len(ops) {
		steps++
		if steps > stepCap {
			return nil, fmt.Errorf("eval: exceeded step cap %d", stepCap)
		}
		op := ops[pc]
		switch op.Kind {
		case tir.OpLine, tir.OpLabel, tir.OpStateLabel, tir.OpEndIf, tir.OpLoopStart, tir.OpTryStart, tir.OpTryEnd:
			pc++
			continue
		case tir.OpConst:
			env[op.Result.Name] = op.Args[0].Imm
			pc++
			continue
		case tir.OpConstBool:
			env[op.Result.Name] = op.Args[0].Imm
			pc++
			continue
		case tir.OpConstStr:
			env[op.Result.Name] = op.Args[0].Imm
			pc++
			continue
		case tir.OpConstNone, tir.OpMissing:
			env[op.Result.Name] = nil
			pc++
			continue
		case tir.OpAdd, tir.OpSub, tir.OpMul, tir.OpDiv, tir.OpMod,
			tir.OpEq, tir.OpNe, tir.OpLt, tir.OpLe, tir.OpGt, tir.OpGe,
			tir.OpAnd, tir.OpOr:
			l, err := read(op.Args[0])
			if err != nil {
				return nil, err
			}
			r, err := read(op.Args[1])
			if err != nil {
				return nil, err
			}
			v, err := evalBinary(op.Kind, l, r)
			if err != nil {
				return nil, err
			}
			env[op.Result.Name] = v
			pc++
			continue
		case tir.OpNot:
			v, err := read(op.Args[0])
			if err != nil {
				return nil, err
			}
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("eval: NOT of non-bool %v", v)
			}
			env[op.Result.Name] = !b
			pc++
			continue
		case tir.OpPhi:
			// Flat evaluation keeps no predecessor history, so a PHI takes
			// its last arg that already holds a value: the loop-carried arg
			// once the latch has run (the entry arg before that), or the arm
			// that ran at an if/else join. A value left over from an earlier
			// pass through an enclosing loop is not told apart.
			arg := op.Args[0]
			for j := len(op.Args) - 1; j > 0; j-- {
				if _, ok := env[op.Args[j].Val.Name]; ok || !op.Args[j].IsVal {
					arg = op.Args[j]
					break
				}
			}
			v, err := read(arg)
			if err != nil {
				return nil, err
			}
			env[op.Result.Name] = v
			pc++
			continue
		case tir.OpIf:
			v, err := read(op.Args[0])
			if err != nil {
				return nil, err
			}
			cond, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("eval: IF condition not bool: %v", v)
			}
			if cond {
				pc++
				continue
			}
			if elseIdx, ok := cfg.Control.IfToElse[pc]; ok {
				pc = elseIdx + 1
				continue
			}
			endIdx, ok := cfg.Control.IfToEnd[pc]
			if !ok {
				return nil, fmt.Errorf("eval: IF at %d has no END_IF", pc)
			}
			pc = endIdx + 1
			continue
		case tir.OpElse:
			endIdx, ok := cfg.Control.ElseToEnd[pc]
			if !ok {
				return nil, fmt.Errorf("eval: ELSE at %d has no END_IF", pc)
			}
			pc = endIdx + 1
			continue
		case tir.OpJump:
			target, ok := labelName(op)
			if !ok {
				return nil, fmt.Errorf("eval: JUMP at %d missing label", pc)
			}
			dst, ok := labelToPC[target]
			if !ok {
				return nil, fmt.Errorf("eval: JUMP target %q undefined", target)
			}
			pc = dst + 1
			continue
		case tir.OpLoopEnd:
			start := cfg.Control.LoopEndToStart[pc]
			pc = start + 1
			continue
		case tir.OpLoopBreak:
			end := cfg.Control.LoopStartToEnd[cfg.Control.loopBreakEnclosing[pc]]
			pc = end + 1
			continue
		case tir.OpLoopBreakIfTrue, tir.OpLoopBreakIfFalse:
			v, err := read(op.Args[0])
			if err != nil {
				return nil, err
			}
			cond, _ := v.(bool)
			want := op.Kind == tir.OpLoopBreakIfTrue
			if cond == want {
				end := cfg.Control.LoopStartToEnd[cfg.Control.loopBreakEnclosing[pc]]
				pc = end + 1
				continue
			}
			pc++
			continue
		case tir.OpReturn:
			if len(op.Args) == 0 {
				return nil, nil
			}
			return read(op.Args[0])
		default:
			return nil, fmt.Errorf("eval: unsupported op in reference evaluator: %s", op.Kind.String())
		}
	}
	return nil, fmt.Errorf("eval: reached end of ops without RETURN")
}

func evalBinary(kind tir.OpKind, l, r any) (any, error) {
	li, liok := asInt(l)
	ri, riok := asInt(r)
	if liok && riok {
		switch kind {
		case tir.OpAdd:
			return li + ri, nil
		case tir.OpSub:
			return li - ri, nil
		case tir.OpMul:
			return li * ri, nil
		case tir.OpDiv:
			if ri == 0 {
				return nil, fmt.Errorf("eval: division by zero")
			}
			return li / ri, nil
		case tir.OpMod:
			if ri == 0 {
				return nil, fmt.Errorf("eval: modulo by zero")
			}
			return li % ri, nil
		case tir.OpEq:
			return li == ri, nil
		case tir.OpNe:
			return li != ri, nil
		case tir.OpLt:
			return li < ri, nil
		case tir.OpLe:
			return li <= ri, nil
		case tir.OpGt:
			return li > ri, nil
		case tir.OpGe:
			return li >= ri, nil
		}
	}
	lb, lbok := l.(bool)
	rb, rbok := r.(bool)
	if lbok && rbok {
		switch kind {
		case tir.OpAnd:
			return lb && rb, nil
		case tir.OpOr:
			return lb || rb, nil
		case tir.OpEq:
			return lb == rb, nil
		case tir.OpNe:
			return lb != rb, nil
		}
	}
	if kind == tir.OpEq {
		return l == r, nil
	}
	if kind == tir.OpNe {
		return l != r, nil
	}
	return nil, fmt.Errorf("eval: unsupported operand types for %s: %v, %v", kind.String(), l, r)
}
