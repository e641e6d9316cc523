package midend

import (
	"molt-midend/internal/telemetry"
	"molt-midend/internal/tir"
)

// latKind is the SCCP lattice position: Unknown (⊥, not yet computed),
// Const (a proven compile-time value), or Overdefined (⊤, proven
// non-constant).
type latKind int

const (
	latUnknown latKind = iota
	latConst
	latOverdefined
)

type lat struct {
	kind latKind
	val  any
}

func meet(a, b lat) lat {
	if a.kind == latUnknown {
		return b
	}
	if b.kind == latUnknown {
		return a
	}
	if a.kind == latOverdefined || b.kind == latOverdefined {
		return lat{kind: latOverdefined}
	}
	if a.val == b.val {
		return a
	}
	return lat{kind: latOverdefined}
}

// edge identifies a CFG edge by endpoint block ids.
type edge struct{ from, to BlockID }

// SCCPResult is the full fact set spec.md §4.4 names.
type SCCPResult struct {
	Values                   map[string]lat
	ExecutableBlocks         map[BlockID]bool
	ExecutableEdges          map[edge]bool
	BranchChoice             map[int]string // "then" | "else" | "both"
	LoopBreakChoice          map[int]string // "break" | "fallthrough" | "both"
	TryExceptionPossible     map[int]bool   // keyed by TRY_START op index
	TryNormalPossible        map[int]bool   // keyed by TRY_START op index
	GuardFailIndices         map[int]bool
	IterationCapHit          bool
}

// SCCPConfig carries the iteration cap override of spec.md §6.
type SCCPConfig struct {
	MaxIters int
}

const defaultSCCPMaxIters = 10000

// ComputeSCCP runs the worklist solver over (block, value) to a fixpoint
// or the iteration cap, per spec.md §4.4.
func ComputeSCCP(ops []tir.Op, cfg *CFG, cfgCfg SCCPConfig, stats *telemetry.FunctionStats) SCCPResult {
	maxIters := cfgCfg.MaxIters
	if maxIters <= 0 {
		maxIters = defaultSCCPMaxIters
	}

	res := SCCPResult{
		Values:               map[string]lat{},
		ExecutableBlocks:     map[BlockID]bool{0: true},
		ExecutableEdges:      map[edge]bool{},
		BranchChoice:         map[int]string{},
		LoopBreakChoice:      map[int]string{},
		TryExceptionPossible: map[int]bool{},
		TryNormalPossible:    map[int]bool{},
		GuardFailIndices:     map[int]bool{},
	}

	lb := computeLoopBoundFacts(ops, cfg)

	iters := 0
	changed := true
	for changed && iters < maxIters {
		changed = false
		iters++
		for _, b := range cfg.Blocks {
			if !res.ExecutableBlocks[b.ID] {
				continue
			}
			for i := b.Start; i <= b.End; i++ {
				if stepSCCP(ops, i, cfg, &res, lb) {
					changed = true
				}
			}
		}
	}

	if iters >= maxIters && changed {
		res.IterationCapHit = true
		if stats != nil {
			stats.Bump("sccp_iteration_cap_hits", 1)
		}
		for _, b := range cfg.Blocks {
			res.ExecutableBlocks[b.ID] = true
		}
	}

	computeTryOutcomes(ops, cfg, &res)

	if stats != nil {
		for _, choice := range res.BranchChoice {
			if choice != "both" {
				stats.Bump("sccp_branch_prunes", 1)
			}
		}
	}
	return res
}

func valueOf(res *SCCPResult, v tir.Value) lat {
	if l, ok := res.Values[v.Name]; ok {
		return l
	}
	return lat{kind: latUnknown}
}

func argLat(res *SCCPResult, a tir.Arg) lat {
	if !a.IsVal {
		return lat{kind: latConst, val: a.Imm}
	}
	return valueOf(res, a.Val)
}

// stepSCCP evaluates one op given current facts, updating res in place.
// Returns true if anything changed.
func stepSCCP(ops []tir.Op, i int, cfg *CFG, res *SCCPResult, lb map[int]loopBoundFact) bool {
	op := ops[i]
	changed := false

	setVal := func(v tir.Value, l lat) {
		if v.IsNone() {
			return
		}
		old, ok := res.Values[v.Name]
		var nl lat
		if !ok {
			nl = l
		} else {
			nl = meet(old, l)
		}
		if nl != old {
			res.Values[v.Name] = nl
			changed = true
		}
	}
	markEdge := func(to BlockID) {
		e := edge{cfg.IndexToBlock[i], to}
		if !res.ExecutableEdges[e] {
			res.ExecutableEdges[e] = true
			changed = true
		}
		if !res.ExecutableBlocks[to] {
			res.ExecutableBlocks[to] = true
			changed = true
		}
	}

	switch op.Kind {
	case tir.OpConst, tir.OpConstBool, tir.OpConstStr:
		var v any
		if len(op.Args) > 0 {
			v = op.Args[0].Imm
		}
		setVal(op.Result, lat{kind: latConst, val: v})
	case tir.OpConstNone:
		setVal(op.Result, lat{kind: latConst, val: nil})
	case tir.OpMissing:
		setVal(op.Result, lat{kind: latOverdefined})

	case tir.OpPhi:
		b := cfg.Blocks[cfg.IndexToBlock[i]]
		acc := lat{kind: latUnknown}
		for pi, pred := range b.Preds {
			if !res.ExecutableEdges[edge{pred, b.ID}] {
				continue
			}
			if pi >= len(op.Args) {
				continue
			}
			acc = meet(acc, argLat(res, op.Args[pi]))
		}
		setVal(op.Result, acc)

	case tir.OpAdd, tir.OpSub, tir.OpMul, tir.OpDiv, tir.OpMod,
		tir.OpEq, tir.OpNe, tir.OpLt, tir.OpLe, tir.OpGt, tir.OpGe,
		tir.OpAnd, tir.OpOr:
		if len(op.Args) < 2 {
			setVal(op.Result, lat{kind: latOverdefined})
			break
		}
		l, r := argLat(res, op.Args[0]), argLat(res, op.Args[1])
		setVal(op.Result, foldBinary(op.Kind, l, r, proveAffineCompare(ops, i, lb)))

	case tir.OpNot:
		if len(op.Args) == 1 {
			l := argLat(res, op.Args[0])
			if l.kind == latConst {
				if b, ok := l.val.(bool); ok {
					setVal(op.Result, lat{kind: latConst, val: !b})
					break
				}
			}
			if l.kind == latOverdefined {
				setVal(op.Result, lat{kind: latOverdefined})
				break
			}
		}
		setVal(op.Result, lat{kind: latUnknown})

	case tir.OpIs:
		if len(op.Args) == 2 {
			l, r := argLat(res, op.Args[0]), argLat(res, op.Args[1])
			if l.kind == latConst && r.kind == latConst {
				setVal(op.Result, lat{kind: latConst, val: l.val == r.val})
				break
			}
			if l.kind == latOverdefined || r.kind == latOverdefined {
				setVal(op.Result, lat{kind: latOverdefined})
				break
			}
		}
		setVal(op.Result, lat{kind: latUnknown})

	case tir.OpTypeOf:
		if len(op.Args) == 1 {
			l := argLat(res, op.Args[0])
			if l.kind == latConst {
				setVal(op.Result, lat{kind: latConst, val: typeTagOf(l.val)})
				break
			}
		}
		setVal(op.Result, lat{kind: latOverdefined})

	case tir.OpIndex:
		if len(op.Args) == 2 {
			if v, ok := foldRangeIndex(res, op); ok {
				setVal(op.Result, lat{kind: latConst, val: v})
				break
			}
		}
		setVal(op.Result, lat{kind: latOverdefined})

	case tir.OpGuardTag, tir.OpGuardDictShape:
		if len(op.Args) >= 2 {
			l := argLat(res, op.Args[0])
			key := argLat(res, op.Args[1])
			if l.kind == latConst && key.kind == latConst && typeTagOf(l.val) != key.val {
				if !res.GuardFailIndices[i] {
					res.GuardFailIndices[i] = true
					changed = true
				}
			}
		}

	case tir.OpJump:
		target, ok := labelName(op)
		if ok {
			if to, ok := cfg.LabelToBlock[target]; ok {
				markEdge(to)
			}
		}

	case tir.OpIf:
		b := cfg.Blocks[cfg.IndexToBlock[i]]
		cond := lat{kind: latOverdefined}
		if len(op.Args) == 1 {
			cond = argLat(res, op.Args[0])
		}
		choice := "both"
		if cond.kind == latConst {
			if truth, ok := cond.val.(bool); ok {
				if truth {
					choice = "then"
				} else {
					choice = "else"
				}
			}
		}
		if res.BranchChoice[i] != choice {
			res.BranchChoice[i] = choice
			changed = true
		}
		if len(b.Succs) == 2 {
			if choice == "then" || choice == "both" {
				markEdge(b.Succs[0])
			}
			if choice == "else" || choice == "both" {
				markEdge(b.Succs[1])
			}
		}

	case tir.OpLoopBreakIfTrue, tir.OpLoopBreakIfFalse:
		b := cfg.Blocks[cfg.IndexToBlock[i]]
		cond := lat{kind: latOverdefined}
		if len(op.Args) == 1 {
			cond = argLat(res, op.Args[0])
		}
		want := true
		if op.Kind == tir.OpLoopBreakIfFalse {
			want = false
		}
		choice := "both"
		if cond.kind == latConst {
			if truth, ok := cond.val.(bool); ok {
				if truth == want {
					choice = "break"
				} else {
					choice = "fallthrough"
				}
			}
		}
		if res.LoopBreakChoice[i] != choice {
			res.LoopBreakChoice[i] = choice
			changed = true
		}
		for si, s := range b.Succs {
			// Successor 0 is the loop-exit edge, successor 1 (if present)
			// is the fallthrough edge, per Build's linkSuccessors order.
			if si == 0 && (choice == "break" || choice == "both") {
				markEdge(s)
			}
			if si == 1 && (choice == "fallthrough" || choice == "both") {
				markEdge(s)
			}
		}

	default:
		// Fallthrough ops (LABEL, LINE, region markers, calls, effectful
		// ops, etc.) just propagate reachability to their successor(s);
		// any result they define is conservatively overdefined unless a
		// case above already set it.
		for _, s := range cfg.Blocks[cfg.IndexToBlock[i]].Succs {
			markEdge(s)
		}
		if op.HasResult() {
			setVal(op.Result, lat{kind: latOverdefined})
		}
	}
	// A value op handled above that ends its block falls through as well.
	switch op.Kind {
	case tir.OpJump, tir.OpIf, tir.OpLoopBreakIfTrue, tir.OpLoopBreakIfFalse:
	default:
		if b := cfg.Blocks[cfg.IndexToBlock[i]]; i == b.End {
			for _, s := range b.Succs {
				markEdge(s)
			}
		}
	}
	return changed
}

func typeTagOf(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case int, int64, uint64:
		return "int"
	case string:
		return "str"
	case nil:
		return "none"
	default:
		return "object"
	}
}

func foldBinary(kind tir.OpKind, l, r lat, affine func(tir.OpKind) (bool, bool)) lat {
	if ok, val := affine(kind); ok {
		return lat{kind: latConst, val: val}
	}
	if l.kind == latOverdefined || r.kind == latOverdefined {
		return lat{kind: latOverdefined}
	}
	if l.kind != latConst || r.kind != latConst {
		return lat{kind: latUnknown}
	}
	li, liok := asInt(l.val)
	ri, riok := asInt(r.val)
	if liok && riok {
		switch kind {
		case tir.OpAdd:
			return lat{kind: latConst, val: li + ri}
		case tir.OpSub:
			return lat{kind: latConst, val: li - ri}
		case tir.OpMul:
			return lat{kind: latConst, val: li * ri}
		case tir.OpDiv:
			if ri != 0 {
				return lat{kind: latConst, val: li / ri}
			}
			return lat{kind: latOverdefined}
		case tir.OpMod:
			if ri != 0 {
				return lat{kind: latConst, val: li % ri}
			}
			return lat{kind: latOverdefined}
		case tir.OpEq:
			return lat{kind: latConst, val: li == ri}
		case tir.OpNe:
			return lat{kind: latConst, val: li != ri}
		case tir.OpLt:
			return lat{kind: latConst, val: li < ri}
		case tir.OpLe:
			return lat{kind: latConst, val: li <= ri}
		case tir.OpGt:
			return lat{kind: latConst, val: li > ri}
		case tir.OpGe:
			return lat{kind: latConst, val: li >= ri}
		}
	}
	lb, lbok := l.val.(bool)
	rb, rbok := r.val.(bool)
	if lbok && rbok {
		switch kind {
		case tir.OpAnd:
			return lat{kind: latConst, val: lb && rb}
		case tir.OpOr:
			return lat{kind: latConst, val: lb || rb}
		case tir.OpEq:
			return lat{kind: latConst, val: lb == rb}
		case tir.OpNe:
			return lat{kind: latConst, val: lb != rb}
		}
	}
	if kind == tir.OpEq {
		return lat{kind: latConst, val: l.val == r.val}
	}
	if kind == tir.OpNe {
		return lat{kind: latConst, val: l.val != r.val}
	}
	return lat{kind: latUnknown}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

// proveAffineCompare lets foldBinary ask the loop-bound analyzer whether a
// comparison at op index i is a provably-true affine induction-variable
// compare (spec.md §4.4's "Affine" implication, backed by §4.10).
func proveAffineCompare(ops []tir.Op, i int, facts map[int]loopBoundFact) func(tir.OpKind) (bool, bool) {
	return func(kind tir.OpKind) (bool, bool) {
		if kind != tir.OpLt && kind != tir.OpLe && kind != tir.OpGt && kind != tir.OpGe {
			return false, false
		}
		return proveMonotonicCompareAt(ops, i, facts)
	}
}

// foldRangeIndex folds INDEX(r, const_idx) to an integer when a rangeFact
// is recorded for r under "<name>$range" in res.Values. No op handled by
// stepSCCP records such a fact, so this lookup finds nothing and INDEX
// stays overdefined.
func foldRangeIndex(res *SCCPResult, op tir.Op) (any, bool) {
	idxLat := argLat(res, op.Args[1])
	if idxLat.kind != latConst {
		return nil, false
	}
	idx, ok := asInt(idxLat.val)
	if !ok {
		return nil, false
	}
	rv, ok := res.Values[op.Args[0].Val.Name+"$range"]
	if !ok || rv.kind != latConst {
		return nil, false
	}
	r, ok := rv.val.(rangeFact)
	if !ok {
		return nil, false
	}
	n := r.value(idx)
	if n == nil {
		return nil, false
	}
	return *n, true
}

type rangeFact struct {
	start, stop, step int64
}

func (r rangeFact) value(idx int64) *int64 {
	v := r.start + idx*r.step
	if r.step > 0 && (v < r.start || v >= r.stop) {
		return nil
	}
	if r.step < 0 && (v > r.start || v <= r.stop) {
		return nil
	}
	return &v
}

// computeTryOutcomes derives TryExceptionPossible/TryNormalPossible from
// op-kind purity classification over each try body, per spec.md §4.4.
func computeTryOutcomes(ops []tir.Op, cfg *CFG, res *SCCPResult) {
	for start, end := range cfg.Control.TryStartToEnd {
		exceptionPossible := false
		normalPossible := true
		for i := start + 1; i < end; i++ {
			if mayRaise(ops[i].Kind) {
				exceptionPossible = true
			}
			if (ops[i].Kind == tir.OpGuardTag || ops[i].Kind == tir.OpGuardDictShape) && res.GuardFailIndices[i] {
				exceptionPossible = true
				normalPossible = false
			}
		}
		res.TryExceptionPossible[start] = exceptionPossible
		res.TryNormalPossible[start] = normalPossible
	}
}

// mayRaise classifies which op kinds can raise a Python exception, used by
// the try-body analysis above (LICM's trap-safety check uses mayTrap).
func mayRaise(k tir.OpKind) bool {
	switch k {
	case tir.OpIndex, tir.OpCallInternal, tir.OpRaise,
		tir.OpModuleGetAttr, tir.OpGetAttrName, tir.OpGetAttrGenericObj,
		tir.OpDictSet, tir.OpListAppend, tir.OpDiv, tir.OpMod:
		return true
	default:
		return false
	}
}

// isPureOpKind reports whether an op kind has no observable side effect
// and can always be recomputed/reused/hoisted when its operands allow.
func isPureOpKind(k tir.OpKind) bool {
	switch k {
	case tir.OpConst, tir.OpConstBool, tir.OpConstStr, tir.OpConstNone,
		tir.OpAdd, tir.OpSub, tir.OpMul,
		tir.OpEq, tir.OpNe, tir.OpLt, tir.OpLe, tir.OpGt, tir.OpGe,
		tir.OpNot, tir.OpIs, tir.OpAnd, tir.OpOr,
		tir.OpTypeOf, tir.OpLen, tir.OpTupleNew, tir.OpPhi:
		return true
	default:
		return false
	}
}

// mayTrap reports whether an op kind can fault given adversarial operand
// values (used by LICM's div/mod hoist rejection).
func mayTrap(k tir.OpKind) bool {
	return k == tir.OpDiv || k == tir.OpMod
}
