package midend

import (
	"fmt"
	"strings"

	"molt-midend/internal/telemetry"
	"molt-midend/internal/tir"
)

// effectClass classifies an op for reuse safety, per spec.md §4.5.
type effectClass int

const (
	effectPure effectClass = iota
	effectReadHeap
	effectWriteHeap
	effectUnknown
)

// aliasClassOf buckets heap-touching ops by the shape of their target so a
// read of one alias class never reuses a value produced under another.
func aliasClassOf(op tir.Op) string {
	switch op.Kind {
	case tir.OpIndex, tir.OpListAppend, tir.OpDictSet:
		// INDEX has no static container-type info at this representation,
		// so list and dict mutations share one alias class with every
		// subscript read: a DICT_SET must invalidate an earlier INDEX read
		// just as surely as a LIST_APPEND would.
		return "container"
	case tir.OpModuleGetAttr, tir.OpGetAttrName, tir.OpGetAttrGenericObj:
		return "attr"
	default:
		return "generic"
	}
}

// inRaisingTry reports whether op index i lies strictly inside a try body
// SCCP proved may raise an exception.
func inRaisingTry(cfg *CFG, sccp SCCPResult, i int) bool {
	for start, end := range cfg.Control.TryStartToEnd {
		if i <= start || i >= end {
			continue
		}
		if sccp.TryExceptionPossible[start] {
			return true
		}
	}
	return false
}

func classify(op tir.Op) effectClass {
	switch op.Kind {
	case tir.OpIndex, tir.OpModuleGetAttr, tir.OpGetAttrName, tir.OpGetAttrGenericObj:
		return effectReadHeap
	case tir.OpDictSet, tir.OpListAppend:
		return effectWriteHeap
	case tir.OpCallInternal, tir.OpRaise, tir.OpCheckException:
		return effectUnknown
	default:
		if isPureOpKind(op.Kind) {
			return effectPure
		}
		return effectUnknown
	}
}

// gvnKey is the structural hash GVN uses to recognize equivalent
// computations: op kind plus canonicalized argument identity.
func gvnKey(op tir.Op) string {
	var b strings.Builder
	b.WriteString(op.Kind.String())
	for _, a := range op.Args {
		b.WriteByte('|')
		if a.IsVal {
			b.WriteString(a.Val.Name)
		} else {
			fmt.Fprintf(&b, "imm:%v", a.Imm)
		}
	}
	return b.String()
}

// GVNResult carries the substitution map and dead-op index set produced by
// one GVN/CSE pass.
type GVNResult struct {
	Replace map[string]string // value name -> canonical equivalent value name
	Dead    map[int]bool      // op index -> now-redundant, safe to delete
}

// RunGVN performs value numbering and common subexpression elimination
// within dominance scope: a later op reuses an earlier one's result only
// when they hash equal AND the earlier one's block dominates the later
// one's AND no write with an overlapping alias class (or any unknown
// effect) appears between them on every path, per spec.md §4.5. It
// consumes SCCP's try-outcome map rather than re-deriving try-raise
// analysis itself (spec.md §9's open-question resolution): a heap read
// inside a try body SCCP proved may raise is treated as an unknown-effect
// barrier, since a handler that resumes past the raise may have observed
// or mutated heap state a plain dominance-and-alias-class check can't see.
// crossBlockConstDedupe gates spec.md §4.12's degradation knob: when false
// (a function already degraded past tier B), a CONST* op is only reused by
// a candidate in the same block, never across a dominance edge into
// another block, trading cross-block constant folding for compile speed.
func RunGVN(ops []tir.Op, cfg *CFG, sccp SCCPResult, crossBlockConstDedupe bool, stats *telemetry.FunctionStats) GVNResult {
	res := GVNResult{Replace: map[string]string{}, Dead: map[int]bool{}}

	type entry struct {
		idx   int
		value string
	}
	table := map[string][]entry{}

	// last write index per alias class, used for a simple linear
	// "no intervening write" check: conservative because it is reset at
	// every heap write and unknown-effect op seen in program order, which
	// is sound (if imprecise across independent CFG diamonds) for a flat
	// op-index-ordered scan.
	lastWrite := map[string]int{}
	lastUnknown := -1

	for i, op := range ops {
		ec := classify(op)
		if ec == effectReadHeap && inRaisingTry(cfg, sccp, i) {
			ec = effectUnknown
		}
		switch ec {
		case effectWriteHeap:
			lastWrite[aliasClassOf(op)] = i
			continue
		case effectUnknown:
			lastUnknown = i
			continue
		}
		if !op.HasResult() {
			continue
		}
		key := gvnKey(op)
		candidates := table[key]
		if stats != nil && len(candidates) > 0 {
			stats.Bump("cse_attempted", 1)
			if ec == effectReadHeap {
				stats.Bump("cse_readheap_attempted", 1)
			}
		}
		reused := false
		isConst := op.Kind == tir.OpConst || op.Kind == tir.OpConstBool || op.Kind == tir.OpConstStr || op.Kind == tir.OpConstNone
		for _, c := range candidates {
			if !cfg.OpDominates(c.idx, i) {
				continue
			}
			if isConst && !crossBlockConstDedupe && cfg.IndexToBlock[c.idx] != cfg.IndexToBlock[i] {
				continue
			}
			if ec == effectReadHeap {
				ac := aliasClassOf(op)
				if lastWrite[ac] > c.idx || lastUnknown > c.idx {
					continue
				}
			}
			res.Replace[op.Result.Name] = c.value
			res.Dead[i] = true
			if stats != nil {
				stats.Bump("gvn_hits", 1)
			}
			reused = true
			break
		}
		if !reused {
			if stats != nil && ec == effectReadHeap && len(candidates) > 0 {
				stats.Bump("cse_readheap_rejected", 1)
			}
			table[key] = append(candidates, entry{idx: i, value: op.Result.Name})
		}
	}
	return res
}

// ApplyGVN rewrites every use of a replaced value to its canonical name and
// strips the now-dead defining ops, preserving relative order.
func ApplyGVN(ops []tir.Op, res GVNResult) []tir.Op {
	out := make([]tir.Op, 0, len(ops))
	for i, op := range ops {
		if res.Dead[i] {
			continue
		}
		op.Args = rewriteArgs(op.Args, res.Replace)
		out = append(out, op)
	}
	return out
}

func rewriteArgs(args []tir.Arg, replace map[string]string) []tir.Arg {
	if len(replace) == 0 {
		return args
	}
	out := make([]tir.Arg, len(args))
	for i, a := range args {
		if a.IsVal {
			if canon, ok := finalName(a.Val.Name, replace); ok {
				out[i] = tir.ValueArg(tir.Value{Name: canon})
				continue
			}
		}
		out[i] = a
	}
	return out
}

// CollapseTrivialPhis rewrites every PHI whose arguments (after immediate
// resolution) are all the same value into a direct use of that value,
// eliding the PHI entirely (spec.md §4.5's GVN scope extends to this
// degenerate case since a trivial PHI is just another redundant
// computation of an already-known value).
func CollapseTrivialPhis(ops []tir.Op, stats *telemetry.FunctionStats) ([]tir.Op, int) {
	replace := map[string]string{}
	dead := map[int]bool{}
	count := 0

	for i, op := range ops {
		if op.Kind != tir.OpPhi || len(op.Args) == 0 {
			continue
		}
		first := op.Args[0]
		allSame := true
		for _, a := range op.Args[1:] {
			if a.IsVal != first.IsVal || (a.IsVal && a.Val.Name != first.Val.Name) || (!a.IsVal && a.Imm != first.Imm) {
				allSame = false
				break
			}
		}
		if !allSame || !first.IsVal {
			continue
		}
		replace[op.Result.Name] = first.Val.Name
		dead[i] = true
		count++
	}
	if count == 0 {
		return ops, 0
	}
	if stats != nil {
		stats.Bump("trivial_phis_elided", count)
	}
	out := make([]tir.Op, 0, len(ops))
	for i, op := range ops {
		if dead[i] {
			continue
		}
		op.Args = rewriteArgs(op.Args, replace)
		out = append(out, op)
	}
	return out, count
}

func finalName(name string, replace map[string]string) (string, bool) {
	seen := map[string]bool{}
	changed := false
	for {
		next, ok := replace[name]
		if !ok || seen[name] {
			return name, changed
		}
		seen[name] = true
		name = next
		changed = true
	}
}
