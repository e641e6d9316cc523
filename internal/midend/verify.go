package midend

import "molt-midend/internal/tir"

// VerifyDefiniteAssignment walks the op sequence in reverse-postorder over
// the CFG, tracking the set of value names defined on every path reaching
// each block, and reports the first op that reads a value not yet
// definitely assigned (spec.md §4.12 / §8). PredefinedValueNames (e.g.
// the function's parameters) seed every block's entry set.
func VerifyDefiniteAssignment(ops []tir.Op, cfg *CFG, predefined []string) (int, string, bool) {
	defined := make([]map[string]bool, len(cfg.Blocks))
	seed := map[string]bool{}
	for _, n := range predefined {
		seed[n] = true
	}

	order := cfg.rpo
	if len(order) == 0 {
		order = make([]BlockID, len(cfg.Blocks))
		for i := range order {
			order[i] = BlockID(i)
		}
	}

	for _, b := range order {
		blk := cfg.Blocks[b]
		var in map[string]bool
		if len(blk.Preds) == 0 {
			in = cloneSet(seed)
		} else {
			for _, p := range blk.Preds {
				if defined[p] == nil {
					continue
				}
				if in == nil {
					in = cloneSet(defined[p])
					continue
				}
				in = intersectSets(in, defined[p])
			}
			if in == nil {
				in = map[string]bool{}
			}
			_ = blk.Preds[0]
		}

		for i := blk.Start; i <= blk.End; i++ {
			op := ops[i]
			if op.Kind == tir.OpPhi {
				if op.HasResult() {
					in[op.Result.Name] = true
				}
				continue
			}
			for _, a := range op.Args {
				if a.IsVal && !a.Val.IsNone() && !in[a.Val.Name] {
					return i, a.Val.Name, false
				}
			}
			if op.HasResult() {
				in[op.Result.Name] = true
			}
		}
		defined[b] = in
	}
	return -1, "", true
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func intersectSets(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}
