package midend

import "molt-midend/internal/tir"

// PreCanonicalize runs label-trampoline collapse, PHI predecessor
// alignment, and deep ladder threading to a zero-rewrite fixpoint
// (spec.md §4.2). It returns the rewritten ops and the total rewrite
// count across every inner pass.
func PreCanonicalize(ops []tir.Op) ([]tir.Op, int, error) {
	total := 0
	for {
		cfg, err := Build(ops)
		if err != nil {
			return ops, total, err
		}
		next, n1 := collapseTrampolines(ops, cfg)
		ops = next
		cfg, err = Build(ops)
		if err != nil {
			return ops, total, err
		}
		next, n2, err := alignPhis(ops, cfg)
		if err != nil {
			return ops, total, err
		}
		ops = next
		cfg, err = Build(ops)
		if err != nil {
			return ops, total, err
		}
		next, n3 := threadLadders(ops, cfg)
		ops = next

		round := n1 + n2 + n3
		total += round
		if round == 0 {
			return ops, total, nil
		}
	}
}

// collapseTrampolines redirects every user of a label L1 straight to L2
// when L1's block is exactly "LABEL(L1); JUMP(L2)", then deletes L1 and
// the JUMP.
func collapseTrampolines(ops []tir.Op, cfg *CFG) ([]tir.Op, int) {
	redirect := map[string]string{}
	remove := map[int]bool{}

	for _, b := range cfg.Blocks {
		if b.End != b.Start+1 {
			continue
		}
		label, ok := labelName(ops[b.Start])
		if !ok || (ops[b.Start].Kind != tir.OpLabel) {
			continue
		}
		if ops[b.End].Kind != tir.OpJump {
			continue
		}
		target, ok := labelName(ops[b.End])
		if !ok || target == label {
			continue
		}
		redirect[label] = target
		remove[b.Start] = true
		remove[b.End] = true
	}
	if len(redirect) == 0 {
		return ops, 0
	}
	resolve := func(name string) string {
		seen := map[string]bool{}
		for {
			next, ok := redirect[name]
			if !ok || seen[name] {
				return name
			}
			seen[name] = true
			name = next
		}
	}

	out := make([]tir.Op, 0, len(ops))
	count := 0
	for i, op := range ops {
		if remove[i] {
			count++
			continue
		}
		switch op.Kind {
		case tir.OpJump, tir.OpCheckException:
			if name, ok := labelName(op); ok {
				if resolved := resolve(name); resolved != name {
					op.Args[0] = tir.ImmArg(resolved)
					count++
				}
			}
		}
		out = append(out, op)
	}
	return out, count
}

// alignPhis rewrites each PHI's argument count to match its block's
// predecessor count (spec.md §4.2). PHI encoding convention: Result is the
// PHI's defined value; Args are the per-predecessor input values in the
// same order the PHI was originally emitted. When a single arg is present
// it is broadcast to every predecessor. Any other count mismatch is left
// as it is: args are not re-permuted, and neither this pass nor Validate
// rejects the PHI.
func alignPhis(ops []tir.Op, cfg *CFG) ([]tir.Op, int, error) {
	out := make([]tir.Op, len(ops))
	copy(out, ops)
	count := 0
	for i, op := range ops {
		if op.Kind != tir.OpPhi {
			continue
		}
		b := cfg.IndexToBlock[i]
		predCount := len(cfg.Blocks[b].Preds)
		if len(op.Args) == predCount {
			continue
		}
		if len(op.Args) == 1 {
			broadcast := make([]tir.Arg, predCount)
			for j := range broadcast {
				broadcast[j] = op.Args[0]
			}
			op.Args = broadcast
			out[i] = op
			count++
			continue
		}
		// Ambiguous shape: leave as-is.
	}
	return out, count, nil
}

// threadLadders rewrites CHECK_EXCEPTION targets and JUMP targets that
// chain through one or more empty LABEL blocks to point at the final
// destination label directly (spec.md §4.2's "deep ladder threading").
func threadLadders(ops []tir.Op, cfg *CFG) ([]tir.Op, int) {
	finalTarget := func(label string) string {
		seen := map[string]bool{}
		for {
			blk, ok := cfg.LabelToBlock[label]
			if !ok || seen[label] {
				return label
			}
			seen[label] = true
			b := cfg.Blocks[blk]
			if b.End != b.Start {
				return label // not an empty label-only block
			}
			// A pure trampoline block contains only the LABEL op itself
			// and falls through or jumps; detect a following JUMP as the
			// next block's first op is out of scope here, so only follow
			// explicit same-block JUMP chains (handled by
			// collapseTrampolines); here we additionally thread when the
			// label's block itself is empty (LABEL only) and falls
			// through directly into another LABEL.
			if b.Start == b.End && ops[b.Start].Kind == tir.OpLabel {
				if b.Start+1 < len(ops) {
					if next, ok := labelName(ops[b.Start+1]); ok && ops[b.Start+1].Kind == tir.OpLabel {
						label = next
						continue
					}
				}
			}
			return label
		}
	}

	out := make([]tir.Op, len(ops))
	copy(out, ops)
	count := 0
	for i, op := range ops {
		if op.Kind != tir.OpJump && op.Kind != tir.OpCheckException {
			continue
		}
		name, ok := labelName(op)
		if !ok {
			continue
		}
		final := finalTarget(name)
		if final != name {
			op.Args[0] = tir.ImmArg(final)
			out[i] = op
			count++
		}
	}
	return out, count
}
