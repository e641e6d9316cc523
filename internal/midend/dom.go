package midend

// computeDominators runs the standard Cooper-Harvey-Kennedy iterative
// dominator algorithm over c.Blocks, assuming block 0 is the entry.
func (c *CFG) computeDominators() {
	n := len(c.Blocks)
	if n == 0 {
		return
	}
	c.rpo = reversePostorder(c)
	postOrderIndex := make([]int, n)
	for i, b := range c.rpo {
		postOrderIndex[b] = len(c.rpo) - 1 - i
	}

	idom := make([]BlockID, n)
	for i := range idom {
		idom[i] = -1
	}
	idom[0] = 0

	changed := true
	for changed {
		changed = false
		for _, b := range c.rpo {
			if b == 0 {
				continue
			}
			var newIdom BlockID = -1
			for _, p := range c.Blocks[b].Preds {
				if idom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
					continue
				}
				newIdom = intersect(idom, postOrderIndex, newIdom, p)
			}
			if newIdom != -1 && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	// Unreachable blocks keep idom == -1; treat as self-dominating only.
	for i := range idom {
		if idom[i] == -1 {
			idom[i] = BlockID(i)
		}
	}
	c.idom = idom
}

func intersect(idom []BlockID, postOrderIndex []int, a, b BlockID) BlockID {
	for a != b {
		for postOrderIndex[a] < postOrderIndex[b] {
			a = idom[a]
		}
		for postOrderIndex[b] < postOrderIndex[a] {
			b = idom[b]
		}
	}
	return a
}

func reversePostorder(c *CFG) []BlockID {
	visited := make([]bool, len(c.Blocks))
	var postorder []BlockID
	var visit func(BlockID)
	visit = func(b BlockID) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range c.Blocks[b].Succs {
			visit(s)
		}
		postorder = append(postorder, b)
	}
	visit(0)
	// Reverse in place.
	for i, j := 0, len(postorder)-1; i < j; i, j = i+1, j-1 {
		postorder[i], postorder[j] = postorder[j], postorder[i]
	}
	// Blocks never reached from the entry (e.g. a dead handler before DCE
	// runs) are appended at the end so every block still gets an rpo slot.
	for i := range visited {
		if !visited[BlockID(i)] {
			postorder = append(postorder, BlockID(i))
		}
	}
	return postorder
}

// IDom returns b's immediate dominator.
func (c *CFG) IDom(b BlockID) BlockID { return c.idom[b] }

// Dominates reports whether a dominates b (reflexively: a dominates a).
func (c *CFG) Dominates(a, b BlockID) bool {
	for {
		if a == b {
			return true
		}
		if b == 0 && c.idom[b] == 0 {
			return a == 0
		}
		nb := c.idom[b]
		if nb == b {
			return false
		}
		b = nb
	}
}

// OpDominates reports whether the op at defIndex dominates the program
// point just before the op at useIndex, which is true either when their
// blocks are strictly ordered by block dominance, or when they share a
// block and defIndex precedes useIndex.
func (c *CFG) OpDominates(defIndex, useIndex int) bool {
	db, ub := c.IndexToBlock[defIndex], c.IndexToBlock[useIndex]
	if db == ub {
		return defIndex <= useIndex
	}
	return c.Dominates(db, ub)
}

// Executable blocks reachable from the entry, used by SCCP/DCE.
func (c *CFG) reachableFromEntry() map[BlockID]bool {
	reach := map[BlockID]bool{0: true}
	queue := []BlockID{0}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, s := range c.Blocks[b].Succs {
			if !reach[s] {
				reach[s] = true
				queue = append(queue, s)
			}
		}
	}
	return reach
}
