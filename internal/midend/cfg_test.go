package midend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molt-midend/internal/tir"
)

func v(name string) tir.Value { return tir.Value{Name: name} }

func ifElseOps() []tir.Op {
	return []tir.Op{
		{Kind: tir.OpConstBool, Args: []tir.Arg{tir.ImmArg(true)}, Result: v("cond")},
		{Kind: tir.OpIf, Args: []tir.Arg{tir.ValueArg(v("cond"))}, Result: tir.NoneValue},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(1)}, Result: v("a")},
		{Kind: tir.OpElse, Result: tir.NoneValue},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(2)}, Result: v("b")},
		{Kind: tir.OpEndIf, Result: tir.NoneValue},
		{Kind: tir.OpPhi, Args: []tir.Arg{tir.ValueArg(v("a")), tir.ValueArg(v("b"))}, Result: v("joined")},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("joined"))}, Result: tir.NoneValue},
	}
}

func TestBuildIfElseBlockShape(t *testing.T) {
	cfg, err := Build(ifElseOps())
	require.NoError(t, err)
	// entry, then, else, join = 4 blocks
	assert.Len(t, cfg.Blocks, 4)
	assert.Equal(t, []BlockID{1, 2}, cfg.Blocks[0].Succs)
}

func TestBuildUnbalancedIfErrors(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpConstBool, Args: []tir.Arg{tir.ImmArg(true)}, Result: v("cond")},
		{Kind: tir.OpIf, Args: []tir.Arg{tir.ValueArg(v("cond"))}, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Result: tir.NoneValue},
	}
	_, err := Build(ops)
	assert.Error(t, err)
}

func TestBuildJumpToUnknownLabelErrors(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpJump, Args: []tir.Arg{tir.ImmArg("nowhere")}, Result: tir.NoneValue},
	}
	_, err := Build(ops)
	assert.Error(t, err)
}

func TestDominatorsOverIfElseJoin(t *testing.T) {
	cfg, err := Build(ifElseOps())
	require.NoError(t, err)
	// join block is dominated by entry, not by then/else individually.
	join := cfg.Blocks[3].ID
	assert.True(t, cfg.Dominates(0, join))
	assert.False(t, cfg.Dominates(cfg.Blocks[1].ID, join))
}

func loopOps() []tir.Op {
	return []tir.Op{
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(0)}, Result: v("i0")},
		{Kind: tir.OpLoopStart, Result: tir.NoneValue},
		{Kind: tir.OpPhi, Args: []tir.Arg{tir.ValueArg(v("i0")), tir.ValueArg(v("i1"))}, Result: v("i")},
		{Kind: tir.OpLt, Args: []tir.Arg{tir.ValueArg(v("i")), tir.ImmArg(10)}, Result: v("cond")},
		{Kind: tir.OpLoopBreakIfFalse, Args: []tir.Arg{tir.ValueArg(v("cond"))}, Result: tir.NoneValue},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("i")), tir.ImmArg(1)}, Result: v("i1")},
		{Kind: tir.OpLoopEnd, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("i"))}, Result: tir.NoneValue},
	}
}

func TestBuildLoopBreakSuccessors(t *testing.T) {
	cfg, err := Build(loopOps())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	// The header's LOOP_BREAK_IF_FALSE leaves to the block after LOOP_END
	// (block 3) or falls through into the body (block 2).
	assert.Equal(t, []BlockID{3, 2}, cfg.Blocks[1].Succs)
}

func TestBuildLoopBreakOutsideLoopErrors(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpLoopBreak, Result: tir.NoneValue},
	}
	_, err := Build(ops)
	assert.Error(t, err)
}
