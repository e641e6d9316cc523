package midend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molt-midend/internal/tir"
)

func TestGuardEliminationDropsDominatedDuplicate(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpCallInternal, Args: []tir.Arg{tir.ImmArg("load_arg")}, Result: v("x")},
		{Kind: tir.OpGuardTag, Args: []tir.Arg{tir.ValueArg(v("x")), tir.ImmArg("int")}, Result: tir.NoneValue},
		{Kind: tir.OpGuardTag, Args: []tir.Arg{tir.ValueArg(v("x")), tir.ImmArg("int")}, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("x"))}, Result: tir.NoneValue},
	}
	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	res := RunGuardElimination(ops, cfg, sccp, nil)
	assert.True(t, res.Eliminate[2])
	assert.False(t, res.Eliminate[1])
}

func TestGuardEliminationProvenBySCCPConstantTag(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(10)}, Result: v("x")},
		{Kind: tir.OpGuardTag, Args: []tir.Arg{tir.ValueArg(v("x")), tir.ImmArg("int")}, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("x"))}, Result: tir.NoneValue},
	}
	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	res := RunGuardElimination(ops, cfg, sccp, nil)
	assert.True(t, res.Eliminate[1])
}

func TestHoistGuardsCollapsesSiblingBranchGuards(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpConstBool, Args: []tir.Arg{tir.ImmArg(true)}, Result: v("cond")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(1)}, Result: v("x")},
		{Kind: tir.OpIf, Args: []tir.Arg{tir.ValueArg(v("cond"))}, Result: tir.NoneValue},
		{Kind: tir.OpGuardTag, Args: []tir.Arg{tir.ValueArg(v("x")), tir.ImmArg("int")}, Result: tir.NoneValue},
		{Kind: tir.OpElse, Result: tir.NoneValue},
		{Kind: tir.OpGuardTag, Args: []tir.Arg{tir.ValueArg(v("x")), tir.ImmArg("int")}, Result: tir.NoneValue},
		{Kind: tir.OpEndIf, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("x"))}, Result: tir.NoneValue},
	}
	cfg, err := Build(ops)
	require.NoError(t, err)
	res := HoistGuards(ops, cfg, nil)
	assert.Len(t, res.Eliminate, 2, "both arm copies must be removed, not just one")
	out := ApplyGuardElimination(ops, res)

	guardIdx, ifIdx := -1, -1
	for i, op := range out {
		switch op.Kind {
		case tir.OpGuardTag:
			guardIdx = i
		case tir.OpIf:
			ifIdx = i
		}
	}
	require.NotEqual(t, -1, guardIdx, "hoisted guard must survive in the output")
	require.NotEqual(t, -1, ifIdx)
	assert.Less(t, guardIdx, ifIdx, "the surviving guard must run before the branch so it covers both arms")

	count := 0
	for _, op := range out {
		if op.Kind == tir.OpGuardTag {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one guard must remain after hoisting")
}
