package midend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molt-midend/internal/config"
	"molt-midend/internal/tir"
)

func TestOptimizePreservesSemanticsOfProvenIfElse(t *testing.T) {
	before, err := Eval(ifElseOps())
	require.NoError(t, err)

	fn := &tir.Function{Name: "f", Module: "m", Ops: ifElseOps()}
	out, outcome, err := Optimize(fn, config.Config{})
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.RunID)

	after, err := Eval(out.Ops)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOptimizePreservesSemanticsOfLoop(t *testing.T) {
	before, err := Eval(loopOps())
	require.NoError(t, err)

	fn := &tir.Function{Name: "f", Module: "m", Ops: loopOps()}
	out, _, err := Optimize(fn, config.Config{})
	require.NoError(t, err)

	after, err := Eval(out.Ops)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOptimizeDevProfileSetsPolicyTierAndProfile(t *testing.T) {
	fn := &tir.Function{Name: "f", Module: "m", Ops: ifElseOps()}
	_, outcome, err := Optimize(fn, config.Config{DevEnable: true})
	require.NoError(t, err)
	assert.Equal(t, "dev", outcome.Profile)
	assert.Equal(t, "A", outcome.Tier)
}

func TestOptimizeSoftFailsOnUnrepairableCfgWithoutHardFail(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpElse, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Result: tir.NoneValue},
	}
	fn := &tir.Function{Name: "broken", Module: "m", Ops: ops}
	out, _, err := Optimize(fn, config.Config{})
	require.NoError(t, err)
	assert.Equal(t, ops, out.Ops)
}

func TestOptimizeHardFailSurfacesError(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpElse, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Result: tir.NoneValue},
	}
	fn := &tir.Function{Name: "broken", Module: "m", Ops: ops}
	_, _, err := Optimize(fn, config.Config{HardFail: true})
	assert.Error(t, err)
}

func TestStructuralHashIgnoresLineOps(t *testing.T) {
	a := []tir.Op{{Kind: tir.OpReturn, Result: tir.NoneValue}}
	b := []tir.Op{
		{Kind: tir.OpLine, Args: []tir.Arg{tir.ImmArg(42)}, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Result: tir.NoneValue},
	}
	assert.Equal(t, structuralHash(a), structuralHash(b))
}

func TestStructuralHashDiffersOnRealChange(t *testing.T) {
	a := []tir.Op{{Kind: tir.OpReturn, Result: tir.NoneValue}}
	b := []tir.Op{{Kind: tir.OpLoopBreak, Result: tir.NoneValue}}
	assert.NotEqual(t, structuralHash(a), structuralHash(b))
}
