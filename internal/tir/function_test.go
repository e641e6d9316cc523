package tir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"molt-midend/internal/tir"
)

func TestFunctionCloneIsIndependent(t *testing.T) {
	fn := &tir.Function{
		Name: "f", Module: "m", SourcePath: "m.py",
		Ops: []tir.Op{
			{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(1)}, Result: tir.Value{Name: "x"}},
		},
		PredefinedValueNames: []string{"arg0"},
	}
	clone := fn.Clone()
	clone.Ops[0].Args[0] = tir.ImmArg(2)
	clone.PredefinedValueNames[0] = "mutated"

	assert.Equal(t, 1, fn.Ops[0].Args[0].Imm)
	assert.Equal(t, "arg0", fn.PredefinedValueNames[0])
	assert.Equal(t, 2, clone.Ops[0].Args[0].Imm)
}
