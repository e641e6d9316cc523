// SPDX-License-Identifier: Apache-2.0
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"molt-midend/internal/config"
	"molt-midend/internal/midend"
	"molt-midend/internal/midenderr"
	"molt-midend/internal/tir"
)

// wireOp is the JSON shape a front-end emits one TIR op as: an opcode name,
// a positional argument vector (each either a value reference or an
// immediate literal), and the value name it defines, if any.
type wireOp struct {
	Kind   string    `json:"kind"`
	Args   []wireArg `json:"args"`
	Result string    `json:"result"`
}

type wireArg struct {
	Val *string `json:"val,omitempty"`
	Imm any     `json:"imm,omitempty"`
}

type wireFunction struct {
	Name       string   `json:"name"`
	Module     string   `json:"module"`
	SourcePath string   `json:"source_path"`
	Params     []string `json:"params"`
	Ops        []wireOp `json:"ops"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: molt-optctl <function.json>")
		os.Exit(1)
	}

	path := os.Args[1]
	raw, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	fn, err := decodeFunction(raw)
	if err != nil {
		color.Red("❌ Failed to decode %s: %s", path, err)
		os.Exit(1)
	}

	cfg := config.FromEnv()
	out, outcome, err := midend.Optimize(fn, cfg)
	if err != nil {
		reportOptimizerError(path, err)
		os.Exit(1)
	}

	encoded, encErr := json.MarshalIndent(encodeFunction(out), "", "  ")
	if encErr != nil {
		color.Red("Failed to encode result: %s", encErr)
		os.Exit(1)
	}
	fmt.Println(string(encoded))

	if outcome.Degraded {
		color.Yellow("⚠ %s (resolved tier %s) degraded after %d event(s)", fn.Name, outcome.Tier, len(outcome.DegradeEvents))
	}
	color.Green("✅ Optimized %s.%s in %.2fms (tier %s, profile %s)", fn.Module, fn.Name, outcome.SpentMS, outcome.Tier, outcome.Profile)
}

// reportOptimizerError prints a friendly diagnostic for the mid-end's
// typed error kinds; TIR ops carry no source position, so this mirrors
// reportParseError's banner-and-message shape without a caret.
func reportOptimizerError(path string, err error) {
	switch e := errors.Cause(err).(type) {
	case *midenderr.CfgInvalid:
		color.Red("❌ %s: cfg invalid at stage %s: %s", path, e.Stage, e.Reason)
	case *midenderr.VerifierFailure:
		color.Red("❌ %s: op %d (%s) uses undefined value %q", path, e.OpIndex, e.OpKind, e.MissingName)
	case *midenderr.BudgetExceeded:
		color.Red("❌ %s: budget exceeded at stage %s (%.2fms over %.2fms)", path, e.Stage, e.SpentMS, e.BudgetMS)
	case *midenderr.ConvergenceFailure:
		color.Red("❌ %s: failed to converge after %d rounds", path, e.Rounds)
	case *midenderr.InternalInvariant:
		color.HiRed("❌ %s: internal invariant violated at %s: %s", path, e.Stage, e.Message)
	default:
		color.Red("❌ %s: %s", path, err)
	}
}

func decodeFunction(raw []byte) (*tir.Function, error) {
	var wf wireFunction
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, err
	}
	ops := make([]tir.Op, len(wf.Ops))
	for i, wo := range wf.Ops {
		kind, ok := tir.ParseOpKind(wo.Kind)
		if !ok {
			return nil, fmt.Errorf("op %d: unknown opcode %q", i, wo.Kind)
		}
		args := make([]tir.Arg, len(wo.Args))
		for j, wa := range wo.Args {
			if wa.Val != nil {
				args[j] = tir.ValueArg(tir.Value{Name: *wa.Val})
			} else {
				args[j] = tir.ImmArg(wa.Imm)
			}
		}
		result := tir.NoneValue
		if wo.Result != "" {
			result = tir.Value{Name: wo.Result}
		}
		ops[i] = tir.Op{Kind: kind, Args: args, Result: result}
	}
	return &tir.Function{
		Name:                 wf.Name,
		Module:               wf.Module,
		SourcePath:           wf.SourcePath,
		Ops:                  ops,
		PredefinedValueNames: wf.Params,
	}, nil
}

func encodeFunction(fn *tir.Function) wireFunction {
	ops := make([]wireOp, len(fn.Ops))
	for i, op := range fn.Ops {
		args := make([]wireArg, len(op.Args))
		for j, a := range op.Args {
			if a.IsVal {
				name := a.Val.Name
				args[j] = wireArg{Val: &name}
			} else {
				args[j] = wireArg{Imm: a.Imm}
			}
		}
		result := ""
		if op.HasResult() {
			result = op.Result.Name
		}
		ops[i] = wireOp{Kind: op.Kind.String(), Args: args, Result: result}
	}
	return wireFunction{
		Name:       fn.Name,
		Module:     fn.Module,
		SourcePath: fn.SourcePath,
		Params:     fn.PredefinedValueNames,
		Ops:        ops,
	}
}
