// Package config reads the mid-end's four environment-variable overrides
// once per process and exposes them as a plain struct, so callers (and
// tests) can override individual fields without mutating the real
// environment.
package config

import (
	"os"
	"strconv"
)

// Config carries the knobs spec.md §6 names.
type Config struct {
	// HardFail raises ConvergenceFailure instead of degrading when the
	// driver cannot reach a fixed point within budget.
	HardFail bool
	// BudgetMSOverride, when non-nil, replaces the policy-resolved
	// per-function time budget.
	BudgetMSOverride *float64
	// DevEnable forces dev-tier passes (idempotence self-check, fuller
	// timing) even under a release profile.
	DevEnable bool
	// SCCPMaxItersOverride, when non-nil, replaces the policy-resolved
	// SCCP worklist iteration cap.
	SCCPMaxItersOverride *int
}

const (
	envHardFail  = "MOLT_MIDEND_HARD_FAIL"
	envBudgetMS  = "MOLT_MIDEND_BUDGET_MS"
	envDevEnable = "MOLT_MIDEND_DEV_ENABLE"
	envSCCPIters = "MOLT_SCCP_MAX_ITERS"
)

// FromEnv reads the four env vars once and returns the resolved Config.
func FromEnv() Config {
	var c Config
	c.HardFail = os.Getenv(envHardFail) == "1"
	c.DevEnable = os.Getenv(envDevEnable) == "1"
	if raw, ok := os.LookupEnv(envBudgetMS); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			c.BudgetMSOverride = &v
		}
	}
	if raw, ok := os.LookupEnv(envSCCPIters); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			c.SCCPMaxItersOverride = &v
		}
	}
	return c
}
