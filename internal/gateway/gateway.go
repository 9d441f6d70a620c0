// Package gateway is the execution boundary of the assistant: it takes a
// resolved invocation (capability name + parameters) and runs it, outside
// the intent-resolution core. Two adapters are provided, a subprocess
// runner and a one-shot container runner, both honoring context
// cancellation so the caller can enforce a hard execution deadline.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrTimeout is returned when capability execution exceeded the caller's
// deadline and the in-flight process was killed. The invocation is never
// silently retried.
var ErrTimeout = errors.New("gateway: capability execution timed out")

// Invocation is a fully resolved request for the execution boundary.
type Invocation struct {
	Capability string
	Parameters map[string]string
}

// Result is the opaque success payload of a capability run.
type Result struct {
	Output string
}

// Error is a failure reported by the capability itself (as opposed to a
// transport problem or timeout). Its reason is surfaced to the user
// verbatim.
type Error struct {
	Capability string
	Reason     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: capability %q failed: %s", e.Capability, e.Reason)
}

// Gateway executes resolved capabilities. Implementations must honor ctx
// cancellation by killing the in-flight execution.
type Gateway interface {
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

// paramArgs renders parameters as deterministic --key=value arguments,
// sorted by key.
func paramArgs(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("--%s=%s", k, params[k]))
	}
	return args
}
