package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultDriver is the program the exec gateway runs when none is
// configured. It receives the capability name followed by --key=value
// parameter arguments.
const DefaultDriver = "aida-plugin"

// ExecGateway runs capabilities as subprocesses of a driver program:
//
//	<driver> <capability> --slot=value ...
//
// The context deadline is enforced by the process runtime: when it expires
// the subprocess is killed and ErrTimeout is returned.
type ExecGateway struct {
	// Driver is the executable to run. Defaults to DefaultDriver when empty.
	Driver string
}

// NewExecGateway creates an ExecGateway for the given driver program.
func NewExecGateway(driver string) *ExecGateway {
	if driver == "" {
		driver = DefaultDriver
	}
	return &ExecGateway{Driver: driver}
}

// Invoke runs the capability subprocess and returns its stdout. A non-zero
// exit becomes a *Error carrying the process's stderr (or stdout when stderr
// is empty); a deadline expiry becomes ErrTimeout.
func (g *ExecGateway) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	args := append([]string{inv.Capability}, paramArgs(inv.Parameters)...)
	cmd := exec.CommandContext(ctx, g.Driver, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// The deadline takes precedence over whatever exit state the kill
	// produced.
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return Result{}, fmt.Errorf("%w: %s", ErrTimeout, inv.Capability)
	}

	if err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = strings.TrimSpace(stdout.String())
		}
		if reason == "" {
			reason = err.Error()
		}
		return Result{}, &Error{Capability: inv.Capability, Reason: reason}
	}

	return Result{Output: strings.TrimSpace(stdout.String())}, nil
}

var _ Gateway = (*ExecGateway)(nil)
