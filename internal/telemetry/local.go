package telemetry

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

// LocalAddress is the counter-store key for the controller's own host.
const LocalAddress = "local"

// localRunner executes the probe battery on the controller's own host
// through /bin/sh, so local sampling reads the exact same /proc files and
// tool output the remote path does.
type localRunner struct{}

// Local returns a Runner for the controller's own host.
func Local() Runner {
	return localRunner{}
}

func (localRunner) Address() string {
	return LocalAddress
}

func (localRunner) Execute(ctx context.Context, command string) (sshx.Result, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := sshx.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			// The command ran; a nonzero status is data, same as remote exec.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return result, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
				"Local probe didn't finish in time", "")
		}
		return result, errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't run the local probe", "Check that /bin/sh exists on this host.")
	}
	return result, nil
}
