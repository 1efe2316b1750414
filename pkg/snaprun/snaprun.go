// Runs the external commands zfsnapr depends on (zfs, zpool, mount, umount)
// behind a narrow seam, so the otherwise untestable process boundary can be
// replaced with scripted replays in tests.
package snaprun

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"github.com/function61/gokit/logex"
)

type Runner interface {
	// Output runs a read-only query and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Run runs a mutating command, succeeding iff it exits zero.
	Run(ctx context.Context, name string, args ...string) error
}

// CommandError means an external command exited non-zero (or could not be
// started at all). Mount-side callers treat this as fatal; unmount-side
// callers log it and continue.
type CommandError struct {
	CommandLine string
	Stderr      string
	Err         error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.CommandLine, e.Err, strings.TrimSpace(e.Stderr))
	}

	return fmt.Sprintf("%s: %v", e.CommandLine, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func NewSystemRunner(logger *log.Logger) Runner {
	return &systemRunner{logex.Levels(logex.NonNil(logger))}
}

type systemRunner struct {
	log *logex.Leveled
}

func (s *systemRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	s.log.Debug.Printf("query: %s", commandLine(name, args))

	stdout, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, wrapExecError(name, args, err)
	}

	return stdout, nil
}

func (s *systemRunner) Run(ctx context.Context, name string, args ...string) error {
	s.log.Info.Printf("run: %s", commandLine(name, args))

	if output, err := exec.CommandContext(ctx, name, args...).CombinedOutput(); err != nil {
		return &CommandError{
			CommandLine: commandLine(name, args),
			Stderr:      string(output),
			Err:         err,
		}
	}

	return nil
}

func wrapExecError(name string, args []string, err error) error {
	cmdErr := &CommandError{
		CommandLine: commandLine(name, args),
		Err:         err,
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		cmdErr.Stderr = string(exitErr.Stderr)
	}

	return cmdErr
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
