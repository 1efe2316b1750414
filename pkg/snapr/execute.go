package snapr

import (
	"context"
	"os"
	"os/exec"
)

// Execute mounts the replica, runs the command with inherited stdio inside
// the live host environment, then always attempts teardown. The child's exit
// status is returned regardless of teardown outcome, so backup wrappers see
// their tool's own result.
//
// A mount failure aborts before the child runs and, matching the fail-fast
// policy of plain mount, leaves partial state in place for the operator to
// reconcile with umount.
func (s *Session) Execute(ctx context.Context, argv []string) (int, error) {
	if err := s.Mount(ctx); err != nil {
		return 1, err
	}

	exitCode := 0
	var childErr error

	child := exec.Command(argv[0], argv[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	if err := child.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
			childErr = err
		}
	}

	// the caller's context may already be cancelled by the interrupt that
	// stopped the child; teardown still has to run to completion
	if err := s.Umount(context.Background()); err != nil {
		s.logl.Error.Printf("teardown after execute: %v", err)
	}

	return exitCode, childErr
}
