// Snapshot-and-mount lifecycle engine: inventories mounted datasets, filters
// the participants, snapshots their pools, mounts the crash-consistent
// replica under a target directory, and reverses all of it deterministically
// from the on-disk mount ledger, even from a different process invocation.
package snapr

import (
	"log"
	"runtime"

	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/Freaky/zfsnapr/pkg/snaprun"
	"github.com/Freaky/zfsnapr/pkg/zfs"
	"github.com/function61/gokit/logex"
)

// Session binds a canonicalized target directory to its fingerprint and
// configuration. All state beyond this struct lives on disk (the ledger) or
// in the pools (the snapshots), so sessions from separate invocations
// against the same target are interchangeable.
type Session struct {
	target      safepath.Path
	fingerprint Fingerprint
	cfg         Config

	runner snaprun.Runner
	zfs    *zfs.Client
	logl   *logex.Leveled
	goos   string

	// injectable for tests
	checkMountpoint func(safepath.Path) (bool, error)
}

func NewSession(target safepath.Path, cfg Config, runner snaprun.Runner, logger *log.Logger) *Session {
	logger = logex.NonNil(logger)

	return &Session{
		target:      target,
		fingerprint: FingerprintFor(target),
		cfg:         cfg,

		runner: runner,
		zfs:    zfs.NewClient(runner, logex.Prefix("zfs", logger)),
		logl:   logex.Levels(logger),
		goos:   runtime.GOOS,

		checkMountpoint: isMountpoint,
	}
}

func (s *Session) Fingerprint() Fingerprint {
	return s.fingerprint
}
