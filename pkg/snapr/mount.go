package snapr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Freaky/zfsnapr/pkg/mountledger"
	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/Freaky/zfsnapr/pkg/zfs"
	"github.com/function61/gokit/fileexists"
)

// ErrEscapesTarget means a stored or computed path resolved to somewhere
// outside the target root. It is never silently followed: it indicates
// ledger corruption or a symlink race that could otherwise touch an
// unrelated host path.
var ErrEscapesTarget = errors.New("path escapes the target directory")

// Plan computes the mount plan without mutating anything: inventory, filter,
// rebase. Shared by Mount and the dry-run CLI command.
func (s *Session) Plan(ctx context.Context) ([]MountEntry, error) {
	datasets, err := s.inventory(ctx)
	if err != nil {
		return nil, err
	}

	selected, err := SelectDatasets(datasets, s.cfg)
	if err != nil {
		return nil, err
	}

	return BuildPlan(selected, s.cfg, s.target)
}

// A root scope asks for datasets that are not necessarily mounted right now
// (an alternate boot environment, say), so scanning switches from "is
// mounted" to "could ever be mounted".
func (s *Session) inventory(ctx context.Context) ([]zfs.Dataset, error) {
	if s.cfg.Root != "" {
		return s.zfs.ListMountable(ctx)
	}

	return s.zfs.ListMounted(ctx)
}

// Mount snapshots the participating pools and performs the mount plan in
// dependency order, recording every path in the ledger before mounting onto
// it. Fail-fast: the first failure aborts, leaving already-made mounts (and
// their ledger records) in place for a later umount to reconcile.
func (s *Session) Mount(ctx context.Context) error {
	plan, err := s.Plan(ctx)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return errors.New("no datasets selected; nothing to mount")
	}

	pools, err := s.zfs.ListPools(ctx)
	if err != nil {
		return err
	}
	pools = SnapshotPools(pools, s.cfg)
	if len(pools) == 0 {
		return errors.New("no pools selected; nothing to snapshot")
	}

	if err := s.zfs.CreateSnapshots(ctx, pools, s.fingerprint.Tag()); err != nil {
		return err
	}

	ledger, err := mountledger.OpenWrite(s.fingerprint.Tag())
	if err != nil {
		return err
	}
	defer ledger.Close()

	for _, entry := range plan {
		if err := s.mountDataset(ctx, ledger, entry); err != nil {
			return err
		}
	}

	return s.mountExtras(ctx, ledger)
}

func (s *Session) mountDataset(ctx context.Context, ledger *mountledger.WriteSession, entry MountEntry) error {
	if err := s.ensureTargetDir(ctx, ledger, entry.Target); err != nil {
		return err
	}

	if _, err := ledger.Record(entry.Target); err != nil {
		return err
	}

	snapshot := entry.Dataset.Name + "@" + s.fingerprint.Tag()

	return s.runner.Run(ctx, "mount",
		"-t", "zfs", "-o", s.datasetMountOptions(), snapshot, entry.Target.String())
}

// Dataset mounts are always read-only; the toggles only control whether
// noexec/nosuid are added on top.
func (s *Session) datasetMountOptions() string {
	options := []string{"ro"}
	if !s.cfg.Exec {
		options = append(options, "noexec")
	}
	if !s.cfg.Suid {
		options = append(options, "nosuid")
	}

	return strings.Join(options, ",")
}

// ensureTargetDir makes path exist as a directory. A mount target can be
// missing entirely, e.g. when the pool's true root dataset is excluded or
// the dataset chain is discontinuous. In that case a throwaway tmpfs (a
// "shim") is mounted at the nearest existing ancestor, so the missing
// directory chain lands in a writable scratch area instead of requiring the
// host's real filesystem to be writable. The shim is ledgered before
// mounting, and only once per path, so re-encounters skip straight to mkdir.
func (s *Session) ensureTargetDir(ctx context.Context, ledger *mountledger.WriteSession, path safepath.Path) error {
	exists, err := fileexists.Exists(path.String())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	ancestor := path.Parent()
	for {
		exists, err := fileexists.Exists(ancestor.String())
		if err != nil {
			return err
		}
		if exists {
			break
		}

		parent := ancestor.Parent()
		if parent.Equals(ancestor) { // reached the filesystem root
			return fmt.Errorf("no existing ancestor for %s", path)
		}
		ancestor = parent
	}

	if !ancestor.Within(s.target) {
		return fmt.Errorf("shim for %s at %s: %w", path, ancestor, ErrEscapesTarget)
	}

	alreadyShimmed, err := ledger.Record(ancestor)
	if err != nil {
		return err
	}
	if !alreadyShimmed {
		if err := s.runner.Run(ctx, "mount", "-t", "tmpfs", "tmpfs", ancestor.String()); err != nil {
			return err
		}
	}

	return os.MkdirAll(path.String(), 0755)
}

// mountExtras performs the optional post-pass mounts: devfs, tmpfs set,
// passthrough binds. Platform-unsupported mechanisms are skipped with a
// warning; everything else keeps the ledger-then-mount contract.
func (s *Session) mountExtras(ctx context.Context, ledger *mountledger.WriteSession) error {
	if s.cfg.Devfs {
		dev := s.target.Join("dev")

		if args, supported := devfsMountArgs(s.goos, dev); supported {
			if err := s.mountExtra(ctx, ledger, dev, args); err != nil {
				return err
			}
		} else {
			s.logl.Error.Printf("devfs not supported on %s; skipping", s.goos)
		}
	}

	for _, relative := range s.cfg.Tmpfs {
		path := s.target.Join(relative)
		if !path.Within(s.target) {
			return fmt.Errorf("tmpfs %q: %w", relative, ErrEscapesTarget)
		}

		if err := s.mountExtra(ctx, ledger, path, []string{"-t", "tmpfs", "tmpfs", path.String()}); err != nil {
			return err
		}
	}

	for _, raw := range s.cfg.Passthrough {
		source, err := safepath.Parse(raw)
		if err != nil {
			return err
		}

		// same relative location under the target
		path, err := source.RebaseOnto(safepath.MustParse("/"), s.target)
		if err != nil {
			return err
		}

		args, supported := bindMountArgs(s.goos, source, path)
		if !supported {
			s.logl.Error.Printf("passthrough not supported on %s; skipping %s", s.goos, source)
			continue
		}

		if err := s.mountExtra(ctx, ledger, path, args); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) mountExtra(ctx context.Context, ledger *mountledger.WriteSession, path safepath.Path, args []string) error {
	if err := s.ensureTargetDir(ctx, ledger, path); err != nil {
		return err
	}

	if _, err := ledger.Record(path); err != nil {
		return err
	}

	return s.runner.Run(ctx, "mount", args...)
}
