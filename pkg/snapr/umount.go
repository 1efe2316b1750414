package snapr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Freaky/zfsnapr/pkg/mountledger"
	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/Freaky/zfsnapr/pkg/zfs"
)

// Umount reverses the ledger's mounts deepest-first and then tears down the
// snapshot set. The mount sweep is best-effort (one stuck mount must not
// block releasing the rest) and the ledger is deleted only after a sweep
// with zero errors, so a retry picks up exactly the remaining entries.
// Snapshot teardown runs regardless of sweep errors.
func (s *Session) Umount(ctx context.Context) error {
	exists, err := s.zfs.SnapshotsExist(ctx, s.fingerprint.Tag())
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", s.target, zfs.ErrSnapshotNotFound)
	}

	sweepErrors := 0

	paths, err := mountledger.Read(s.fingerprint.Tag())
	switch {
	case errors.Is(err, mountledger.ErrNotExist):
		s.logl.Info.Printf("no mount ledger for %s; assuming already unmounted", s.target)
	case err != nil:
		return err
	default:
		// Reverse lexicographic order unmounts descendants before their
		// ancestors, since a descendant's path string extends its ancestor's.
		// Unrelated siblings get an arbitrary relative order, which is safe:
		// each entry is verified to be an active mountpoint before touching it.
		sort.Slice(paths, func(i, j int) bool {
			return paths[i].String() > paths[j].String()
		})

		for _, path := range paths {
			if err := s.unmountOne(ctx, path); err != nil {
				if errors.Is(err, ErrEscapesTarget) {
					return err
				}

				s.logl.Error.Printf("unmount %s: %v", path, err)
				sweepErrors++
			}
		}

		if sweepErrors == 0 {
			if err := mountledger.Clear(s.fingerprint.Tag()); err != nil {
				return err
			}
		} else {
			s.logl.Error.Printf("%d unmount(s) failed; ledger retained for retry", sweepErrors)
		}
	}

	destroyErr := s.zfs.DestroySnapshots(ctx, s.fingerprint.Tag())

	if sweepErrors > 0 {
		return errors.Join(
			fmt.Errorf("unmount sweep had %d error(s); re-run umount to retry", sweepErrors),
			destroyErr)
	}

	return destroyErr
}

func (s *Session) unmountOne(ctx context.Context, path safepath.Path) error {
	mounted, err := s.checkMountpoint(path)
	if err != nil {
		return err
	}
	if !mounted {
		// idempotent re-run safety: a second umount invocation, or one after
		// a partial success, skips already-cleared paths
		s.logl.Debug.Printf("%s is not mounted; skipping", path)
		return nil
	}

	canonical, err := canonicalize(path)
	if err != nil {
		return err
	}
	if !canonical.Within(s.target) {
		return fmt.Errorf("ledger entry %s resolves to %s: %w", path, canonical, ErrEscapesTarget)
	}

	return s.runner.Run(ctx, "umount", path.String())
}

// canonicalize re-resolves a stored path against the live filesystem. A
// ledger entry is only ever acted on through its resolved form, so a symlink
// swapped in after recording cannot redirect the unmount outside the target.
func canonicalize(path safepath.Path) (safepath.Path, error) {
	resolved, err := filepath.EvalSymlinks(path.String())
	if err != nil {
		if os.IsNotExist(err) {
			// the path is an active mountpoint yet has no resolvable form;
			// treat as unsafe rather than guessing
			return safepath.Path{}, fmt.Errorf("%s: %w", path, ErrEscapesTarget)
		}

		return safepath.Path{}, err
	}

	return safepath.Parse(resolved)
}
