package zfs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSnapshotNotFound means no snapshot carries the requested tag, so there
// is nothing to tear down.
var ErrSnapshotNotFound = errors.New("no snapshots found for this target")

// CreateSnapshots takes a recursive snapshot <pool>@<tag> of each pool, puts
// a hold carrying the tag on it, then marks it for deferred destroy. The
// deferred destroy is the crash safety net: once the hold is released the
// snapshot deletes itself, and until then it stays available for forensic
// recovery even if this process dies without running teardown.
//
// Fail-fast: the first failing step aborts with the offending pool named.
// Pools already processed are left held, for the operator to reconcile.
func (c *Client) CreateSnapshots(ctx context.Context, pools []string, tag string) error {
	for _, pool := range pools {
		snapshot := pool + "@" + tag

		for _, args := range [][]string{
			{"snapshot", "-r", snapshot},
			{"hold", "-r", tag, snapshot},
			{"destroy", "-d", "-r", snapshot},
		} {
			if err := c.runner.Run(ctx, "zfs", args...); err != nil {
				return fmt.Errorf("pool %s: %w", pool, err)
			}
		}

		c.log.Info.Printf("snapshotted %s", snapshot)
	}

	return nil
}

// DestroySnapshots recursively releases the tag's hold on each pool-level
// snapshot carrying it. Because deferred destroy was set at creation time,
// release alone deletes the whole recursive set. Best-effort: a failure on
// one pool does not stop the rest.
func (c *Client) DestroySnapshots(ctx context.Context, tag string) error {
	snapshots, err := c.findSnapshots(ctx, tag)
	if err != nil {
		return err
	}

	allErrs := []error{}
	for _, snapshot := range snapshots {
		// child snapshots are covered by their pool's recursive release
		if strings.Contains(snapshot[:strings.IndexByte(snapshot, '@')], "/") {
			continue
		}
		if err := c.runner.Run(ctx, "zfs", "release", "-r", tag, snapshot); err != nil {
			c.log.Error.Printf("release %s: %v", snapshot, err)
			allErrs = append(allErrs, fmt.Errorf("release %s: %w", snapshot, err))
		} else {
			c.log.Info.Printf("released %s", snapshot)
		}
	}

	return errors.Join(allErrs...)
}

// SnapshotsExist reports whether any snapshot carries the tag.
func (c *Client) SnapshotsExist(ctx context.Context, tag string) (bool, error) {
	snapshots, err := c.findSnapshots(ctx, tag)
	if err != nil {
		return false, err
	}

	return len(snapshots) > 0, nil
}

func (c *Client) findSnapshots(ctx context.Context, tag string) ([]string, error) {
	output, err := c.runner.Output(ctx, "zfs", "list", "-H", "-t", "snapshot", "-o", "name")
	if err != nil {
		return nil, err
	}

	snapshots := []string{}
	for _, line := range strings.Split(strings.TrimSuffix(string(output), "\n"), "\n") {
		if strings.HasSuffix(line, "@"+tag) {
			snapshots = append(snapshots, line)
		}
	}

	return snapshots, nil
}
