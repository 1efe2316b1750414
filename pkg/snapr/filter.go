package snapr

import (
	"sort"

	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/Freaky/zfsnapr/pkg/zfs"
	"github.com/function61/gokit/sliceutil"
	"github.com/samber/lo"
)

// MountEntry pairs a dataset with the target-side path its snapshot will be
// mounted at.
type MountEntry struct {
	Dataset zfs.Dataset
	Target  safepath.Path
}

// SelectDatasets narrows the inventory by pool, root scope and exclusion
// rules. Pure; the input's mountpoint ordering is preserved.
func SelectDatasets(datasets []zfs.Dataset, cfg Config) ([]zfs.Dataset, error) {
	root, err := cfg.rootScope()
	if err != nil {
		return nil, err
	}

	excludes, err := cfg.excludePaths()
	if err != nil {
		return nil, err
	}

	return lo.Filter(datasets, func(dataset zfs.Dataset, _ int) bool {
		if len(cfg.Pools) > 0 && !sliceutil.ContainsString(cfg.Pools, dataset.Pool()) {
			return false
		}

		if !dataset.Mountpoint.Within(root) {
			return false
		}

		for _, exclude := range excludes {
			if dataset.Mountpoint.Within(exclude) {
				return false
			}
		}

		return true
	}), nil
}

// BuildPlan rebases each dataset's mountpoint (minus the root scope prefix)
// under the target directory. Entries come out sorted ascending by target
// path: lexicographic order on cleaned absolute paths puts every parent
// before its descendants, which mounting depends on since a mount target
// must already exist as a directory.
func BuildPlan(datasets []zfs.Dataset, cfg Config, target safepath.Path) ([]MountEntry, error) {
	root, err := cfg.rootScope()
	if err != nil {
		return nil, err
	}

	entries := []MountEntry{}
	for _, dataset := range datasets {
		entryTarget, err := dataset.Mountpoint.RebaseOnto(root, target)
		if err != nil {
			return nil, err
		}

		entries = append(entries, MountEntry{Dataset: dataset, Target: entryTarget})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Target.String() < entries[j].Target.String()
	})

	return entries, nil
}

// SnapshotPools intersects the discoverable pools with the requested set (an
// empty request selects all of them), preserving discovery order.
func SnapshotPools(discovered []string, cfg Config) []string {
	if len(cfg.Pools) == 0 {
		return discovered
	}

	return lo.Filter(discovered, func(pool string, _ int) bool {
		return sliceutil.ContainsString(cfg.Pools, pool)
	})
}
