package snapr

import (
	"testing"

	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/Freaky/zfsnapr/pkg/zfs"
	"github.com/function61/gokit/assert"
)

func dataset(name string, mountpoint string) zfs.Dataset {
	return zfs.Dataset{Name: name, Mountpoint: safepath.MustParse(mountpoint)}
}

func TestWholeSystemPlan(t *testing.T) {
	datasets := []zfs.Dataset{
		dataset("tank/root", "/"),
		dataset("tank/home", "/home"),
	}

	selected, err := SelectDatasets(datasets, Config{})
	assert.Ok(t, err)
	assert.Assert(t, len(selected) == 2)

	plan, err := BuildPlan(selected, Config{}, safepath.MustParse("/mnt/backup"))
	assert.Ok(t, err)

	assert.Assert(t, len(plan) == 2)
	assert.EqualString(t, plan[0].Dataset.Name, "tank/root")
	assert.EqualString(t, plan[0].Target.String(), "/mnt/backup")
	assert.EqualString(t, plan[1].Dataset.Name, "tank/home")
	assert.EqualString(t, plan[1].Target.String(), "/mnt/backup/home")
}

func TestRootScopeWithExclude(t *testing.T) {
	cfg := Config{
		Root:     "/home",
		Excludes: []string{"/home/secret"},
	}

	selected, err := SelectDatasets([]zfs.Dataset{
		dataset("tank/home", "/home"),
		dataset("tank/home/secret", "/home/secret"),
		dataset("tank/home/pub", "/home/pub"),
	}, cfg)
	assert.Ok(t, err)

	assert.Assert(t, len(selected) == 2)
	assert.EqualString(t, selected[0].Name, "tank/home")
	assert.EqualString(t, selected[1].Name, "tank/home/pub")

	plan, err := BuildPlan(selected, cfg, safepath.MustParse("/mnt/backup"))
	assert.Ok(t, err)

	// rebased without the /home prefix
	assert.EqualString(t, plan[0].Target.String(), "/mnt/backup")
	assert.EqualString(t, plan[1].Target.String(), "/mnt/backup/pub")
}

func TestRootScopeDropsOutsiders(t *testing.T) {
	selected, err := SelectDatasets([]zfs.Dataset{
		dataset("tank/home", "/home"),
		dataset("tank/var", "/var"),
		// not a descendant of /home despite the string prefix
		dataset("tank/home2", "/home2"),
	}, Config{Root: "/home"})
	assert.Ok(t, err)

	assert.Assert(t, len(selected) == 1)
	assert.EqualString(t, selected[0].Name, "tank/home")
}

func TestExcludeSubtreesNeverSurvive(t *testing.T) {
	cfg := Config{Excludes: []string{"/var", "/home/secret"}}

	selected, err := SelectDatasets([]zfs.Dataset{
		dataset("tank/root", "/"),
		dataset("tank/var", "/var"),
		dataset("tank/var/log", "/var/log"),
		dataset("tank/home", "/home"),
		dataset("tank/home/secret", "/home/secret"),
		dataset("tank/home/secret/deeper", "/home/secret/deeper"),
	}, cfg)
	assert.Ok(t, err)

	excludes, err := cfg.excludePaths()
	assert.Ok(t, err)

	for _, survivor := range selected {
		for _, exclude := range excludes {
			assert.Assert(t, !survivor.Mountpoint.Within(exclude))
		}
	}

	assert.Assert(t, len(selected) == 2) // tank/root, tank/home
}

func TestPoolScoping(t *testing.T) {
	selected, err := SelectDatasets([]zfs.Dataset{
		dataset("tank/root", "/"),
		dataset("rpool/scratch", "/scratch"),
	}, Config{Pools: []string{"tank"}})
	assert.Ok(t, err)

	assert.Assert(t, len(selected) == 1)
	assert.EqualString(t, selected[0].Name, "tank/root")
}

func TestSnapshotPools(t *testing.T) {
	discovered := []string{"tank", "rpool", "scratch"}

	pools := SnapshotPools(discovered, Config{})
	assert.Assert(t, len(pools) == 3)

	pools = SnapshotPools(discovered, Config{Pools: []string{"rpool", "absent"}})
	assert.Assert(t, len(pools) == 1)
	assert.EqualString(t, pools[0], "rpool")
}

func TestPlanOrderPutsParentsFirst(t *testing.T) {
	selected := []zfs.Dataset{
		dataset("tank/home/user", "/home/user"),
		dataset("tank/root", "/"),
		dataset("tank/home", "/home"),
	}

	plan, err := BuildPlan(selected, Config{}, safepath.MustParse("/mnt/backup"))
	assert.Ok(t, err)

	assert.EqualString(t, plan[0].Target.String(), "/mnt/backup")
	assert.EqualString(t, plan[1].Target.String(), "/mnt/backup/home")
	assert.EqualString(t, plan[2].Target.String(), "/mnt/backup/home/user")
}
