package snapr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Freaky/zfsnapr/pkg/mountledger"
	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/Freaky/zfsnapr/pkg/snaprun"
	"github.com/function61/gokit/assert"
)

// Puts the ledger dir and the mount target under the test's control, and
// wires the mountpoint check to an in-memory set since nothing actually gets
// mounted under scripted runners.
type testEnv struct {
	target  safepath.Path
	runner  *snaprun.Scripted
	mounted map[string]bool
}

func newTestEnv(t *testing.T) *testEnv {
	base := t.TempDir()

	ledgerDir := filepath.Join(base, "ledgers")
	assert.Ok(t, os.MkdirAll(ledgerDir, 0700))
	t.Setenv("TMPDIR", ledgerDir)

	targetDir := filepath.Join(base, "target")
	assert.Ok(t, os.MkdirAll(targetDir, 0700))

	return &testEnv{
		target:  safepath.MustParse(targetDir),
		runner:  snaprun.NewScripted(),
		mounted: map[string]bool{},
	}
}

func (e *testEnv) session(cfg Config) *Session {
	session := NewSession(e.target, cfg, e.runner, nil)
	session.checkMountpoint = func(path safepath.Path) (bool, error) {
		return e.mounted[path.String()], nil
	}

	return session
}

func (e *testEnv) tag() string {
	return FingerprintFor(e.target).Tag()
}

// scripts the inventory queries for datasets given as name/mountpoint pairs
func (e *testEnv) scriptInventory(pairs ...string) {
	listing := ""
	for i := 0; i < len(pairs); i += 2 {
		listing += pairs[i] + "\tyes\n"
		e.runner.Script("zfs get -H -o value mountpoint "+pairs[i],
			snaprun.ScriptedResult{Stdout: pairs[i+1] + "\n"})
	}

	e.runner.Script("zfs list -H -o name,mounted -t filesystem",
		snaprun.ScriptedResult{Stdout: listing})
	e.runner.Script("zpool list -H -o name,altroot",
		snaprun.ScriptedResult{Stdout: "tank\t-\n"})
}

func (e *testEnv) scriptSnapshotCreate(pool string) {
	snapshot := pool + "@" + e.tag()
	e.runner.Script("zfs snapshot -r "+snapshot, snaprun.ScriptedResult{})
	e.runner.Script("zfs hold -r "+e.tag()+" "+snapshot, snaprun.ScriptedResult{})
	e.runner.Script("zfs destroy -d -r "+snapshot, snaprun.ScriptedResult{})
}

func (e *testEnv) ledgerPaths(t *testing.T) []string {
	paths, err := mountledger.Read(e.tag())
	assert.Ok(t, err)

	strs := []string{}
	for _, path := range paths {
		strs = append(strs, path.String())
	}

	return strs
}

func TestMountHappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.scriptInventory("tank/root", "/", "tank/home", "/home")
	env.scriptSnapshotCreate("tank")

	rootMount := "mount -t zfs -o ro,noexec,nosuid tank/root@" + env.tag() + " " + env.target.String()
	homeMount := "mount -t zfs -o ro,noexec,nosuid tank/home@" + env.tag() + " " + env.target.String() + "/home"
	env.runner.Script(rootMount, snaprun.ScriptedResult{})
	env.runner.Script(homeMount, snaprun.ScriptedResult{})

	assert.Ok(t, env.session(Config{}).Mount(context.Background()))

	// ledger holds exactly the two targets, in mount order
	assert.EqualString(t, strings.Join(env.ledgerPaths(t), ";"),
		env.target.String()+";"+env.target.String()+"/home")

	// parent mounted before descendant
	calls := strings.Join(env.runner.Calls, "\n")
	assert.Assert(t, strings.Index(calls, rootMount) < strings.Index(calls, homeMount))
}

func TestMountOptionToggles(t *testing.T) {
	env := newTestEnv(t)
	env.scriptInventory("tank/root", "/")
	env.scriptSnapshotCreate("tank")
	env.runner.Script(
		"mount -t zfs -o ro tank/root@"+env.tag()+" "+env.target.String(),
		snaprun.ScriptedResult{})

	assert.Ok(t, env.session(Config{Exec: true, Suid: true}).Mount(context.Background()))
}

func TestMountShimsForMissingIntermediates(t *testing.T) {
	env := newTestEnv(t)
	// no dataset for the target root itself, so target/usr/local has no
	// existing parent chain
	env.scriptInventory("tank/usr/local", "/usr/local", "tank/opt", "/opt")
	env.scriptSnapshotCreate("tank")

	env.runner.Script("mount -t tmpfs tmpfs "+env.target.String(), snaprun.ScriptedResult{})
	env.runner.Script(
		"mount -t zfs -o ro,noexec,nosuid tank/opt@"+env.tag()+" "+env.target.String()+"/opt",
		snaprun.ScriptedResult{})
	env.runner.Script(
		"mount -t zfs -o ro,noexec,nosuid tank/usr/local@"+env.tag()+" "+env.target.String()+"/usr/local",
		snaprun.ScriptedResult{})

	assert.Ok(t, env.session(Config{}).Mount(context.Background()))

	// the shim tmpfs was mounted exactly once even though both datasets
	// needed directories created beneath it
	shimMounts := 0
	for _, call := range env.runner.Calls {
		if call == "mount -t tmpfs tmpfs "+env.target.String() {
			shimMounts++
		}
	}
	assert.Assert(t, shimMounts == 1)

	// shim ledgered before the real mounts
	assert.EqualString(t, env.ledgerPaths(t)[0], env.target.String())

	// missing chain was created for the deeper mount
	info, err := os.Stat(env.target.String() + "/usr/local")
	assert.Ok(t, err)
	assert.Assert(t, info.IsDir())
}

func TestMountFailureIsFailFast(t *testing.T) {
	env := newTestEnv(t)
	env.scriptInventory("tank/root", "/", "tank/home", "/home")
	env.scriptSnapshotCreate("tank")

	env.runner.Script(
		"mount -t zfs -o ro,noexec,nosuid tank/root@"+env.tag()+" "+env.target.String(),
		snaprun.ScriptedResult{})
	env.runner.Script(
		"mount -t zfs -o ro,noexec,nosuid tank/home@"+env.tag()+" "+env.target.String()+"/home",
		snaprun.ScriptedResult{Fail: true})

	err := env.session(Config{}).Mount(context.Background())
	assert.Assert(t, err != nil)

	// everything attempted so far stays ledgered for a later umount: the
	// successful mount, and the failed entry that was recorded before its
	// mount ran
	assert.EqualString(t, strings.Join(env.ledgerPaths(t), ";"),
		env.target.String()+";"+env.target.String()+"/home")
}

func TestMountTmpfsExtra(t *testing.T) {
	env := newTestEnv(t)
	env.scriptInventory("tank/root", "/")
	env.scriptSnapshotCreate("tank")
	env.runner.Script(
		"mount -t zfs -o ro,noexec,nosuid tank/root@"+env.tag()+" "+env.target.String(),
		snaprun.ScriptedResult{})
	env.runner.Script("mount -t tmpfs tmpfs "+env.target.String()+"/var/run", snaprun.ScriptedResult{})

	assert.Ok(t, env.session(Config{Tmpfs: []string{"var/run"}}).Mount(context.Background()))

	paths := env.ledgerPaths(t)
	assert.EqualString(t, paths[len(paths)-1], env.target.String()+"/var/run")
}

func TestMountTmpfsEscapeRefused(t *testing.T) {
	env := newTestEnv(t)
	env.scriptInventory("tank/root", "/")
	env.scriptSnapshotCreate("tank")
	env.runner.Script(
		"mount -t zfs -o ro,noexec,nosuid tank/root@"+env.tag()+" "+env.target.String(),
		snaprun.ScriptedResult{})

	err := env.session(Config{Tmpfs: []string{"../outside"}}).Mount(context.Background())
	assert.Assert(t, err != nil)
}
