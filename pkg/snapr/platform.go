package snapr

import (
	"github.com/Freaky/zfsnapr/pkg/safepath"
)

// Platform-specific mount mechanisms, modelled as a capability table instead
// of scattered GOOS branches. An absent capability means the corresponding
// optional mount (devfs, passthrough) is skipped with a warning rather than
// aborting the run.
type platformMounts struct {
	devfsArgs func(target safepath.Path) []string
	bindArgs  func(source, target safepath.Path) []string
}

var mountsByPlatform = map[string]platformMounts{
	"freebsd": {
		devfsArgs: func(target safepath.Path) []string {
			return []string{"-t", "devfs", "devfs", target.String()}
		},
		bindArgs: func(source, target safepath.Path) []string {
			return []string{"-t", "nullfs", "-o", "rw", source.String(), target.String()}
		},
	},
	"linux": {
		devfsArgs: func(target safepath.Path) []string {
			return []string{"-t", "devtmpfs", "devtmpfs", target.String()}
		},
		bindArgs: func(source, target safepath.Path) []string {
			return []string{"--bind", source.String(), target.String()}
		},
	},
}

func devfsMountArgs(goos string, target safepath.Path) ([]string, bool) {
	platform, ok := mountsByPlatform[goos]
	if !ok || platform.devfsArgs == nil {
		return nil, false
	}

	return platform.devfsArgs(target), true
}

func bindMountArgs(goos string, source safepath.Path, target safepath.Path) ([]string, bool) {
	platform, ok := mountsByPlatform[goos]
	if !ok || platform.bindArgs == nil {
		return nil, false
	}

	return platform.bindArgs(source, target), true
}
