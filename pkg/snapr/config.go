package snapr

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Freaky/zfsnapr/pkg/safepath"
)

// Config is the parsed, immutable mount-time configuration. Constructed once
// at the CLI boundary (flags, optionally seeded from a JSON defaults file)
// and passed by value into the session.
type Config struct {
	// Only include datasets mounted at or under this path; target paths are
	// computed relative to it.
	Root string `json:"root"`
	// Drop datasets whose mountpoint equals or descends from any of these.
	Excludes []string `json:"excludes"`
	// Only include datasets (and snapshot pools) from this set; empty means
	// every discoverable pool.
	Pools []string `json:"pools"`
	// Allow executing binaries from the mounts (drops noexec).
	Exec bool `json:"exec"`
	// Allow setuid semantics on the mounts (drops nosuid).
	Suid bool `json:"suid"`
	// Mount a device filesystem at <target>/dev.
	Devfs bool `json:"devfs"`
	// Target-relative paths to mount empty scratch tmpfs at.
	Tmpfs []string `json:"tmpfs"`
	// Absolute host paths to bind-mount read-write at the same relative
	// location under the target.
	Passthrough []string `json:"passthrough"`
}

func (c Config) validate() error {
	if c.Root != "" && !filepath.IsAbs(c.Root) {
		return fmt.Errorf("root must be an absolute path: %q", c.Root)
	}

	for _, exclude := range c.Excludes {
		if !filepath.IsAbs(exclude) {
			return fmt.Errorf("exclude must be an absolute path: %q", exclude)
		}
	}

	for _, passthrough := range c.Passthrough {
		if !filepath.IsAbs(passthrough) {
			return fmt.Errorf("passthrough must be an absolute path: %q", passthrough)
		}
	}

	for _, tmpfs := range c.Tmpfs {
		if filepath.IsAbs(tmpfs) || strings.HasPrefix(tmpfs, "..") {
			return fmt.Errorf("tmpfs must be a target-relative path: %q", tmpfs)
		}
	}

	return nil
}

// rootScope returns the configured root, or "/" when none was given (the
// whole hierarchy participates).
func (c Config) rootScope() (safepath.Path, error) {
	if c.Root == "" {
		return safepath.Parse("/")
	}

	return safepath.Parse(c.Root)
}

func (c Config) excludePaths() ([]safepath.Path, error) {
	excludes := []safepath.Path{}
	for _, raw := range c.Excludes {
		exclude, err := safepath.Parse(raw)
		if err != nil {
			return nil, err
		}

		excludes = append(excludes, exclude)
	}

	return excludes, nil
}
