// ZFS dataset inventory and snapshot lifecycle, implemented over the zfs/zpool
// command line utilities.
package zfs

import (
	"strings"

	"github.com/Freaky/zfsnapr/pkg/safepath"
)

// Dataset is a named, independently mountable unit of storage within a pool.
// Identity is the name.
type Dataset struct {
	Name       string
	Mountpoint safepath.Path
}

// Pool returns the storage aggregate the dataset belongs to: the prefix of
// its name before the first "/" or "@".
func (d Dataset) Pool() string {
	if idx := strings.IndexAny(d.Name, "/@"); idx != -1 {
		return d.Name[:idx]
	}

	return d.Name
}
