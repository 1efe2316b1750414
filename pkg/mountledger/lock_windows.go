//go:build windows

package mountledger

import "os"

// Advisory locking is not available on Windows, but neither is ZFS mount
// orchestration; the rest of the tool refuses to do anything useful there.
func lockExclusive(file *os.File) error {
	return nil
}
