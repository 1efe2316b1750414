package snapr

import (
	"encoding/hex"

	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/minio/sha256-simd"
)

// Fingerprint deterministically names everything belonging to one target
// directory: the snapshot suffix, the hold tag and the mount ledger file.
// The same target always hashes to the same fingerprint, which is how a
// later umount invocation finds what an earlier mount invocation created
// without any shared process memory.
type Fingerprint string

func FingerprintFor(target safepath.Path) Fingerprint {
	digest := sha256.Sum256([]byte(target.String()))

	return Fingerprint("zfsnapr-" + hex.EncodeToString(digest[:8]))
}

// Tag is the string used as snapshot suffix, hold tag and ledger key.
func (f Fingerprint) Tag() string {
	return string(f)
}
