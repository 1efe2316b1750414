// Durable, crash-recoverable record of every mount created under a target
// root. The ledger file on disk, not process memory, is the authority for
// teardown, because mount and unmount are always separate process
// invocations.
package mountledger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Freaky/zfsnapr/pkg/safepath"
)

// ErrNotExist means no ledger file exists for the tag. Teardown treats this
// as "already cleaned up by other means", not a hard error.
var ErrNotExist = errors.New("no mount ledger for this target")

// Absolute paths can contain any byte except NUL, so NUL is the one safe
// record delimiter.
const delimiter = "\x00"

// FilePath returns the ledger's location for a session tag. It lives in the
// shared temp dir so a later invocation, or a cold-started process after a
// crash, can find it from the tag alone.
func FilePath(tag string) string {
	return filepath.Join(os.TempDir(), tag+".mounts")
}

// WriteSession holds the ledger open with an exclusive advisory lock, so a
// concurrent reader or writer can never observe a partial record.
type WriteSession struct {
	file     *os.File
	recorded map[string]bool
}

func OpenWrite(tag string) (*WriteSession, error) {
	file, err := os.OpenFile(FilePath(tag), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	if err := lockExclusive(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("mountledger: lock: %w", err)
	}

	existing, err := parseLedger(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, err
	}

	session := &WriteSession{file: file, recorded: map[string]bool{}}
	for _, path := range existing {
		session.recorded[path.String()] = true
	}

	return session, nil
}

// Record appends path to the ledger and flushes it to disk before returning,
// so that a crash immediately after still leaves the record durable before
// the corresponding mount command ever runs. Idempotent: recording a path
// already present is a no-op reporting alreadyRecorded=true.
func (s *WriteSession) Record(path safepath.Path) (alreadyRecorded bool, err error) {
	if s.recorded[path.String()] {
		return true, nil
	}

	if _, err := s.file.WriteString(path.String() + delimiter); err != nil {
		return false, err
	}
	if err := s.file.Sync(); err != nil {
		return false, err
	}

	s.recorded[path.String()] = true

	return false, nil
}

func (s *WriteSession) Close() error {
	return s.file.Close() // releases the lock
}

// Read returns the recorded paths in original write order, holding the
// exclusive lock for the duration of the read.
func Read(tag string) ([]safepath.Path, error) {
	file, err := os.Open(FilePath(tag))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	defer file.Close()

	if err := lockExclusive(file); err != nil {
		return nil, fmt.Errorf("mountledger: lock: %w", err)
	}

	return parseLedger(file)
}

// Clear deletes the ledger file. Must only be called after a fully
// successful teardown: a ledger with entries left behind is what allows a
// retry to pick up exactly where a partial unmount stopped.
func Clear(tag string) error {
	return os.Remove(FilePath(tag))
}

func parseLedger(file *os.File) ([]safepath.Path, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	paths := []safepath.Path{}
	for _, record := range strings.Split(string(content), delimiter) {
		if record == "" { // trailing delimiter
			continue
		}

		path, err := safepath.Parse(record)
		if err != nil {
			return nil, fmt.Errorf("mountledger: corrupt record %q: %w", record, err)
		}

		paths = append(paths, path)
	}

	return paths, nil
}
