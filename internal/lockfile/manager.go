package lockfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/xattr"

	"tangram.systems/checkin/internal/artifact"
)

// Medium is the write mode for a file's lock.
type Medium int

const (
	MediumAuto Medium = iota
	MediumFile
	MediumAttr
	MediumNone
)

func ParseMedium(s string) (Medium, error) {
	switch s {
	case "", "auto":
		return MediumAuto, nil
	case "file":
		return MediumFile, nil
	case "attr":
		return MediumAttr, nil
	case "none":
		return MediumNone, nil
	default:
		return 0, fmt.Errorf("checkin: unknown lock medium %q", s)
	}
}

// ErrLockedNeedsUpdate is returned when Write is called in --locked mode but
// the new lock differs from what is already on disk.
var ErrLockedNeedsUpdate = errors.New("checkin: --locked requires a lock update")

// Manager reads, reuses, and writes per-file locks.
type Manager struct {
	Locked bool // --locked: abort instead of replacing or updating
}

// Read loads the existing lock for filePath (a package root or a bare
// module file), trying the sibling file first, then the xattr, returning
// (nil, MediumAuto, nil) if neither is present.
func (m *Manager) Read(filePath string) (*artifact.Lock, Medium, error) {
	if data, err := os.ReadFile(filePath + Ext); err == nil {
		lock, err := Unmarshal(data)
		if err != nil {
			return nil, 0, fmt.Errorf("checkin: parsing %s: %w", filePath+Ext, err)
		}
		return lock, MediumFile, nil
	} else if !os.IsNotExist(err) {
		return nil, 0, err
	}

	data, err := xattr.Get(filePath, XattrName)
	if err == nil {
		lock, err := Unmarshal(data)
		if err != nil {
			return nil, 0, fmt.Errorf("checkin: parsing xattr lock on %s: %w", filePath, err)
		}
		return lock, MediumAttr, nil
	}
	if isNoAttrError(err) {
		return nil, MediumAuto, nil
	}
	return nil, 0, err
}

// Write materializes lock for filePath using the requested medium. When
// requested is MediumAuto, it reuses whichever medium Read found, or if
// neither was present, picks "file" for package roots (hasPackageRoot) and
// "attr" otherwise.
func (m *Manager) Write(filePath string, lock *artifact.Lock, requested Medium, existingMedium Medium, hasPackageRoot bool) error {
	medium := requested
	if medium == MediumAuto {
		switch existingMedium {
		case MediumFile, MediumAttr:
			medium = existingMedium
		default:
			if hasPackageRoot {
				medium = MediumFile
			} else {
				medium = MediumAttr
			}
		}
	}

	if medium == MediumNone {
		return nil
	}

	data, err := Marshal(lock)
	if err != nil {
		return err
	}

	if m.Locked {
		existing, _, err := m.readMedium(filePath, medium)
		if err != nil {
			return err
		}
		if existing == nil || !bytes.Equal(mustMarshal(existing), data) {
			return ErrLockedNeedsUpdate
		}
		return nil
	}

	switch medium {
	case MediumFile:
		return writeFileAtomic(filePath+Ext, data)
	case MediumAttr:
		return xattr.Set(filePath, XattrName, data)
	default:
		return fmt.Errorf("checkin: unsupported lock medium %v", medium)
	}
}

func (m *Manager) readMedium(filePath string, medium Medium) (*artifact.Lock, Medium, error) {
	switch medium {
	case MediumFile:
		data, err := os.ReadFile(filePath + Ext)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, MediumAuto, nil
			}
			return nil, 0, err
		}
		lock, err := Unmarshal(data)
		return lock, MediumFile, err
	case MediumAttr:
		data, err := xattr.Get(filePath, XattrName)
		if err != nil {
			if isNoAttrError(err) {
				return nil, MediumAuto, nil
			}
			return nil, 0, err
		}
		lock, err := Unmarshal(data)
		return lock, MediumAttr, err
	default:
		return nil, MediumAuto, nil
	}
}

// RemoveStale deletes a lock that references dependency keys no longer
// present in its file.
func (m *Manager) RemoveStale(filePath string, medium Medium) error {
	switch medium {
	case MediumFile:
		err := os.Remove(filePath + Ext)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	case MediumAttr:
		err := xattr.Remove(filePath, XattrName)
		if err != nil && !isNoAttrError(err) {
			return err
		}
		return nil
	default:
		return nil
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func mustMarshal(lock *artifact.Lock) []byte {
	data, err := Marshal(lock)
	if err != nil {
		// lock was itself parsed from valid JSON moments earlier.
		panic(err)
	}
	return data
}

func isNoAttrError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, xattr.ENOATTR) || os.IsNotExist(err)
}
