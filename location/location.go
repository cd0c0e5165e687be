// Package location identifies storage targets: an on-disk directory, the
// shared in-memory target, or a unique in-memory target that is never shared.
package location

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"pkt.systems/storeconn/internal/pathutil"
)

// Kind enumerates the Location variants.
type Kind uint8

const (
	// KindDisk addresses a filesystem directory.
	KindDisk Kind = iota + 1
	// KindMem addresses the process-wide shared memory target.
	KindMem
	// KindMemUnique addresses a private memory target; no two are equal.
	KindMemUnique
)

func (k Kind) String() string {
	switch k {
	case KindDisk:
		return "disk"
	case KindMem:
		return "mem"
	case KindMemUnique:
		return "mem-unique"
	default:
		return "unknown"
	}
}

// Location is an immutable value usable as a map key. Disk locations compare
// by canonical directory path, shared memory locations are all equal and
// unique memory locations carry a random id.
type Location struct {
	kind Kind
	dir  string
	id   string
}

// Disk returns the Location for dir. The path is expanded (~, $VAR) and made
// absolute so different spellings of one directory compare equal.
func Disk(dir string) (Location, error) {
	canonical, err := pathutil.Canonical(dir)
	if err != nil {
		return Location{}, fmt.Errorf("location: %w", err)
	}
	return Location{kind: KindDisk, dir: canonical}, nil
}

// Mem returns the shared in-memory Location.
func Mem() Location {
	return Location{kind: KindMem}
}

// MemUnique returns a fresh in-memory Location distinct from every other.
func MemUnique() Location {
	return Location{kind: KindMemUnique, id: uuid.Must(uuid.NewV7()).String()}
}

// Parse accepts mem://, mem://unique, disk:///abs/path or a bare path.
func Parse(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("location: empty location")
	}
	if !strings.Contains(raw, "://") {
		return Disk(raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("location: parse %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "mem", "memory":
		switch strings.Trim(u.Host+u.Path, "/") {
		case "":
			return Mem(), nil
		case "unique":
			return MemUnique(), nil
		default:
			return Location{}, fmt.Errorf("location: unknown memory location %q (expected mem:// or mem://unique)", raw)
		}
	case "disk", "file":
		p := u.Path
		if u.Host != "" {
			// disk://relative/dir keeps the host as the first path element.
			p = filepath.Join(u.Host, u.Path)
		}
		if p == "" {
			return Location{}, fmt.Errorf("location: disk location %q missing path", raw)
		}
		return Disk(p)
	default:
		return Location{}, fmt.Errorf("location: scheme %q not supported", u.Scheme)
	}
}

// Kind reports the variant.
func (l Location) Kind() Kind { return l.kind }

// IsZero reports whether l was never initialised.
func (l Location) IsZero() bool { return l.kind == 0 }

// IsMem is true for both memory variants.
func (l Location) IsMem() bool { return l.kind == KindMem || l.kind == KindMemUnique }

// IsMemUnique is true for locations that must never be cached.
func (l Location) IsMemUnique() bool { return l.kind == KindMemUnique }

// Dir returns the directory of a disk location, or "" for memory locations.
func (l Location) Dir() string {
	if l.kind != KindDisk {
		return ""
	}
	return l.dir
}

// Path joins name under the location directory. Memory locations return "".
func (l Location) Path(name string) string {
	if l.kind != KindDisk {
		return ""
	}
	return filepath.Join(l.dir, name)
}

// String renders the location in the form accepted by Parse (the unique
// memory form includes its id and is therefore not round-trippable).
func (l Location) String() string {
	switch l.kind {
	case KindDisk:
		return "disk://" + filepath.ToSlash(l.dir)
	case KindMem:
		return "mem://"
	case KindMemUnique:
		return "mem://unique#" + l.id
	default:
		return "<invalid>"
	}
}
