// Package status implements the read-only per-inode sync-state query and
// the opaque status-event sink of spec.md §6: the only surface the core
// exposes to a GUI/tray/IPC layer, which is itself out of scope (§1).
package status

import (
	"errors"
	"strings"

	"github.com/jstaf/driveflux/internal/store"
	"github.com/jstaf/driveflux/internal/storeerr"
)

// State is one of the three sync states a path can resolve to.
type State int

const (
	Unknown State = iota
	Synced
	Pending
)

func (s State) String() string {
	switch s {
	case Synced:
		return "Synced"
	case Pending:
		return "Pending"
	default:
		return "Unknown"
	}
}

// Resolve implements the §6 Status surface: walks path component by
// component from the root and classifies the resolved inode.
func Resolve(st *store.Store, path string) (State, error) {
	inode := store.RootInode
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		var err error
		inode, err = st.Lookup(inode, name)
		if errors.Is(err, storeerr.NotFound) {
			return Unknown, nil
		}
		if err != nil {
			return Unknown, err
		}
	}
	return stateOf(st, inode)
}

func stateOf(st *store.Store, inode uint64) (State, error) {
	dirty, deleted, err := st.GetSyncState(inode)
	if err != nil {
		return Unknown, err
	}
	if dirty || deleted {
		return Pending, nil
	}
	return Synced, nil
}

// EventKind names a condition the core reports through the opaque sink
// without interpreting it further; a GUI/tray layer decides how to present
// it (§1, §6).
type EventKind string

const (
	// EventConflictCopy fires when the uploader resolves an MD5 mismatch
	// by writing a conflict copy (§4.4.3, §7).
	EventConflictCopy EventKind = "conflict_copy"
	// EventPermissionRestored fires when a trash_file call fails with
	// insufficient permissions and the uploader restores the local
	// tombstone (§7).
	EventPermissionRestored EventKind = "permission_restored"
)

// Event is one opaque notification emitted into a Sink.
type Event struct {
	Kind     EventKind
	Inode    uint64
	RemoteID string
	Detail   string
}

// Sink receives Events. Implementations outside the core (GUI, tray, IPC)
// decide what to do with them; the core only produces them.
type Sink interface {
	Emit(Event)
}

// NopSink discards every Event. The zero value of Sink fields in
// internal/sync falls back to this so callers never need a nil check.
type NopSink struct{}

func (NopSink) Emit(Event) {}
