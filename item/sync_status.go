package item

// SyncState enumerates how a local copy relates to the remote store.
type SyncState int

const (
	StateNotSynced SyncState = iota
	StateSynced
	StateLocallyModified
	StateLocallyDeleted
)

// VersionTag is an opaque remote revision marker, an HTTP entity tag
// in practice. It is never derived from item content, only compared.
type VersionTag string

// SyncStatus pairs a SyncState with the remote revision it refers to.
// NotSynced carries no tag; every other state remembers the revision
// the local copy last matched.
type SyncStatus struct {
	state SyncState
	tag   VersionTag
}

// NotSynced marks an item that was never pushed to nor pulled from a
// remote store.
func NotSynced() SyncStatus {
	return SyncStatus{state: StateNotSynced}
}

// Synced marks an item known to match the remote revision tag.
func Synced(tag VersionTag) SyncStatus {
	return SyncStatus{state: StateSynced, tag: tag}
}

// LocallyModified marks an item edited locally since it matched tag.
func LocallyModified(tag VersionTag) SyncStatus {
	return SyncStatus{state: StateLocallyModified, tag: tag}
}

// LocallyDeleted marks an item deleted locally while the remote still
// holds revision tag.
func LocallyDeleted(tag VersionTag) SyncStatus {
	return SyncStatus{state: StateLocallyDeleted, tag: tag}
}

// SyncStatusFrom rebuilds a status from its stored parts; the tag is
// dropped for NotSynced.
func SyncStatusFrom(state SyncState, tag VersionTag) SyncStatus {
	if state == StateNotSynced {
		return SyncStatus{state: StateNotSynced}
	}
	return SyncStatus{state: state, tag: tag}
}

func (s SyncStatus) State() SyncState {
	return s.state
}

// Tag returns the remote revision marker, "" for NotSynced.
func (s SyncStatus) Tag() VersionTag {
	return s.tag
}

func (s SyncStatus) String() string {
	switch s.state {
	case StateSynced:
		return "synced(" + string(s.tag) + ")"
	case StateLocallyModified:
		return "locally-modified(" + string(s.tag) + ")"
	case StateLocallyDeleted:
		return "locally-deleted(" + string(s.tag) + ")"
	default:
		return "not-synced"
	}
}
