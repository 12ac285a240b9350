// Package changes classifies a tracked document by comparing its local file and
// its current remote state against the baseline recorded in the manifest.
package changes

// State is the change classification of one document in one pass.
type State string

const (
	Unchanged   State = "unchanged"
	LocalOnly   State = "local-only"
	RemoteOnly  State = "remote-only"
	BothChanged State = "both-changed"
)

// Baseline is the (version, hash) pair both sides shared at the last sync.
type Baseline struct {
	Version     int64
	ContentHash string
}

// LocalState describes the local file. Exists=false means the file is absent.
type LocalState struct {
	Exists bool
	Hash   string
}

// RemoteState describes the current remote document.
type RemoteState struct {
	Version int64
	Hash    string
}

// LocalChanged reports whether the local side moved away from the baseline.
// An absent file always counts as changed.
func LocalChanged(base Baseline, local LocalState) bool {
	if !local.Exists {
		return true
	}
	return local.Hash != base.ContentHash
}

// RemoteChanged reports whether the remote side moved past the baseline version.
// A remote version below the baseline is not a change: versions never go back.
func RemoteChanged(base Baseline, remote RemoteState) bool {
	return remote.Version > base.Version
}

// Classify is the three-way comparison:
//
//	remote == base, local == base  -> Unchanged
//	remote == base, local != base  -> LocalOnly
//	remote >  base, local == base  -> RemoteOnly
//	remote >  base, local != base  -> BothChanged
func Classify(base Baseline, local LocalState, remote RemoteState) State {
	localMoved := LocalChanged(base, local)
	remoteMoved := RemoteChanged(base, remote)

	switch {
	case localMoved && remoteMoved:
		return BothChanged
	case localMoved:
		return LocalOnly
	case remoteMoved:
		return RemoteOnly
	default:
		return Unchanged
	}
}
