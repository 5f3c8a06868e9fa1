// Package conflict decides between a local and a remote copy of the same
// session.
//
// Whole sessions follow last-writer-wins on LastUpdatedAt. The response map
// gets a narrower additive merge so answers recorded only on the older side
// are not lost. A missing copy counts as infinitely old.
//
// Timestamps come from two independently clocked stores, so "newer" here
// means "stamped later by its own store", nothing stronger.
package conflict

import (
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
)

// Winner names the side a resolution kept.
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Resolution is the outcome of ResolveConflict.
type Resolution struct {
	// Resolved is the kept copy. It aliases the input; callers that mutate it
	// should Clone first.
	Resolved *schema.Session
	// HadConflict is true when the timestamps differ.
	HadConflict bool
	Winner      Winner
}

// ResolveConflict keeps the copy with the greater LastUpdatedAt.
//
// Equal timestamps keep local and do not report a conflict. Two
// reconcilers running from opposite stores would each keep their own copy
// in that case.
func ResolveConflict(local, remote *schema.Session) Resolution {
	lt, rt := local.UpdatedAt(), remote.UpdatedAt()
	switch {
	case lt.Equal(rt):
		return Resolution{Resolved: local, HadConflict: false, Winner: WinnerLocal}
	case lt.After(rt):
		return Resolution{Resolved: local, HadConflict: true, Winner: WinnerLocal}
	default:
		return Resolution{Resolved: remote, HadConflict: true, Winner: WinnerRemote}
	}
}

// MergeResponses combines two response maps. The older side is applied
// first and the newer side second, so newer answers win on collision while
// keys only the older side knows survive. On equal timestamps local is
// applied last, matching ResolveConflict's tie-break.
//
// The result is a fresh map; neither input is modified.
func MergeResponses(local, remote schema.Responses, localTs, remoteTs time.Time) schema.Responses {
	older, newer := remote, local
	if localTs.Before(remoteTs) {
		older, newer = local, remote
	}

	merged := make(schema.Responses, len(older)+len(newer))
	for k, v := range older.Clone() {
		merged[k] = v
	}
	for k, v := range newer.Clone() {
		merged[k] = v
	}
	return merged
}

// ShouldOverwriteLocal reports whether the remote copy should replace the
// local one: local is absent or strictly older.
func ShouldOverwriteLocal(local, remote *schema.Session) bool {
	if local == nil {
		return true
	}
	return remote.UpdatedAt().After(local.UpdatedAt())
}

// ShouldPushToRemote reports whether the local copy should replace the
// remote one: remote is absent or strictly older.
func ShouldPushToRemote(local, remote *schema.Session) bool {
	if remote == nil {
		return true
	}
	return local.UpdatedAt().After(remote.UpdatedAt())
}

// Reconcile reduces two copies to one: the ResolveConflict winner, cloned,
// carrying the MergeResponses union of both response maps. Either side may
// be nil; Reconcile(nil, nil) returns nil.
func Reconcile(local, remote *schema.Session) (*schema.Session, Resolution) {
	res := ResolveConflict(local, remote)
	if res.Resolved == nil {
		return nil, res
	}

	out := res.Resolved.Clone()
	var lr, rr schema.Responses
	if local != nil {
		lr = local.Responses
	}
	if remote != nil {
		rr = remote.Responses
	}
	out.Responses = MergeResponses(lr, rr, local.UpdatedAt(), remote.UpdatedAt())
	return out, res
}
