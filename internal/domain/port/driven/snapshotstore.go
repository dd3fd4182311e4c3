package driven

import (
	"context"
	"time"

	"github.com/cmalloy/gitbar/internal/domain/model"
)

// SnapshotStore is the driven port for the persisted snapshot. All mutations
// are synchronous against the in-memory state; Commit makes that state
// durable. Read returns a defensive point-in-time copy, so concurrent readers
// see either the pre-cycle or post-cycle snapshot, never a partial one.
type SnapshotStore interface {
	// Read returns a deep copy of the current snapshot.
	Read() *model.Snapshot

	// ReplacePullRequests swaps the whole pull-request map. Entries absent
	// from prs are dropped; callers carry sticky fields forward first.
	ReplacePullRequests(prs map[int64]model.PullRequest)
	// ReplaceNotifications swaps the whole notification map.
	ReplaceNotifications(notifs map[int64]model.Notification)

	// PutCodeowners caches a repository's parsed rules (nil records a
	// failed/absent fetch so it is not retried within the cache lifetime).
	PutCodeowners(repoKey string, rules []model.CodeownersRule)
	// PutTeamMembers caches an organization's team rosters.
	PutTeamMembers(org string, teams model.TeamMembers)
	// SetMentioned replaces the mentioned / team-mentioned PR id sets.
	SetMentioned(mentioned, teamMentioned map[int64]struct{})
	// SetLastRefresh records the completion time of the last successful cycle.
	SetLastRefresh(t time.Time)

	// MutatePullRequest applies fn to the stored PR with the given id.
	// Returns ErrNotFound if no such PR is tracked.
	MutatePullRequest(id int64, fn func(*model.PullRequest)) error
	// MutateNotification applies fn to the stored notification.
	// Returns ErrNotFound if no such notification is tracked.
	MutateNotification(id int64, fn func(*model.Notification)) error
	// MutateAllNotifications applies fn to every stored notification.
	MutateAllNotifications(fn func(*model.Notification))

	// Commit durably persists the current in-memory state.
	Commit(ctx context.Context) error
}
