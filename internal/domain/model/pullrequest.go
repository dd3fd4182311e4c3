// Package model defines the domain types tracked by gitbar.
package model

import (
	"fmt"
	"time"
)

// PullRequest is a pull request tracked in the local snapshot. Remote-supplied
// fields are overwritten verbatim on every refresh; derived fields (Reviews,
// CheckOutcome, Owners) are recomputed from scratch each cycle; Muted is
// sticky and survives re-normalization.
type PullRequest struct {
	ID             int64 // GitHub's global PR id, stable for the object's lifetime.
	Org            string
	Repo           string
	Number         int
	Title          string
	Author         string
	BaseBranch     string
	HeadBranch     string
	HeadSHA        string
	State          PRState
	Mergeable      MergeableStatus
	MergeableState MergeableState
	URL            string // Browser URL.
	APIURL         string
	UpdatedAt      time.Time

	Muted bool // Sticky, user-controlled.

	// Derived per cycle.
	Reviews      map[string]ReviewState // Latest review state per reviewer login.
	CheckOutcome CheckOutcome
	Owners       map[string]bool // Owner group key -> approved.
}

// RepoKey returns the "org|repo" key used for CODEOWNERS caching.
func (pr PullRequest) RepoKey() string {
	return pr.Org + "|" + pr.Repo
}

// Description returns the short human-readable identifier used in alerts.
func (pr PullRequest) Description() string {
	return fmt.Sprintf("%s/%s #%d: %s", pr.Org, pr.Repo, pr.Number, pr.Title)
}

// Clone returns a deep copy of the pull request.
func (pr PullRequest) Clone() PullRequest {
	out := pr
	if pr.Reviews != nil {
		out.Reviews = make(map[string]ReviewState, len(pr.Reviews))
		for k, v := range pr.Reviews {
			out.Reviews[k] = v
		}
	}
	if pr.Owners != nil {
		out.Owners = make(map[string]bool, len(pr.Owners))
		for k, v := range pr.Owners {
			out.Owners[k] = v
		}
	}
	return out
}

// IssueRef identifies one row of a search result: the issue id GitHub search
// reports and the coordinates needed to fetch the underlying pull request.
type IssueRef struct {
	ID     int64
	Org    string
	Repo   string
	Number int
}

// Review is a single submitted review as returned by the gateway, in
// submission order.
type Review struct {
	Reviewer    string
	State       ReviewState
	SubmittedAt time.Time
}

// CheckRun is an individual check run on a PR's head commit.
type CheckRun struct {
	Name       string
	Status     string // queued, in_progress, completed.
	Conclusion string // success, failure, neutral, cancelled, skipped, timed_out, action_required.
	Required   bool   // Cross-referenced from branch protection.
}

// BranchProtection carries the required-check contexts of a protected branch.
// A nil *BranchProtection means the branch is not protected.
type BranchProtection struct {
	RequiredChecks []string
}
