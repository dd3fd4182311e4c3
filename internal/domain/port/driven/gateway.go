// Package driven defines the port interfaces the application core depends on.
package driven

import (
	"context"
	"errors"

	"github.com/cmalloy/gitbar/internal/domain/model"
)

// ErrNotFound indicates the requested remote or stored object does not exist,
// or access to it is forbidden. Auxiliary fetches (CODEOWNERS, org teams,
// branch protection) wrap it so the engine can degrade instead of aborting.
var ErrNotFound = errors.New("not found")

// Gateway is the driven port wrapping the GitHub API. Implementations own
// authentication, pagination, and rate limiting; the engine never sees
// library types.
type Gateway interface {
	// SearchIssues runs an issue search query and returns the matching
	// issue refs (id plus PR coordinates).
	SearchIssues(ctx context.Context, query string) ([]model.IssueRef, error)
	// GetPullRequest fetches a single pull request with its remote-supplied
	// fields populated. Derived fields are left zero for the normalizer.
	GetPullRequest(ctx context.Context, org, repo string, number int) (*model.PullRequest, error)
	// GetReviews returns all reviews on a PR in submission order.
	GetReviews(ctx context.Context, org, repo string, number int) ([]model.Review, error)
	// GetCheckRuns returns the check runs for the given ref (branch or SHA).
	GetCheckRuns(ctx context.Context, org, repo, ref string) ([]model.CheckRun, error)
	// GetBranchProtection returns the branch's required-check contexts.
	// Returns ErrNotFound when the branch is unprotected or inaccessible.
	GetBranchProtection(ctx context.Context, org, repo, branch string) (*model.BranchProtection, error)
	// ListPullRequestFiles returns the paths changed by a PR.
	ListPullRequestFiles(ctx context.Context, org, repo string, number int) ([]string, error)
	// GetCodeownersFile returns the repository's CODEOWNERS contents.
	// Returns ErrNotFound when absent or forbidden.
	GetCodeownersFile(ctx context.Context, org, repo string) (string, error)
	// GetOrgTeams returns the organization's teams and their member logins,
	// keyed by "org/team" slug. Returns ErrNotFound when forbidden.
	GetOrgTeams(ctx context.Context, org string) (model.TeamMembers, error)
	// GetNotifications returns the user's unread notifications with
	// LatestCommentURL populated.
	GetNotifications(ctx context.Context) ([]model.Notification, error)
	// GetLatestComment fetches the comment body behind a latest-comment URL.
	GetLatestComment(ctx context.Context, url string) (string, error)
	// MarkNotificationRead marks a notification thread read at the remote end.
	MarkNotificationRead(ctx context.Context, threadID string) error
	// RateLimit reports the token's remaining core API quota.
	RateLimit(ctx context.Context) (model.RateLimit, error)
}
