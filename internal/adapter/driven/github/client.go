// Package github implements the Gateway port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/cmalloy/gitbar/internal/domain/model"
	"github.com/cmalloy/gitbar/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Gateway = (*Client)(nil)

// codeownersPaths are the locations GitHub recognizes, in lookup order.
var codeownersPaths = []string{"CODEOWNERS", ".github/CODEOWNERS", "docs/CODEOWNERS"}

// Client implements the driven.Gateway port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// SearchIssues runs an issue search query and returns the matching issue refs.
// It handles pagination automatically.
func (c *Client) SearchIssues(ctx context.Context, query string) ([]model.IssueRef, error) {
	opts := &gh.SearchOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var refs []model.IssueRef

	for {
		result, resp, err := c.gh.Search.Issues(ctx, query, opts)
		if err != nil {
			return nil, fmt.Errorf("searching issues %q (page %d): %w", query, opts.Page, err)
		}

		logRateLimit(resp, "search", opts.Page, len(result.Issues))

		for _, issue := range result.Issues {
			org, repo, err := splitRepoURL(issue.GetRepositoryURL())
			if err != nil {
				slog.Warn("skipping search result with odd repository URL", "url", issue.GetRepositoryURL())
				continue
			}
			refs = append(refs, model.IssueRef{
				ID:     issue.GetID(),
				Org:    org,
				Repo:   repo,
				Number: issue.GetNumber(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return refs, nil
}

// GetPullRequest fetches a single pull request and maps it to the domain
// model. Derived fields are left zero for the normalizer.
func (c *Client) GetPullRequest(ctx context.Context, org, repo string, number int) (*model.PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Get(ctx, org, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s#%d: %w", org, repo, number, err)
	}

	logRateLimit(resp, org+"/"+repo+"/pull", 0, 1)

	mapped := mapPullRequest(pr, org, repo)
	return &mapped, nil
}

// GetReviews returns all reviews on a PR in submission order.
func (c *Client) GetReviews(ctx context.Context, org, repo string, number int) ([]model.Review, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var reviews []model.Review

	for {
		page, resp, err := c.gh.PullRequests.ListReviews(ctx, org, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing reviews for %s/%s#%d (page %d): %w", org, repo, number, opts.Page, err)
		}

		for _, r := range page {
			reviews = append(reviews, model.Review{
				Reviewer:    r.GetUser().GetLogin(),
				State:       model.ReviewState(r.GetState()),
				SubmittedAt: r.GetSubmittedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return reviews, nil
}

// GetCheckRuns returns the check runs for the given ref.
func (c *Client) GetCheckRuns(ctx context.Context, org, repo, ref string) ([]model.CheckRun, error) {
	opts := &gh.ListCheckRunsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var runs []model.CheckRun

	for {
		result, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, org, repo, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("listing check runs for %s/%s@%s (page %d): %w", org, repo, ref, opts.Page, err)
		}

		logRateLimit(resp, org+"/"+repo+"/check-runs", opts.Page, len(result.CheckRuns))

		for _, cr := range result.CheckRuns {
			runs = append(runs, model.CheckRun{
				Name:       cr.GetName(),
				Status:     cr.GetStatus(),
				Conclusion: cr.GetConclusion(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return runs, nil
}

// GetBranchProtection returns the branch's required-check contexts, wrapping
// driven.ErrNotFound when the branch is unprotected (404) or we lack
// permission to see its protection (403).
func (c *Client) GetBranchProtection(ctx context.Context, org, repo, branch string) (*model.BranchProtection, error) {
	checks, resp, err := c.gh.Repositories.GetRequiredStatusChecks(ctx, org, repo, branch)
	if err != nil {
		if isDegradable(resp) {
			return nil, fmt.Errorf("branch protection for %s/%s@%s: %w", org, repo, branch, driven.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching branch protection for %s/%s@%s: %w", org, repo, branch, err)
	}

	logRateLimit(resp, org+"/"+repo+"/required-checks", 0, 0)

	protection := &model.BranchProtection{}
	for _, check := range checks.GetChecks() {
		protection.RequiredChecks = append(protection.RequiredChecks, check.Context)
	}

	return protection, nil
}

// ListPullRequestFiles returns the paths changed by a PR.
func (c *Client) ListPullRequestFiles(ctx context.Context, org, repo string, number int) ([]string, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var files []string

	for {
		page, resp, err := c.gh.PullRequests.ListFiles(ctx, org, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for %s/%s#%d (page %d): %w", org, repo, number, opts.Page, err)
		}

		for _, f := range page {
			files = append(files, f.GetFilename())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return files, nil
}

// GetCodeownersFile returns the repository's CODEOWNERS contents, trying the
// standard locations in order. Wraps driven.ErrNotFound when no location has
// a readable file.
func (c *Client) GetCodeownersFile(ctx context.Context, org, repo string) (string, error) {
	for _, path := range codeownersPaths {
		file, _, resp, err := c.gh.Repositories.GetContents(ctx, org, repo, path, nil)
		if err != nil {
			if isDegradable(resp) {
				continue
			}
			return "", fmt.Errorf("fetching %s for %s/%s: %w", path, org, repo, err)
		}
		if file == nil {
			continue
		}

		contents, err := file.GetContent()
		if err != nil {
			return "", fmt.Errorf("decoding %s for %s/%s: %w", path, org, repo, err)
		}
		return contents, nil
	}

	return "", fmt.Errorf("codeowners for %s/%s: %w", org, repo, driven.ErrNotFound)
}

// GetOrgTeams returns the organization's teams and member logins keyed by
// "org/team" slug. Wraps driven.ErrNotFound when the org or its teams are
// not visible to the token.
func (c *Client) GetOrgTeams(ctx context.Context, org string) (model.TeamMembers, error) {
	teamOpts := &gh.ListOptions{PerPage: 100}
	teams := model.TeamMembers{}

	for {
		page, resp, err := c.gh.Teams.ListTeams(ctx, org, teamOpts)
		if err != nil {
			if isDegradable(resp) {
				return nil, fmt.Errorf("teams for %s: %w", org, driven.ErrNotFound)
			}
			return nil, fmt.Errorf("listing teams for %s (page %d): %w", org, teamOpts.Page, err)
		}

		for _, team := range page {
			slug := org + "/" + team.GetSlug()
			members, err := c.teamMembers(ctx, org, team.GetSlug())
			if err != nil {
				return nil, err
			}
			teams[slug] = members
		}

		if resp.NextPage == 0 {
			break
		}
		teamOpts.Page = resp.NextPage
	}

	return teams, nil
}

func (c *Client) teamMembers(ctx context.Context, org, slug string) ([]string, error) {
	opts := &gh.TeamListTeamMembersOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var members []string

	for {
		page, resp, err := c.gh.Teams.ListTeamMembersBySlug(ctx, org, slug, opts)
		if err != nil {
			return nil, fmt.Errorf("listing members of %s/%s (page %d): %w", org, slug, opts.Page, err)
		}

		for _, user := range page {
			members = append(members, user.GetLogin())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return members, nil
}

// GetNotifications returns the user's unread notifications with
// LatestCommentURL populated for the engine's lazy comment fetch.
func (c *Client) GetNotifications(ctx context.Context) ([]model.Notification, error) {
	opts := &gh.NotificationListOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var notifs []model.Notification

	for {
		page, resp, err := c.gh.Activity.ListNotifications(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing notifications (page %d): %w", opts.Page, err)
		}

		logRateLimit(resp, "notifications", opts.Page, len(page))

		for _, n := range page {
			id, err := strconv.ParseInt(n.GetID(), 10, 64)
			if err != nil {
				slog.Warn("skipping notification with non-numeric id", "id", n.GetID())
				continue
			}
			notifs = append(notifs, model.Notification{
				ID:               id,
				ThreadID:         n.GetID(),
				SubjectType:      n.GetSubject().GetType(),
				SubjectTitle:     n.GetSubject().GetTitle(),
				SubjectURL:       n.GetSubject().GetURL(),
				UpdatedAt:        n.GetUpdatedAt().Time,
				LatestCommentURL: n.GetSubject().GetLatestCommentURL(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return notifs, nil
}

// GetLatestComment fetches the comment body behind a latest-comment URL.
func (c *Client) GetLatestComment(ctx context.Context, commentURL string) (string, error) {
	req, err := c.gh.NewRequest(http.MethodGet, commentURL, nil)
	if err != nil {
		return "", fmt.Errorf("building comment request for %s: %w", commentURL, err)
	}

	var comment struct {
		Body string `json:"body"`
	}
	if _, err := c.gh.Do(ctx, req, &comment); err != nil {
		return "", fmt.Errorf("fetching comment %s: %w", commentURL, err)
	}

	return comment.Body, nil
}

// MarkNotificationRead marks a notification thread read at the remote end.
func (c *Client) MarkNotificationRead(ctx context.Context, threadID string) error {
	if _, err := c.gh.Activity.MarkThreadRead(ctx, threadID); err != nil {
		return fmt.Errorf("marking thread %s read: %w", threadID, err)
	}
	return nil
}

// RateLimit reports the token's remaining core API quota.
func (c *Client) RateLimit(ctx context.Context) (model.RateLimit, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return model.RateLimit{}, fmt.Errorf("fetching rate limit: %w", err)
	}
	core := limits.GetCore()
	if core == nil {
		return model.RateLimit{}, nil
	}
	return model.RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Reset:     core.Reset.Time,
	}, nil
}

// mapPullRequest converts a go-github PullRequest to the domain model using
// GetXxx() helpers exclusively to avoid nil pointer panics.
func mapPullRequest(pr *gh.PullRequest, org, repo string) model.PullRequest {
	state := model.PRStateOpen
	if pr.GetMerged() || !pr.GetMergedAt().IsZero() {
		state = model.PRStateMerged
	} else if pr.GetState() == "closed" {
		state = model.PRStateClosed
	}

	mergeable := model.MergeableUnknown
	if pr.Mergeable != nil {
		if pr.GetMergeable() {
			mergeable = model.MergeableYes
		} else {
			mergeable = model.MergeableNo
		}
	}

	mergeableState := model.MergeableState(pr.GetMergeableState())
	if mergeableState == "" {
		mergeableState = model.MergeableStateUnknown
	}

	return model.PullRequest{
		ID:             pr.GetID(),
		Org:            org,
		Repo:           repo,
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		Author:         pr.GetUser().GetLogin(),
		BaseBranch:     pr.GetBase().GetRef(),
		HeadBranch:     pr.GetHead().GetRef(),
		HeadSHA:        pr.GetHead().GetSHA(),
		State:          state,
		Mergeable:      mergeable,
		MergeableState: mergeableState,
		URL:            pr.GetHTMLURL(),
		APIURL:         pr.GetURL(),
		UpdatedAt:      pr.GetUpdatedAt().Time,
	}
}

// splitRepoURL extracts "org" and "repo" from an API repository URL like
// https://api.github.com/repos/org/repo.
func splitRepoURL(repoURL string) (string, string, error) {
	idx := strings.Index(repoURL, "/repos/")
	if idx < 0 {
		return "", "", fmt.Errorf("invalid repository URL %q", repoURL)
	}

	parts := strings.Split(repoURL[idx+len("/repos/"):], "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository URL %q", repoURL)
	}

	return parts[0], parts[1], nil
}

// isDegradable reports whether the response indicates data the engine can
// treat as absent (missing or forbidden) rather than a hard failure.
func isDegradable(resp *gh.Response) bool {
	return resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden)
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
