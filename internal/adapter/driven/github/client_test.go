package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/cmalloy/gitbar/internal/adapter/driven/github"
	"github.com/cmalloy/gitbar/internal/domain/model"
	"github.com/cmalloy/gitbar/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) (*ghAdapter.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/")
	require.NoError(t, err)

	return client, server
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// --- SearchIssues ---

func TestSearchIssues_MapsRepositoryURL(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/issues", r.URL.Path)
		assert.Equal(t, "is:open is:pr involves:testuser archived:false", r.URL.Query().Get("q"))
		writeJSON(t, w, map[string]any{
			"total_count": 2,
			"items": []map[string]any{
				{"id": 11, "number": 101, "repository_url": "https://api.github.com/repos/org/alpha"},
				{"id": 12, "number": 7, "repository_url": "https://api.github.com/repos/other/beta"},
			},
		})
	})

	client, _ := newTestClient(t, handler)
	refs, err := client.SearchIssues(context.Background(), "is:open is:pr involves:testuser archived:false")

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, model.IssueRef{ID: 11, Org: "org", Repo: "alpha", Number: 101}, refs[0])
	assert.Equal(t, model.IssueRef{ID: 12, Org: "other", Repo: "beta", Number: 7}, refs[1])
}

func TestSearchIssues_FollowsPagination(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, map[string]any{
				"total_count": 2,
				"items": []map[string]any{
					{"id": 2, "number": 2, "repository_url": "https://api.github.com/repos/org/repo"},
				},
			})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/search/issues?page=2>; rel="next"`, r.Host))
		writeJSON(t, w, map[string]any{
			"total_count": 2,
			"items": []map[string]any{
				{"id": 1, "number": 1, "repository_url": "https://api.github.com/repos/org/repo"},
			},
		})
	})

	client, _ := newTestClient(t, handler)
	refs, err := client.SearchIssues(context.Background(), "q")

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, int64(1), refs[0].ID)
	assert.Equal(t, int64(2), refs[1].ID)
}

// --- GetPullRequest ---

func TestGetPullRequest_MapsFields(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/repo/pulls/101", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"id":              int64(9001),
			"number":          101,
			"title":           "add widget",
			"state":           "open",
			"user":            map[string]any{"login": "alice"},
			"base":            map[string]any{"ref": "main"},
			"head":            map[string]any{"ref": "feature", "sha": "abc123"},
			"mergeable":       true,
			"mergeable_state": "clean",
			"html_url":        "https://github.com/org/repo/pull/101",
			"url":             "https://api.github.com/repos/org/repo/pulls/101",
			"updated_at":      "2026-08-12T09:30:00Z",
		})
	})

	client, _ := newTestClient(t, handler)
	pr, err := client.GetPullRequest(context.Background(), "org", "repo", 101)

	require.NoError(t, err)
	assert.Equal(t, int64(9001), pr.ID)
	assert.Equal(t, "org", pr.Org)
	assert.Equal(t, "repo", pr.Repo)
	assert.Equal(t, 101, pr.Number)
	assert.Equal(t, "alice", pr.Author)
	assert.Equal(t, "main", pr.BaseBranch)
	assert.Equal(t, "feature", pr.HeadBranch)
	assert.Equal(t, "abc123", pr.HeadSHA)
	assert.Equal(t, model.PRStateOpen, pr.State)
	assert.Equal(t, model.MergeableYes, pr.Mergeable)
	assert.Equal(t, model.MergeableStateClean, pr.MergeableState)
	assert.Equal(t, "https://github.com/org/repo/pull/101", pr.URL)
}

func TestGetPullRequest_MergedState(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"id":        int64(9002),
			"number":    102,
			"state":     "closed",
			"merged":    true,
			"merged_at": "2026-08-12T09:30:00Z",
		})
	})

	client, _ := newTestClient(t, handler)
	pr, err := client.GetPullRequest(context.Background(), "org", "repo", 102)

	require.NoError(t, err)
	assert.Equal(t, model.PRStateMerged, pr.State)
}

func TestGetPullRequest_NullMergeable(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"id":     int64(9003),
			"number": 103,
			"state":  "open",
		})
	})

	client, _ := newTestClient(t, handler)
	pr, err := client.GetPullRequest(context.Background(), "org", "repo", 103)

	require.NoError(t, err)
	assert.Equal(t, model.MergeableUnknown, pr.Mergeable)
	assert.Equal(t, model.MergeableStateUnknown, pr.MergeableState)
}

// --- GetReviews ---

func TestGetReviews(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/repo/pulls/101/reviews", r.URL.Path)
		writeJSON(t, w, []map[string]any{
			{"user": map[string]any{"login": "bob"}, "state": "APPROVED", "submitted_at": "2026-08-12T09:00:00Z"},
			{"user": map[string]any{"login": "carol"}, "state": "CHANGES_REQUESTED", "submitted_at": "2026-08-12T10:00:00Z"},
		})
	})

	client, _ := newTestClient(t, handler)
	reviews, err := client.GetReviews(context.Background(), "org", "repo", 101)

	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "bob", reviews[0].Reviewer)
	assert.Equal(t, model.ReviewStateApproved, reviews[0].State)
	assert.Equal(t, model.ReviewStateChangesRequested, reviews[1].State)
}

// --- GetBranchProtection ---

func TestGetBranchProtection_RequiredChecks(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/repo/branches/main/protection/required_status_checks", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"strict": true,
			"checks": []map[string]any{
				{"context": "build"},
				{"context": "lint"},
			},
		})
	})

	client, _ := newTestClient(t, handler)
	protection, err := client.GetBranchProtection(context.Background(), "org", "repo", "main")

	require.NoError(t, err)
	assert.Equal(t, []string{"build", "lint"}, protection.RequiredChecks)
}

func TestGetBranchProtection_UnprotectedBranch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.GetBranchProtection(context.Background(), "org", "repo", "main")

	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestGetBranchProtection_Forbidden(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.GetBranchProtection(context.Background(), "org", "repo", "main")

	assert.ErrorIs(t, err, driven.ErrNotFound)
}

// --- GetCheckRuns ---

func TestGetCheckRuns(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/repo/commits/abc123/check-runs", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"total_count": 2,
			"check_runs": []map[string]any{
				{"name": "build", "status": "completed", "conclusion": "success"},
				{"name": "e2e", "status": "in_progress"},
			},
		})
	})

	client, _ := newTestClient(t, handler)
	runs, err := client.GetCheckRuns(context.Background(), "org", "repo", "abc123")

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.CheckRun{Name: "build", Status: "completed", Conclusion: "success"}, runs[0])
	assert.Equal(t, model.CheckRun{Name: "e2e", Status: "in_progress"}, runs[1])
}

// --- GetCodeownersFile ---

func TestGetCodeownersFile_FallsBackThroughLocations(t *testing.T) {
	const contents = "* @org/platform\n"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/org/repo/contents/.github/CODEOWNERS" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(t, w, map[string]any{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(contents)),
		})
	})

	client, _ := newTestClient(t, handler)
	got, err := client.GetCodeownersFile(context.Background(), "org", "repo")

	require.NoError(t, err)
	assert.Equal(t, contents, got)
}

func TestGetCodeownersFile_AbsentEverywhere(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.GetCodeownersFile(context.Background(), "org", "repo")

	assert.ErrorIs(t, err, driven.ErrNotFound)
}

// --- GetOrgTeams ---

func TestGetOrgTeams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/org/teams", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []map[string]any{{"slug": "platform"}})
	})
	mux.HandleFunc("/orgs/org/teams/platform/members", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []map[string]any{{"login": "alice"}, {"login": "bob"}})
	})

	client, _ := newTestClient(t, mux)
	teams, err := client.GetOrgTeams(context.Background(), "org")

	require.NoError(t, err)
	assert.Equal(t, model.TeamMembers{"org/platform": {"alice", "bob"}}, teams)
}

func TestGetOrgTeams_Forbidden(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.GetOrgTeams(context.Background(), "org")

	assert.ErrorIs(t, err, driven.ErrNotFound)
}

// --- Notifications ---

func TestGetNotifications(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications", r.URL.Path)
		writeJSON(t, w, []map[string]any{
			{
				"id": "900",
				"subject": map[string]any{
					"type":               "PullRequest",
					"title":              "add widget",
					"url":                "https://api.github.com/repos/org/repo/pulls/101",
					"latest_comment_url": "https://api.github.com/repos/org/repo/issues/comments/5",
				},
				"updated_at": "2026-08-12T09:30:00Z",
			},
			{"id": "not-a-number", "subject": map[string]any{"type": "Issue"}},
		})
	})

	client, _ := newTestClient(t, handler)
	notifs, err := client.GetNotifications(context.Background())

	require.NoError(t, err)
	require.Len(t, notifs, 1, "non-numeric notification ids are skipped")
	assert.Equal(t, int64(900), notifs[0].ID)
	assert.Equal(t, "900", notifs[0].ThreadID)
	assert.Equal(t, "PullRequest", notifs[0].SubjectType)
	assert.Equal(t, "add widget", notifs[0].SubjectTitle)
	assert.Equal(t, "https://api.github.com/repos/org/repo/pulls/101", notifs[0].SubjectURL)
	assert.Equal(t, "https://api.github.com/repos/org/repo/issues/comments/5", notifs[0].LatestCommentURL)
}

func TestGetLatestComment(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/org/repo/issues/comments/5", r.URL.Path)
		writeJSON(t, w, map[string]any{"body": "looks good"})
	})

	client, server := newTestClient(t, handler)
	body, err := client.GetLatestComment(context.Background(), server.URL+"/repos/org/repo/issues/comments/5")

	require.NoError(t, err)
	assert.Equal(t, "looks good", body)
}

func TestMarkNotificationRead(t *testing.T) {
	var gotPath string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusResetContent)
	})

	client, _ := newTestClient(t, handler)
	err := client.MarkNotificationRead(context.Background(), "900")

	require.NoError(t, err)
	assert.Equal(t, "/notifications/threads/900", gotPath)
}

func TestRateLimit(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rate_limit", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"resources": map[string]any{
				"core": map[string]any{
					"limit":     5000,
					"remaining": 4321,
					"reset":     reset.Unix(),
				},
			},
		})
	})

	client, _ := newTestClient(t, handler)
	rl, err := client.RateLimit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5000, rl.Limit)
	assert.Equal(t, 4321, rl.Remaining)
	assert.True(t, rl.Reset.Equal(reset))
}
