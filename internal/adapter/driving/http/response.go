package httphandler

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/cmalloy/gitbar/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// SnapshotResponse is the JSON representation of the full applet state.
type SnapshotResponse struct {
	PullRequests  []PRResponse           `json:"pull_requests"`
	Notifications []NotificationResponse `json:"notifications"`
	LastRefresh   string                 `json:"last_refresh"`
}

// PRResponse is the JSON representation of a pull request.
type PRResponse struct {
	ID             int64             `json:"id"`
	Org            string            `json:"org"`
	Repo           string            `json:"repo"`
	Number         int               `json:"number"`
	Title          string            `json:"title"`
	Author         string            `json:"author"`
	BaseBranch     string            `json:"base_branch"`
	HeadBranch     string            `json:"head_branch"`
	State          string            `json:"state"`
	Mergeable      string            `json:"mergeable"`
	MergeableState string            `json:"mergeable_state"`
	CheckOutcome   string            `json:"check_outcome"`
	Muted          bool              `json:"muted"`
	Mentioned      bool              `json:"mentioned"`
	TeamMentioned  bool              `json:"team_mentioned"`
	Reviews        map[string]string `json:"reviews"`
	Owners         map[string]bool   `json:"owners"`
	URL            string            `json:"url"`
	UpdatedAt      string            `json:"updated_at"`
}

// NotificationResponse is the JSON representation of a notification.
type NotificationResponse struct {
	ID             int64  `json:"id"`
	SubjectType    string `json:"subject_type"`
	SubjectTitle   string `json:"subject_title"`
	PullRequestID  *int64 `json:"pull_request_id"`
	PullRequestURL string `json:"pull_request_url,omitempty"`
	Comment        string `json:"comment,omitempty"`
	Cleared        bool   `json:"cleared"`
	UpdatedAt      string `json:"updated_at"`
}

// SettingRequest is the JSON body for the update setting endpoint.
type SettingRequest struct {
	Value string `json:"value"`
}

// RefreshResponse is the JSON body returned by a successful manual refresh.
type RefreshResponse struct {
	LastRefresh string `json:"last_refresh"`
}

// HealthResponse is the JSON representation of the health check endpoint.
// RateLimit is omitted when the quota lookup fails.
type HealthResponse struct {
	Status      string             `json:"status"`
	LastRefresh string             `json:"last_refresh"`
	Time        string             `json:"time"`
	RateLimit   *RateLimitResponse `json:"rate_limit,omitempty"`
}

// RateLimitResponse is the JSON representation of the remote API quota.
type RateLimitResponse struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reset     string `json:"reset"`
}

// toSnapshotResponse converts a domain Snapshot to its JSON response
// representation. Pull requests and notifications are sorted by ID so the
// output is stable across calls.
func toSnapshotResponse(snap *model.Snapshot) SnapshotResponse {
	prs := make([]PRResponse, 0, len(snap.PullRequests))
	for id, pr := range snap.PullRequests {
		_, mentioned := snap.Mentioned[id]
		_, teamMentioned := snap.TeamMentioned[id]
		prs = append(prs, toPRResponse(pr, mentioned, teamMentioned))
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].ID < prs[j].ID })

	notifs := make([]NotificationResponse, 0, len(snap.Notifications))
	for _, n := range snap.Notifications {
		notifs = append(notifs, toNotificationResponse(n))
	}
	sort.Slice(notifs, func(i, j int) bool { return notifs[i].ID < notifs[j].ID })

	return SnapshotResponse{
		PullRequests:  prs,
		Notifications: notifs,
		LastRefresh:   formatTime(snap.LastRefresh),
	}
}

// toPRResponse converts a domain PullRequest to its JSON response representation.
func toPRResponse(pr model.PullRequest, mentioned, teamMentioned bool) PRResponse {
	reviews := make(map[string]string, len(pr.Reviews))
	for reviewer, state := range pr.Reviews {
		reviews[reviewer] = string(state)
	}

	owners := make(map[string]bool, len(pr.Owners))
	for owner, approved := range pr.Owners {
		owners[owner] = approved
	}

	return PRResponse{
		ID:             pr.ID,
		Org:            pr.Org,
		Repo:           pr.Repo,
		Number:         pr.Number,
		Title:          pr.Title,
		Author:         pr.Author,
		BaseBranch:     pr.BaseBranch,
		HeadBranch:     pr.HeadBranch,
		State:          string(pr.State),
		Mergeable:      string(pr.Mergeable),
		MergeableState: string(pr.MergeableState),
		CheckOutcome:   string(pr.CheckOutcome),
		Muted:          pr.Muted,
		Mentioned:      mentioned,
		TeamMentioned:  teamMentioned,
		Reviews:        reviews,
		Owners:         owners,
		URL:            pr.URL,
		UpdatedAt:      formatTime(pr.UpdatedAt),
	}
}

// toNotificationResponse converts a domain Notification to its JSON representation.
func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:             n.ID,
		SubjectType:    n.SubjectType,
		SubjectTitle:   n.SubjectTitle,
		PullRequestID:  n.PullRequestID,
		PullRequestURL: n.PullRequestURL,
		Comment:        n.Comment,
		Cleared:        n.Cleared,
		UpdatedAt:      formatTime(n.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
