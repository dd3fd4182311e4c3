package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cmalloy/gitbar/internal/codeowners"
	"github.com/cmalloy/gitbar/internal/domain/model"
)

// reconcileNotifications fetches the user's notifications, normalizes each
// against the previous snapshot, links them to tracked pull requests (lazily
// fetching PRs not found by discovery), and records new-notification alerts.
// A failed listing aborts the cycle like any other transient remote failure.
func (e *Engine) reconcileNotifications(ctx context.Context, c *cycleState) error {
	tctx, cancel := e.gwCtx(ctx)
	raws, err := e.gateway.GetNotifications(tctx)
	cancel()
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}

	prsByURL := make(map[string]int64, len(c.prs))
	for id, pr := range c.prs {
		prsByURL[pr.APIURL] = id
	}

	for _, raw := range raws {
		stored, known := c.prev.Notifications[raw.ID]

		var notif model.Notification
		if known {
			// Cleared is sticky; the rest refreshes from the remote record.
			notif = stored.Clone()
			notif.ThreadID = raw.ThreadID
			notif.SubjectTitle = raw.SubjectTitle
			notif.SubjectURL = raw.SubjectURL
			notif.UpdatedAt = raw.UpdatedAt

			if stored.Cleared {
				// Still unread remotely despite being cleared here: dismiss it
				// at the remote end so it stops re-surfacing.
				tctx, cancel := e.gwCtx(ctx)
				if err := e.gateway.MarkNotificationRead(tctx, raw.ThreadID); err != nil {
					slog.Error("mark notification read failed", "id", raw.ID, "error", err)
				}
				cancel()
			}
		} else {
			notif = raw.Clone()
			notif.Cleared = false
			if strings.Contains(raw.LatestCommentURL, "comments") {
				tctx, cancel := e.gwCtx(ctx)
				body, err := e.gateway.GetLatestComment(tctx, raw.LatestCommentURL)
				cancel()
				if err != nil {
					slog.Error("fetch latest comment failed", "id", raw.ID, "error", err)
				} else {
					notif.Comment = body
				}
			}
		}
		notif.LatestCommentURL = ""

		prID, linked := prsByURL[raw.SubjectURL]
		if !linked && raw.SubjectType == "PullRequest" {
			if pr, err := e.trackFromNotification(ctx, c, raw.SubjectURL); err != nil {
				slog.Error("resolve notification pull request failed", "id", raw.ID, "url", raw.SubjectURL, "error", err)
			} else {
				prID, linked = pr.ID, true
				prsByURL[pr.APIURL] = pr.ID
			}
		}

		if linked {
			id := prID
			notif.PullRequestID = &id
			notif.PullRequestURL = c.prs[prID].URL
		} else {
			notif.PullRequestID = nil
			notif.PullRequestURL = ""
		}

		if !known && e.notificationAlertable(ctx, notif, c) {
			c.alerts = append(c.alerts, prAlert{
				prID: prID,
				alert: model.AlertRequest{
					Title:   "New notification",
					Message: notif.SubjectTitle,
					URL:     notif.PullRequestURL,
				},
			})
		}

		c.notifs[raw.ID] = notif
	}

	return nil
}

// trackFromNotification fetches the pull request behind a notification's
// subject URL out of band and adds it to this cycle's tracked set. Check
// status is intentionally skipped on this path: it is lazy resolution, not a
// full refresh, so no state-change comparison runs for it either.
func (e *Engine) trackFromNotification(ctx context.Context, c *cycleState, subjectURL string) (*model.PullRequest, error) {
	org, repo, number, err := parsePullURL(subjectURL)
	if err != nil {
		return nil, err
	}

	tctx, cancel := e.gwCtx(ctx)
	raw, err := e.gateway.GetPullRequest(tctx, org, repo, number)
	cancel()
	if err != nil {
		return nil, err
	}

	tctx, cancel = e.gwCtx(ctx)
	reviewList, err := e.gateway.GetReviews(tctx, org, repo, number)
	cancel()
	if err != nil {
		slog.Error("fetch reviews failed", "pr", raw.Description(), "error", err)
	}

	rules := e.resolveCodeowners(ctx, c, org, repo)
	teams := e.resolveTeamMembers(ctx, c, org)

	var owners map[string]bool
	if len(rules) > 0 {
		tctx, cancel = e.gwCtx(ctx)
		files, err := e.gateway.ListPullRequestFiles(tctx, org, repo, number)
		cancel()
		if err != nil {
			slog.Error("fetch changed files failed", "pr", raw.Description(), "error", err)
		}
		owners = codeowners.ForPullRequest(rules, files, ReduceReviews(reviewList), teams)
	}

	var previous *model.PullRequest
	if prev, ok := c.prev.PullRequests[raw.ID]; ok {
		previous = &prev
	}

	pr := NormalizePullRequest(*raw, previous, reviewList, nil, false, owners)
	c.prs[pr.ID] = pr
	c.checksKnown[pr.ID] = false

	return &pr, nil
}

// notificationAlertable applies the mentions policy to a newly observed
// notification. Notifications on muted PRs never alert; under mentions-only,
// only notifications tied to a mentioned (or, when enabled, team-mentioned)
// PR or to the user's own PR do.
func (e *Engine) notificationAlertable(ctx context.Context, notif model.Notification, c *cycleState) bool {
	var pr *model.PullRequest
	if notif.PullRequestID != nil {
		if tracked, ok := c.prs[*notif.PullRequestID]; ok {
			pr = &tracked
		}
	}

	if pr != nil && pr.Muted {
		return false
	}

	if !e.boolSetting(ctx, SettingMentionsOnly) {
		return true
	}
	if pr == nil {
		return false
	}
	if pr.Author == e.user {
		return true
	}
	if _, ok := c.mentioned[pr.ID]; ok {
		return true
	}
	if e.boolSetting(ctx, SettingTeamMentions) {
		if _, ok := c.teamMentioned[pr.ID]; ok {
			return true
		}
	}
	return false
}

// parsePullURL extracts PR coordinates from an API subject URL of the form
// https://api.github.com/repos/{org}/{repo}/pulls/{number}.
func parsePullURL(url string) (org, repo string, number int, err error) {
	const prefix = "https://api.github.com/repos/"
	rest, ok := strings.CutPrefix(url, prefix)
	if !ok {
		return "", "", 0, fmt.Errorf("unexpected subject URL %q", url)
	}

	parts := strings.Split(rest, "/")
	if len(parts) < 4 || parts[2] != "pulls" {
		return "", "", 0, fmt.Errorf("unexpected subject URL %q", url)
	}

	number, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("unexpected subject URL %q: %w", url, err)
	}

	return parts[0], parts[1], number, nil
}
