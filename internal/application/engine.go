// Package application contains the reconciliation engine and its use-case logic.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cmalloy/gitbar/internal/codeowners"
	"github.com/cmalloy/gitbar/internal/domain/model"
	"github.com/cmalloy/gitbar/internal/domain/port/driven"
)

// ErrRefreshInProgress is returned by Refresh when a cycle is already
// running. Overlapping triggers are coalesced, never queued.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Engine orchestrates the refresh cycle: discover relevant pull requests,
// normalize them, reconcile notifications, decide alerts from the diff
// against the previous snapshot, and persist the result. It is the sole
// writer of the snapshot store.
type Engine struct {
	gateway     driven.Gateway
	store       driven.SnapshotStore
	settings    driven.SettingsStore
	alerts      driven.AlertSink
	user        string
	interval    time.Duration
	callTimeout time.Duration

	// Held for the duration of a cycle; TryLock keeps cycles from overlapping.
	cycleMu sync.Mutex
}

// NewEngine creates an Engine with all required dependencies. callTimeout
// bounds each individual gateway call so one unreachable dependency cannot
// wedge the scheduler; zero disables the bound.
func NewEngine(
	gateway driven.Gateway,
	store driven.SnapshotStore,
	settings driven.SettingsStore,
	alerts driven.AlertSink,
	user string,
	interval time.Duration,
	callTimeout time.Duration,
) *Engine {
	return &Engine{
		gateway:     gateway,
		store:       store,
		settings:    settings,
		alerts:      alerts,
		user:        user,
		interval:    interval,
		callTimeout: callTimeout,
	}
}

// Start runs an immediate refresh, then refreshes on the configured interval
// until the context is canceled. Ticks arriving while a cycle is running are
// skipped: the in-flight cycle already reflects "now" closely enough.
func (e *Engine) Start(ctx context.Context) {
	if err := e.Refresh(ctx); err != nil {
		slog.Error("initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return
		case <-ticker.C:
			switch err := e.Refresh(ctx); {
			case errors.Is(err, ErrRefreshInProgress):
				slog.Debug("tick skipped, cycle in flight")
			case err != nil:
				slog.Error("refresh cycle failed", "error", err)
			}
		}
	}
}

// Refresh runs one full refresh cycle. It returns ErrRefreshInProgress when
// a cycle is already running; any other error means the cycle aborted and
// the previous snapshot stands.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.cycleMu.TryLock() {
		return ErrRefreshInProgress
	}
	defer e.cycleMu.Unlock()

	return e.runCycle(ctx)
}

// prAlert pairs an alert with the PR it concerns so muted PRs can be
// filtered at dispatch time.
type prAlert struct {
	prID  int64 // 0 when the alert has no linked PR.
	alert model.AlertRequest
}

// cycleState is the scratch state of one refresh cycle.
type cycleState struct {
	prev *model.Snapshot

	prs         map[int64]model.PullRequest
	checksKnown map[int64]bool // PRs whose check outcome was actually computed this cycle.
	notifs      map[int64]model.Notification

	issueToPR     map[int64]int64
	mentioned     map[int64]struct{}
	teamMentioned map[int64]struct{}

	protection *cycleCache[string, *model.BranchProtection]

	alerts []prAlert
}

func (e *Engine) runCycle(ctx context.Context) error {
	start := time.Now()

	c := &cycleState{
		prev:          e.store.Read(),
		prs:           make(map[int64]model.PullRequest),
		checksKnown:   make(map[int64]bool),
		notifs:        make(map[int64]model.Notification),
		issueToPR:     make(map[int64]int64),
		mentioned:     make(map[int64]struct{}),
		teamMentioned: make(map[int64]struct{}),
		protection:    newCycleCache[string, *model.BranchProtection](),
	}

	raws, err := e.discover(ctx, c)
	if err != nil {
		return fmt.Errorf("discover pull requests: %w", err)
	}

	for _, raw := range raws {
		e.normalizePullRequest(ctx, c, raw)
	}

	if err := e.reconcileNotifications(ctx, c); err != nil {
		return err
	}

	e.persist(c)
	e.dispatchAlerts(ctx, c)

	if err := e.store.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	slog.Info("refresh cycle complete",
		"pull_requests", len(c.prs),
		"notifications", len(c.notifs),
		"alerts", len(c.alerts),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// discover runs the three searches (involving the user, mentioning the user,
// mentioning each of the user's teams) and returns the raw pull requests
// found. Any failure here aborts the cycle: without a complete discovery the
// wholesale replacement in persist would evict live entries.
func (e *Engine) discover(ctx context.Context, c *cycleState) ([]model.PullRequest, error) {
	var raws []model.PullRequest

	track := func(ref model.IssueRef) (int64, error) {
		if id, ok := c.issueToPR[ref.ID]; ok {
			return id, nil
		}
		tctx, cancel := e.gwCtx(ctx)
		pr, err := e.gateway.GetPullRequest(tctx, ref.Org, ref.Repo, ref.Number)
		cancel()
		if err != nil {
			return 0, fmt.Errorf("fetch %s/%s#%d: %w", ref.Org, ref.Repo, ref.Number, err)
		}
		c.issueToPR[ref.ID] = pr.ID
		raws = append(raws, *pr)
		return pr.ID, nil
	}

	tctx, cancel := e.gwCtx(ctx)
	involved, err := e.gateway.SearchIssues(tctx, fmt.Sprintf("is:open is:pr involves:%s archived:false", e.user))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("search involving %s: %w", e.user, err)
	}
	for _, ref := range involved {
		if _, err := track(ref); err != nil {
			return nil, err
		}
	}

	tctx, cancel = e.gwCtx(ctx)
	mentioned, err := e.gateway.SearchIssues(tctx, fmt.Sprintf("is:open is:pr mentions:%s archived:false", e.user))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("search mentioning %s: %w", e.user, err)
	}
	for _, ref := range mentioned {
		id, err := track(ref)
		if err != nil {
			return nil, err
		}
		c.mentioned[id] = struct{}{}
	}

	for _, team := range c.prev.UserTeams(e.user) {
		tctx, cancel = e.gwCtx(ctx)
		teamRefs, err := e.gateway.SearchIssues(tctx, fmt.Sprintf("is:open is:pr team:%s archived:false", team))
		cancel()
		if err != nil {
			return nil, fmt.Errorf("search mentioning team %s: %w", team, err)
		}
		for _, ref := range teamRefs {
			id, err := track(ref)
			if err != nil {
				return nil, err
			}
			c.teamMentioned[id] = struct{}{}
		}
	}

	return raws, nil
}

// normalizePullRequest resolves the PR's auxiliary data (codeowners, teams,
// branch protection, reviews, checks), normalizes it, and records any
// state-change alerts. Auxiliary failures degrade to "no constraint" for
// this PR only; they never abort the cycle.
func (e *Engine) normalizePullRequest(ctx context.Context, c *cycleState, raw model.PullRequest) {
	rules := e.resolveCodeowners(ctx, c, raw.Org, raw.Repo)
	teams := e.resolveTeamMembers(ctx, c, raw.Org)

	tctx, cancel := e.gwCtx(ctx)
	reviewList, err := e.gateway.GetReviews(tctx, raw.Org, raw.Repo, raw.Number)
	cancel()
	if err != nil {
		slog.Error("fetch reviews failed", "pr", raw.Description(), "error", err)
	}
	reviews := ReduceReviews(reviewList)

	var owners map[string]bool
	if len(rules) > 0 {
		tctx, cancel = e.gwCtx(ctx)
		files, err := e.gateway.ListPullRequestFiles(tctx, raw.Org, raw.Repo, raw.Number)
		cancel()
		if err != nil {
			slog.Error("fetch changed files failed", "pr", raw.Description(), "error", err)
		}
		owners = codeowners.ForPullRequest(rules, files, reviews, teams)
	}

	var checks []model.CheckRun
	protected := false
	checksKnown := raw.State != model.PRStateMerged
	if checksKnown {
		protection, err := c.protection.getOrFetch(raw.RepoKey()+"|"+raw.BaseBranch, func() (*model.BranchProtection, error) {
			tctx, cancel := e.gwCtx(ctx)
			defer cancel()
			bp, err := e.gateway.GetBranchProtection(tctx, raw.Org, raw.Repo, raw.BaseBranch)
			if errors.Is(err, driven.ErrNotFound) {
				return nil, nil
			}
			return bp, err
		})
		if err != nil {
			slog.Error("fetch branch protection failed", "pr", raw.Description(), "error", err)
			checksKnown = false
		} else if protected = protection != nil; protected {
			tctx, cancel = e.gwCtx(ctx)
			checks, err = e.gateway.GetCheckRuns(tctx, raw.Org, raw.Repo, raw.HeadSHA)
			cancel()
			if err != nil {
				slog.Error("fetch check runs failed", "pr", raw.Description(), "error", err)
				checksKnown = false
			}
			markRequired(checks, protection.RequiredChecks)
		}
	}

	var previous *model.PullRequest
	if prev, ok := c.prev.PullRequests[raw.ID]; ok {
		previous = &prev
	}

	pr := NormalizePullRequest(raw, previous, reviewList, checks, protected, owners)
	c.prs[pr.ID] = pr
	c.checksKnown[pr.ID] = checksKnown

	if checksKnown {
		for _, alert := range StateChangeAlerts(previous, &pr, e.user) {
			c.alerts = append(c.alerts, prAlert{prID: pr.ID, alert: alert})
		}
	}
}

// resolveCodeowners returns the repo's parsed CODEOWNERS rules, fetching and
// caching them in the snapshot on first sight. An absent or forbidden file is
// cached as nil: no ownership constraint for that repository.
func (e *Engine) resolveCodeowners(ctx context.Context, c *cycleState, org, repo string) []model.CodeownersRule {
	key := org + "|" + repo
	if rules, ok := c.prev.Codeowners[key]; ok {
		return rules
	}

	tctx, cancel := e.gwCtx(ctx)
	contents, err := e.gateway.GetCodeownersFile(tctx, org, repo)
	cancel()
	if err != nil {
		if !errors.Is(err, driven.ErrNotFound) {
			slog.Error("fetch codeowners failed", "repo", org+"/"+repo, "error", err)
			return nil // Transient: degrade this cycle without caching the miss.
		}
		c.prev.Codeowners[key] = nil
		e.store.PutCodeowners(key, nil)
		return nil
	}

	rules := codeowners.Parse(contents)
	c.prev.Codeowners[key] = rules
	e.store.PutCodeowners(key, rules)
	return rules
}

// resolveTeamMembers returns the org's team rosters, fetching and caching
// them in the snapshot on first sight. Forbidden orgs cache as nil.
func (e *Engine) resolveTeamMembers(ctx context.Context, c *cycleState, org string) model.TeamMembers {
	if teams, ok := c.prev.TeamMembers[org]; ok {
		return teams
	}

	tctx, cancel := e.gwCtx(ctx)
	teams, err := e.gateway.GetOrgTeams(tctx, org)
	cancel()
	if err != nil {
		if !errors.Is(err, driven.ErrNotFound) {
			slog.Error("fetch org teams failed", "org", org, "error", err)
			return nil
		}
		c.prev.TeamMembers[org] = nil
		e.store.PutTeamMembers(org, nil)
		return nil
	}

	c.prev.TeamMembers[org] = teams
	e.store.PutTeamMembers(org, teams)
	return teams
}

// persist carries sticky fields forward from the live store state (so user
// mutations applied mid-cycle are not lost), then swaps in this cycle's maps.
// Entries not re-observed this cycle are dropped.
func (e *Engine) persist(c *cycleState) {
	live := e.store.Read()

	for id, pr := range c.prs {
		if old, ok := live.PullRequests[id]; ok {
			pr.Muted = old.Muted
			c.prs[id] = pr
		}
	}
	for id, notif := range c.notifs {
		if old, ok := live.Notifications[id]; ok {
			notif.Cleared = old.Cleared
			c.notifs[id] = notif
		}
	}

	e.store.ReplacePullRequests(c.prs)
	e.store.ReplaceNotifications(c.notifs)
	e.store.SetMentioned(c.mentioned, c.teamMentioned)
	e.store.SetLastRefresh(time.Now().UTC())
}

// dispatchAlerts hands this cycle's alerts to the sink. Muted PRs never
// alert, and nothing alerts while notifications are disabled.
func (e *Engine) dispatchAlerts(ctx context.Context, c *cycleState) {
	if !e.boolSetting(ctx, SettingNotificationsEnabled) {
		return
	}

	for _, pa := range c.alerts {
		if pr, ok := c.prs[pa.prID]; ok && pr.Muted {
			continue
		}
		e.alerts.Notify(pa.alert)
	}
}

// gwCtx bounds a single gateway call.
func (e *Engine) gwCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

// markRequired sets Required on check runs named by the branch protection's
// required contexts.
func markRequired(checks []model.CheckRun, requiredContexts []string) {
	if len(requiredContexts) == 0 {
		return
	}

	required := make(map[string]bool, len(requiredContexts))
	for _, name := range requiredContexts {
		required[name] = true
	}

	for i := range checks {
		if required[checks[i].Name] {
			checks[i].Required = true
		}
	}
}

// --- Boundary operations for the renderer / transport layer ---

// GetSnapshot returns a copy of the current snapshot. The default view hides
// muted PRs, their notifications, and cleared notifications, and honors the
// mentions-only settings; complete bypasses all filtering.
func (e *Engine) GetSnapshot(ctx context.Context, complete bool) *model.Snapshot {
	snap := e.store.Read()
	if complete {
		return snap
	}

	if e.boolSetting(ctx, SettingMentionsOnly) {
		teamMentions := e.boolSetting(ctx, SettingTeamMentions)
		for id, pr := range snap.PullRequests {
			if _, ok := snap.Mentioned[id]; ok {
				continue
			}
			if pr.Author == e.user {
				continue
			}
			if teamMentions {
				if _, ok := snap.TeamMentioned[id]; ok {
					continue
				}
			}
			delete(snap.PullRequests, id)
		}
		for id, notif := range snap.Notifications {
			if notif.PullRequestID == nil {
				continue
			}
			if _, ok := snap.PullRequests[*notif.PullRequestID]; !ok {
				delete(snap.Notifications, id)
			}
		}
	}

	for id, pr := range snap.PullRequests {
		if pr.Muted {
			delete(snap.PullRequests, id)
		}
	}
	for id, notif := range snap.Notifications {
		if notif.Cleared {
			delete(snap.Notifications, id)
			continue
		}
		if notif.PullRequestID != nil {
			if _, ok := snap.PullRequests[*notif.PullRequestID]; !ok {
				delete(snap.Notifications, id)
			}
		}
	}

	return snap
}

// MutedPullRequests returns every tracked PR the user has muted, ordered by id.
func (e *Engine) MutedPullRequests() []model.PullRequest {
	snap := e.store.Read()

	var muted []model.PullRequest
	for _, pr := range snap.PullRequests {
		if pr.Muted {
			muted = append(muted, pr)
		}
	}
	sort.Slice(muted, func(i, j int) bool { return muted[i].ID < muted[j].ID })

	return muted
}

// Mute marks a tracked PR muted. Returns ErrNotFound for unknown ids.
func (e *Engine) Mute(ctx context.Context, id int64) error {
	return e.setMuted(ctx, id, true)
}

// Unmute clears a tracked PR's muted flag. Returns ErrNotFound for unknown ids.
func (e *Engine) Unmute(ctx context.Context, id int64) error {
	return e.setMuted(ctx, id, false)
}

func (e *Engine) setMuted(ctx context.Context, id int64, muted bool) error {
	if err := e.store.MutatePullRequest(id, func(pr *model.PullRequest) {
		pr.Muted = muted
	}); err != nil {
		return err
	}
	return e.store.Commit(ctx)
}

// ClearNotification marks a notification cleared. Returns ErrNotFound for
// unknown ids. The next cycle also marks it read at the remote end.
func (e *Engine) ClearNotification(ctx context.Context, id int64) error {
	if err := e.store.MutateNotification(id, func(n *model.Notification) {
		n.Cleared = true
	}); err != nil {
		return err
	}
	return e.store.Commit(ctx)
}

// ClearAllNotifications marks every tracked notification cleared.
func (e *Engine) ClearAllNotifications(ctx context.Context) error {
	e.store.MutateAllNotifications(func(n *model.Notification) {
		n.Cleared = true
	})
	return e.store.Commit(ctx)
}

// LastRefresh returns the completion time of the last successful cycle.
func (e *Engine) LastRefresh() time.Time {
	return e.store.Read().LastRefresh
}

// RateLimit reports the remote API quota for the configured token.
func (e *Engine) RateLimit(ctx context.Context) (model.RateLimit, error) {
	tctx, cancel := e.gwCtx(ctx)
	defer cancel()
	return e.gateway.RateLimit(tctx)
}
