package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmalloy/gitbar/internal/domain/model"
	"github.com/cmalloy/gitbar/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*SnapshotRepo)(nil)

// SnapshotRepo is the SQLite implementation of the SnapshotStore port. The
// authoritative snapshot lives in memory behind a mutex; Commit writes the
// whole state to the database in one transaction. Readers always get a deep
// copy, so a refresh cycle can never expose partially-updated state.
type SnapshotRepo struct {
	db *DB

	mu   sync.RWMutex
	snap *model.Snapshot
}

// NewSnapshotRepo creates a SnapshotRepo with an empty in-memory snapshot.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db, snap: model.NewSnapshot()}
}

const metaLastRefresh = "last_refresh"
const metaMentioned = "mentioned"
const metaTeamMentioned = "team_mentioned"

// Load reads the persisted snapshot into memory. Corrupt rows are logged and
// skipped rather than failing the load: a damaged snapshot is treated as
// missing state, at worst costing sticky flags once on a cold start.
func (r *SnapshotRepo) Load(ctx context.Context) error {
	snap := model.NewSnapshot()

	if err := r.loadPullRequests(ctx, snap); err != nil {
		return err
	}
	if err := r.loadNotifications(ctx, snap); err != nil {
		return err
	}
	if err := r.loadCodeowners(ctx, snap); err != nil {
		return err
	}
	if err := r.loadTeamMembers(ctx, snap); err != nil {
		return err
	}
	if err := r.loadMeta(ctx, snap); err != nil {
		return err
	}

	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()

	return nil
}

func (r *SnapshotRepo) loadPullRequests(ctx context.Context, snap *model.Snapshot) error {
	const query = `
		SELECT id, org, repo, number, title, author, base_branch, head_branch, head_sha,
		       state, mergeable, mergeable_state, url, api_url, updated_at, muted,
		       reviews, check_outcome, owners
		FROM pull_requests
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query pull requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pr model.PullRequest
		var state, mergeable, mergeableState, checkOutcome string
		var updatedAt, reviewsJSON, ownersJSON string
		var muted int

		err := rows.Scan(
			&pr.ID, &pr.Org, &pr.Repo, &pr.Number, &pr.Title, &pr.Author,
			&pr.BaseBranch, &pr.HeadBranch, &pr.HeadSHA,
			&state, &mergeable, &mergeableState, &pr.URL, &pr.APIURL,
			&updatedAt, &muted, &reviewsJSON, &checkOutcome, &ownersJSON,
		)
		if err != nil {
			return fmt.Errorf("scan pull request: %w", err)
		}

		pr.State = model.PRState(state)
		pr.Mergeable = model.MergeableStatus(mergeable)
		pr.MergeableState = model.MergeableState(mergeableState)
		pr.CheckOutcome = model.CheckOutcome(checkOutcome)
		pr.Muted = muted != 0

		if err := json.Unmarshal([]byte(reviewsJSON), &pr.Reviews); err != nil {
			slog.Error("skipping corrupt pull request row", "id", pr.ID, "error", err)
			continue
		}
		if err := json.Unmarshal([]byte(ownersJSON), &pr.Owners); err != nil {
			slog.Error("skipping corrupt pull request row", "id", pr.ID, "error", err)
			continue
		}
		if pr.UpdatedAt, err = parseTime(updatedAt); err != nil {
			slog.Error("skipping corrupt pull request row", "id", pr.ID, "error", err)
			continue
		}

		snap.PullRequests[pr.ID] = pr
	}

	return rows.Err()
}

func (r *SnapshotRepo) loadNotifications(ctx context.Context, snap *model.Snapshot) error {
	const query = `
		SELECT id, thread_id, subject_type, subject_title, subject_url,
		       pr_id, pr_url, comment, cleared, updated_at
		FROM notifications
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n model.Notification
		var prID sql.NullInt64
		var cleared int
		var updatedAt string

		err := rows.Scan(
			&n.ID, &n.ThreadID, &n.SubjectType, &n.SubjectTitle, &n.SubjectURL,
			&prID, &n.PullRequestURL, &n.Comment, &cleared, &updatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan notification: %w", err)
		}

		if prID.Valid {
			id := prID.Int64
			n.PullRequestID = &id
		}
		n.Cleared = cleared != 0
		if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
			slog.Error("skipping corrupt notification row", "id", n.ID, "error", err)
			continue
		}

		snap.Notifications[n.ID] = n
	}

	return rows.Err()
}

func (r *SnapshotRepo) loadCodeowners(ctx context.Context, snap *model.Snapshot) error {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT repo_key, rules FROM codeowners`)
	if err != nil {
		return fmt.Errorf("query codeowners: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var rulesJSON sql.NullString

		if err := rows.Scan(&key, &rulesJSON); err != nil {
			return fmt.Errorf("scan codeowners: %w", err)
		}

		if !rulesJSON.Valid {
			snap.Codeowners[key] = nil // Recorded miss: repo has no usable CODEOWNERS.
			continue
		}

		var rules []model.CodeownersRule
		if err := json.Unmarshal([]byte(rulesJSON.String), &rules); err != nil {
			slog.Error("skipping corrupt codeowners row", "repo_key", key, "error", err)
			continue
		}
		snap.Codeowners[key] = rules
	}

	return rows.Err()
}

func (r *SnapshotRepo) loadTeamMembers(ctx context.Context, snap *model.Snapshot) error {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT org, teams FROM team_members`)
	if err != nil {
		return fmt.Errorf("query team members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var org string
		var teamsJSON sql.NullString

		if err := rows.Scan(&org, &teamsJSON); err != nil {
			return fmt.Errorf("scan team members: %w", err)
		}

		if !teamsJSON.Valid {
			snap.TeamMembers[org] = nil
			continue
		}

		var teams model.TeamMembers
		if err := json.Unmarshal([]byte(teamsJSON.String), &teams); err != nil {
			slog.Error("skipping corrupt team members row", "org", org, "error", err)
			continue
		}
		snap.TeamMembers[org] = teams
	}

	return rows.Err()
}

func (r *SnapshotRepo) loadMeta(ctx context.Context, snap *model.Snapshot) error {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan meta: %w", err)
		}

		switch key {
		case metaLastRefresh:
			t, err := parseTime(value)
			if err != nil {
				slog.Error("skipping corrupt meta row", "key", key, "error", err)
				continue
			}
			snap.LastRefresh = t
		case metaMentioned, metaTeamMentioned:
			var ids []int64
			if err := json.Unmarshal([]byte(value), &ids); err != nil {
				slog.Error("skipping corrupt meta row", "key", key, "error", err)
				continue
			}
			set := snap.Mentioned
			if key == metaTeamMentioned {
				set = snap.TeamMentioned
			}
			for _, id := range ids {
				set[id] = struct{}{}
			}
		}
	}

	return rows.Err()
}

// Read returns a deep copy of the current snapshot.
func (r *SnapshotRepo) Read() *model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Clone()
}

// ReplacePullRequests swaps the whole pull-request map.
func (r *SnapshotRepo) ReplacePullRequests(prs map[int64]model.PullRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.PullRequests = prs
}

// ReplaceNotifications swaps the whole notification map.
func (r *SnapshotRepo) ReplaceNotifications(notifs map[int64]model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Notifications = notifs
}

// PutCodeowners caches a repository's parsed CODEOWNERS rules.
func (r *SnapshotRepo) PutCodeowners(repoKey string, rules []model.CodeownersRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Codeowners[repoKey] = rules
}

// PutTeamMembers caches an organization's team rosters.
func (r *SnapshotRepo) PutTeamMembers(org string, teams model.TeamMembers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.TeamMembers[org] = teams
}

// SetMentioned replaces the mentioned / team-mentioned PR id sets.
func (r *SnapshotRepo) SetMentioned(mentioned, teamMentioned map[int64]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Mentioned = mentioned
	r.snap.TeamMentioned = teamMentioned
}

// SetLastRefresh records the completion time of the last successful cycle.
func (r *SnapshotRepo) SetLastRefresh(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.LastRefresh = t
}

// MutatePullRequest applies fn to the tracked PR with the given id.
func (r *SnapshotRepo) MutatePullRequest(id int64, fn func(*model.PullRequest)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pr, ok := r.snap.PullRequests[id]
	if !ok {
		return fmt.Errorf("pull request %d: %w", id, driven.ErrNotFound)
	}

	fn(&pr)
	r.snap.PullRequests[id] = pr
	return nil
}

// MutateNotification applies fn to the tracked notification with the given id.
func (r *SnapshotRepo) MutateNotification(id int64, fn func(*model.Notification)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.snap.Notifications[id]
	if !ok {
		return fmt.Errorf("notification %d: %w", id, driven.ErrNotFound)
	}

	fn(&n)
	r.snap.Notifications[id] = n
	return nil
}

// MutateAllNotifications applies fn to every tracked notification.
func (r *SnapshotRepo) MutateAllNotifications(fn func(*model.Notification)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, n := range r.snap.Notifications {
		fn(&n)
		r.snap.Notifications[id] = n
	}
}

// Commit writes the whole in-memory snapshot to the database in one
// transaction, replacing the previous contents.
func (r *SnapshotRepo) Commit(ctx context.Context) error {
	snap := r.Read()

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"pull_requests", "notifications", "codeowners", "team_members", "meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := insertPullRequests(ctx, tx, snap); err != nil {
		return err
	}
	if err := insertNotifications(ctx, tx, snap); err != nil {
		return err
	}
	if err := insertCaches(ctx, tx, snap); err != nil {
		return err
	}
	if err := insertMeta(ctx, tx, snap); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	return nil
}

func insertPullRequests(ctx context.Context, tx *sql.Tx, snap *model.Snapshot) error {
	const query = `
		INSERT INTO pull_requests (
			id, org, repo, number, title, author, base_branch, head_branch, head_sha,
			state, mergeable, mergeable_state, url, api_url, updated_at, muted,
			reviews, check_outcome, owners
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, pr := range snap.PullRequests {
		reviewsJSON, err := marshalMap(pr.Reviews)
		if err != nil {
			return fmt.Errorf("marshal reviews for PR %d: %w", pr.ID, err)
		}
		ownersJSON, err := marshalMap(pr.Owners)
		if err != nil {
			return fmt.Errorf("marshal owners for PR %d: %w", pr.ID, err)
		}

		_, err = tx.ExecContext(ctx, query,
			pr.ID, pr.Org, pr.Repo, pr.Number, pr.Title, pr.Author,
			pr.BaseBranch, pr.HeadBranch, pr.HeadSHA,
			string(pr.State), string(pr.Mergeable), string(pr.MergeableState),
			pr.URL, pr.APIURL, formatTime(pr.UpdatedAt), boolInt(pr.Muted),
			reviewsJSON, string(pr.CheckOutcome), ownersJSON,
		)
		if err != nil {
			return fmt.Errorf("insert pull request %d: %w", pr.ID, err)
		}
	}

	return nil
}

func insertNotifications(ctx context.Context, tx *sql.Tx, snap *model.Snapshot) error {
	const query = `
		INSERT INTO notifications (
			id, thread_id, subject_type, subject_title, subject_url,
			pr_id, pr_url, comment, cleared, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, n := range snap.Notifications {
		var prID any
		if n.PullRequestID != nil {
			prID = *n.PullRequestID
		}

		_, err := tx.ExecContext(ctx, query,
			n.ID, n.ThreadID, n.SubjectType, n.SubjectTitle, n.SubjectURL,
			prID, n.PullRequestURL, n.Comment, boolInt(n.Cleared), formatTime(n.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert notification %d: %w", n.ID, err)
		}
	}

	return nil
}

func insertCaches(ctx context.Context, tx *sql.Tx, snap *model.Snapshot) error {
	for key, rules := range snap.Codeowners {
		var rulesJSON any
		if rules != nil {
			data, err := json.Marshal(rules)
			if err != nil {
				return fmt.Errorf("marshal codeowners for %s: %w", key, err)
			}
			rulesJSON = string(data)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO codeowners (repo_key, rules) VALUES (?, ?)`, key, rulesJSON); err != nil {
			return fmt.Errorf("insert codeowners %s: %w", key, err)
		}
	}

	for org, teams := range snap.TeamMembers {
		var teamsJSON any
		if teams != nil {
			data, err := json.Marshal(teams)
			if err != nil {
				return fmt.Errorf("marshal team members for %s: %w", org, err)
			}
			teamsJSON = string(data)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO team_members (org, teams) VALUES (?, ?)`, org, teamsJSON); err != nil {
			return fmt.Errorf("insert team members %s: %w", org, err)
		}
	}

	return nil
}

func insertMeta(ctx context.Context, tx *sql.Tx, snap *model.Snapshot) error {
	const query = `INSERT INTO meta (key, value) VALUES (?, ?)`

	if !snap.LastRefresh.IsZero() {
		if _, err := tx.ExecContext(ctx, query, metaLastRefresh, formatTime(snap.LastRefresh)); err != nil {
			return fmt.Errorf("insert meta %s: %w", metaLastRefresh, err)
		}
	}

	for key, set := range map[string]map[int64]struct{}{
		metaMentioned:     snap.Mentioned,
		metaTeamMentioned: snap.TeamMentioned,
	} {
		ids := make([]int64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		data, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("marshal meta %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, query, key, string(data)); err != nil {
			return fmt.Errorf("insert meta %s: %w", key, err)
		}
	}

	return nil
}

func marshalMap[V any](m map[string]V) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
