package model

import "time"

// Snapshot is the top-level persisted aggregate: everything the renderer and
// HTTP layer can see. It is mutated only by the reconciliation engine (plus
// the user's mute/clear actions) and read by everyone else as a copy.
type Snapshot struct {
	PullRequests  map[int64]PullRequest
	Notifications map[int64]Notification
	Codeowners    map[string][]CodeownersRule // Keyed by "org|repo". A nil slice means fetch failed/absent.
	TeamMembers   map[string]TeamMembers      // Keyed by org.
	Mentioned     map[int64]struct{}          // PR ids mentioning the user.
	TeamMentioned map[int64]struct{}          // PR ids mentioning one of the user's teams.
	LastRefresh   time.Time
}

// NewSnapshot returns an empty snapshot with all collections allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		PullRequests:  make(map[int64]PullRequest),
		Notifications: make(map[int64]Notification),
		Codeowners:    make(map[string][]CodeownersRule),
		TeamMembers:   make(map[string]TeamMembers),
		Mentioned:     make(map[int64]struct{}),
		TeamMentioned: make(map[int64]struct{}),
	}
}

// Clone returns a deep copy of the snapshot. Readers always get a clone so a
// refresh cycle can never expose a partially-updated state.
func (s *Snapshot) Clone() *Snapshot {
	out := NewSnapshot()
	out.LastRefresh = s.LastRefresh

	for id, pr := range s.PullRequests {
		out.PullRequests[id] = pr.Clone()
	}
	for id, notif := range s.Notifications {
		out.Notifications[id] = notif.Clone()
	}
	for key, rules := range s.Codeowners {
		if rules == nil {
			out.Codeowners[key] = nil
			continue
		}
		copied := make([]CodeownersRule, len(rules))
		for i, rule := range rules {
			copied[i] = CodeownersRule{Pattern: rule.Pattern, Owners: append([]string(nil), rule.Owners...)}
		}
		out.Codeowners[key] = copied
	}
	for org, teams := range s.TeamMembers {
		if teams == nil {
			out.TeamMembers[org] = nil
			continue
		}
		copied := make(TeamMembers, len(teams))
		for team, members := range teams {
			copied[team] = append([]string(nil), members...)
		}
		out.TeamMembers[org] = copied
	}
	for id := range s.Mentioned {
		out.Mentioned[id] = struct{}{}
	}
	for id := range s.TeamMentioned {
		out.TeamMentioned[id] = struct{}{}
	}

	return out
}

// UserTeams returns the slugs of every cached team the given user belongs to.
func (s *Snapshot) UserTeams(user string) []string {
	var slugs []string
	for _, teams := range s.TeamMembers {
		for slug, members := range teams {
			for _, member := range members {
				if member == user {
					slugs = append(slugs, slug)
					break
				}
			}
		}
	}
	return slugs
}
