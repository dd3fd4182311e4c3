package model

import "strings"

// CodeownersRule is one (path pattern, owner group) pair from a repository's
// CODEOWNERS file. Rules keep file order; resolution is last match wins.
type CodeownersRule struct {
	Pattern string
	Owners  []string // Sorted; logins or "org/team" slugs, no leading @.
}

// GroupKey returns the canonical key for the rule's owner group.
func (r CodeownersRule) GroupKey() string {
	return strings.Join(r.Owners, "|")
}

// TeamMembers maps team slug ("org/team") to member logins for one organization.
type TeamMembers map[string][]string
