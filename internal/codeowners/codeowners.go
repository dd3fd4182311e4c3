// Package codeowners parses CODEOWNERS files and resolves required approver
// groups for changed files.
package codeowners

import (
	"sort"
	"strings"

	"github.com/cmalloy/gitbar/internal/domain/model"
)

// Parse reads CODEOWNERS file contents into an ordered rule list. Blank lines
// and comment lines are skipped, the leading @ is stripped from each owner,
// and owners within a rule are sorted for a canonical group key.
func Parse(contents string) []model.CodeownersRule {
	var rules []model.CodeownersRule

	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		owners := make([]string, 0, len(fields)-1)
		for _, owner := range fields[1:] {
			owners = append(owners, strings.TrimPrefix(owner, "@"))
		}
		sort.Strings(owners)

		rules = append(rules, model.CodeownersRule{Pattern: fields[0], Owners: owners})
	}

	return rules
}

// Serialize renders a rule list back into CODEOWNERS file syntax. It is the
// inverse of Parse for well-formed input: Parse(Serialize(rules)) == rules.
func Serialize(rules []model.CodeownersRule) string {
	var b strings.Builder
	for _, rule := range rules {
		b.WriteString(rule.Pattern)
		for _, owner := range rule.Owners {
			b.WriteString(" @")
			b.WriteString(owner)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ResolveOwners returns the owner group responsible for filePath, or nil if
// no rule matches. Rules are evaluated in file order and the last match wins;
// "*" matches every file, any other pattern matches when it is a substring of
// "/" + filePath.
func ResolveOwners(rules []model.CodeownersRule, filePath string) []string {
	anchored := "/" + filePath

	var owners []string
	for _, rule := range rules {
		if rule.Pattern == "*" || strings.Contains(anchored, rule.Pattern) {
			owners = rule.Owners
		}
	}
	return owners
}

// Approved reports whether the owner group has an APPROVED review: true when
// any individual owner approved, or when any member of an "org/team" owner
// approved. teams maps team slug to member logins and may be nil.
func Approved(owners []string, reviews map[string]model.ReviewState, teams model.TeamMembers) bool {
	if len(reviews) == 0 {
		return false
	}

	for _, owner := range owners {
		if strings.Contains(owner, "/") {
			for _, member := range teams[owner] {
				if reviews[member] == model.ReviewStateApproved {
					return true
				}
			}
			continue
		}
		if reviews[owner] == model.ReviewStateApproved {
			return true
		}
	}

	return false
}

// ForPullRequest computes the per-owner-group approval map for a set of
// changed files: every distinct owner group responsible for at least one file,
// mapped to whether that group has approved.
func ForPullRequest(rules []model.CodeownersRule, files []string, reviews map[string]model.ReviewState, teams model.TeamMembers) map[string]bool {
	if len(rules) == 0 {
		return map[string]bool{}
	}

	groups := make(map[string]bool)
	for _, file := range files {
		owners := ResolveOwners(rules, file)
		if owners == nil {
			continue
		}
		key := strings.Join(owners, "|")
		if _, seen := groups[key]; !seen {
			groups[key] = Approved(owners, reviews, teams)
		}
	}

	return groups
}
