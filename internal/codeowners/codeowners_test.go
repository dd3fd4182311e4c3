package codeowners_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmalloy/gitbar/internal/codeowners"
	"github.com/cmalloy/gitbar/internal/domain/model"
)

const sampleFile = `# Global fallback
*           @org/platform

# Service code
/service/   @alice @bob
/service/db @carol

docs/ @org/writers
`

func TestParse(t *testing.T) {
	rules := codeowners.Parse(sampleFile)

	require.Len(t, rules, 4)
	assert.Equal(t, model.CodeownersRule{Pattern: "*", Owners: []string{"org/platform"}}, rules[0])
	assert.Equal(t, model.CodeownersRule{Pattern: "/service/", Owners: []string{"alice", "bob"}}, rules[1])
	assert.Equal(t, model.CodeownersRule{Pattern: "/service/db", Owners: []string{"carol"}}, rules[2])
	assert.Equal(t, model.CodeownersRule{Pattern: "docs/", Owners: []string{"org/writers"}}, rules[3])
}

func TestParse_SortsOwnersWithinRule(t *testing.T) {
	rules := codeowners.Parse("/x @zed @alice @mid")

	require.Len(t, rules, 1)
	assert.Equal(t, []string{"alice", "mid", "zed"}, rules[0].Owners)
}

func TestParse_SkipsMalformedLines(t *testing.T) {
	rules := codeowners.Parse("\n# comment only\n/pattern-without-owner\n")

	assert.Empty(t, rules)
}

func TestSerialize_RoundTrip(t *testing.T) {
	rules := codeowners.Parse(sampleFile)
	again := codeowners.Parse(codeowners.Serialize(rules))

	assert.Equal(t, rules, again)
}

func TestResolveOwners_LastMatchWins(t *testing.T) {
	rules := codeowners.Parse(sampleFile)

	tests := []struct {
		name string
		file string
		want []string
	}{
		{"wildcard only", "README.md", []string{"org/platform"}},
		{"directory rule overrides wildcard", "service/handler.go", []string{"alice", "bob"}},
		{"later more specific rule wins", "service/db/conn.go", []string{"carol"}},
		{"substring match anywhere in path", "pkg/docs/intro.md", []string{"org/writers"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codeowners.ResolveOwners(rules, tt.file))
		})
	}
}

func TestResolveOwners_NoMatch(t *testing.T) {
	rules := codeowners.Parse("/service/ @alice")

	assert.Nil(t, codeowners.ResolveOwners(rules, "cmd/main.go"))
}

func TestApproved(t *testing.T) {
	teams := model.TeamMembers{
		"org/platform": {"dana", "erin"},
	}

	tests := []struct {
		name    string
		owners  []string
		reviews map[string]model.ReviewState
		want    bool
	}{
		{
			name:    "individual owner approved",
			owners:  []string{"alice", "bob"},
			reviews: map[string]model.ReviewState{"alice": model.ReviewStateApproved},
			want:    true,
		},
		{
			name:    "individual owner only commented",
			owners:  []string{"alice"},
			reviews: map[string]model.ReviewState{"alice": model.ReviewStateCommented},
			want:    false,
		},
		{
			name:    "team member approved",
			owners:  []string{"org/platform"},
			reviews: map[string]model.ReviewState{"erin": model.ReviewStateApproved},
			want:    true,
		},
		{
			name:    "non-member approval does not count for team",
			owners:  []string{"org/platform"},
			reviews: map[string]model.ReviewState{"mallory": model.ReviewStateApproved},
			want:    false,
		},
		{
			name:    "approval later overridden by changes requested",
			owners:  []string{"alice"},
			reviews: map[string]model.ReviewState{"alice": model.ReviewStateChangesRequested},
			want:    false,
		},
		{
			name:   "no reviews",
			owners: []string{"alice"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codeowners.Approved(tt.owners, tt.reviews, teams))
		})
	}
}

func TestForPullRequest(t *testing.T) {
	rules := codeowners.Parse(sampleFile)
	teams := model.TeamMembers{"org/platform": {"dana"}}
	reviews := map[string]model.ReviewState{
		"carol": model.ReviewStateApproved,
		"dana":  model.ReviewStateApproved,
	}

	groups := codeowners.ForPullRequest(rules, []string{
		"README.md",          // org/platform, approved via dana
		"service/handler.go", // alice|bob, not approved
		"service/db/conn.go", // carol, approved
	}, reviews, teams)

	assert.Equal(t, map[string]bool{
		"org/platform": true,
		"alice|bob":    false,
		"carol":        true,
	}, groups)
}

func TestForPullRequest_NoRules(t *testing.T) {
	groups := codeowners.ForPullRequest(nil, []string{"a.go"}, nil, nil)

	assert.Equal(t, map[string]bool{}, groups)
}
