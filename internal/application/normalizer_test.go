package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cmalloy/gitbar/internal/application"
	"github.com/cmalloy/gitbar/internal/domain/model"
)

func TestReduceReviews_LastStatePerReviewerWins(t *testing.T) {
	now := time.Now()

	reviews := []model.Review{
		{Reviewer: "alice", State: model.ReviewStateApproved, SubmittedAt: now},
		{Reviewer: "bob", State: model.ReviewStateCommented, SubmittedAt: now},
		{Reviewer: "alice", State: model.ReviewStateChangesRequested, SubmittedAt: now.Add(time.Hour)},
	}

	assert.Equal(t, map[string]model.ReviewState{
		"alice": model.ReviewStateChangesRequested,
		"bob":   model.ReviewStateCommented,
	}, application.ReduceReviews(reviews))
}

func TestComputeCheckOutcome(t *testing.T) {
	tests := []struct {
		name      string
		checks    []model.CheckRun
		protected bool
		want      model.CheckOutcome
	}{
		{
			name:      "unprotected branch is always none",
			checks:    []model.CheckRun{{Name: "ci", Status: "completed", Conclusion: "failure", Required: true}},
			protected: false,
			want:      model.CheckOutcomeNone,
		},
		{
			name:      "protected with no checks reported",
			protected: true,
			want:      model.CheckOutcomeNone,
		},
		{
			name: "incomplete required check dominates completed failure",
			checks: []model.CheckRun{
				{Name: "lint", Status: "completed", Conclusion: "failure", Required: true},
				{Name: "build", Status: "in_progress", Required: true},
			},
			protected: true,
			want:      model.CheckOutcomeInProgress,
		},
		{
			name: "any required failure beats success",
			checks: []model.CheckRun{
				{Name: "lint", Status: "completed", Conclusion: "success", Required: true},
				{Name: "build", Status: "completed", Conclusion: "failure", Required: true},
			},
			protected: true,
			want:      model.CheckOutcomeFailure,
		},
		{
			name:      "timed_out counts as failure",
			checks:    []model.CheckRun{{Name: "e2e", Status: "completed", Conclusion: "timed_out", Required: true}},
			protected: true,
			want:      model.CheckOutcomeFailure,
		},
		{
			name:      "action_required counts as failure",
			checks:    []model.CheckRun{{Name: "deploy", Status: "completed", Conclusion: "action_required", Required: true}},
			protected: true,
			want:      model.CheckOutcomeFailure,
		},
		{
			name: "cancelled without failure",
			checks: []model.CheckRun{
				{Name: "lint", Status: "completed", Conclusion: "success", Required: true},
				{Name: "build", Status: "completed", Conclusion: "cancelled", Required: true},
			},
			protected: true,
			want:      model.CheckOutcomeCancelled,
		},
		{
			name: "all required succeeded",
			checks: []model.CheckRun{
				{Name: "lint", Status: "completed", Conclusion: "success", Required: true},
				{Name: "build", Status: "completed", Conclusion: "success", Required: true},
			},
			protected: true,
			want:      model.CheckOutcomeSuccess,
		},
		{
			name: "optional checks are ignored",
			checks: []model.CheckRun{
				{Name: "required", Status: "completed", Conclusion: "success", Required: true},
				{Name: "fuzz", Status: "completed", Conclusion: "failure", Required: false},
				{Name: "bench", Status: "queued", Required: false},
			},
			protected: true,
			want:      model.CheckOutcomeSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, application.ComputeCheckOutcome(tt.checks, tt.protected))
		})
	}
}

func TestNormalizePullRequest_CarriesMutedForward(t *testing.T) {
	raw := model.PullRequest{ID: 10, Org: "org", Repo: "repo", Number: 1}
	previous := &model.PullRequest{ID: 10, Muted: true}

	pr := application.NormalizePullRequest(raw, previous, nil, nil, false, nil)
	assert.True(t, pr.Muted)

	pr = application.NormalizePullRequest(raw, nil, nil, nil, false, nil)
	assert.False(t, pr.Muted, "first observation starts unmuted")
}

func TestNormalizePullRequest_DerivedFields(t *testing.T) {
	raw := model.PullRequest{ID: 10, Org: "org", Repo: "repo", Number: 1}
	reviews := []model.Review{{Reviewer: "alice", State: model.ReviewStateApproved}}
	checks := []model.CheckRun{{Name: "ci", Status: "completed", Conclusion: "success", Required: true}}

	pr := application.NormalizePullRequest(raw, nil, reviews, checks, true, map[string]bool{"alice": true})

	assert.Equal(t, map[string]model.ReviewState{"alice": model.ReviewStateApproved}, pr.Reviews)
	assert.Equal(t, model.CheckOutcomeSuccess, pr.CheckOutcome)
	assert.Equal(t, map[string]bool{"alice": true}, pr.Owners)
}

func TestNormalizePullRequest_NilOwnersBecomesEmptyMap(t *testing.T) {
	pr := application.NormalizePullRequest(model.PullRequest{ID: 10}, nil, nil, nil, false, nil)

	assert.NotNil(t, pr.Owners)
	assert.Empty(t, pr.Owners)
}
