package application

import "github.com/cmalloy/gitbar/internal/domain/model"

// NormalizePullRequest builds the canonical PullRequest record for one cycle:
// remote-supplied fields are taken verbatim from raw, derived fields are
// recomputed from the supplied reviews/checks/owners, and the sticky Muted
// flag is carried forward from the previous observation.
//
// The state-change comparison (StateChangeAlerts) is deliberately not part of
// this function; the engine runs it separately so both halves stay testable.
func NormalizePullRequest(
	raw model.PullRequest,
	previous *model.PullRequest,
	reviews []model.Review,
	checks []model.CheckRun,
	protected bool,
	owners map[string]bool,
) model.PullRequest {
	pr := raw.Clone()

	pr.Reviews = ReduceReviews(reviews)
	pr.CheckOutcome = ComputeCheckOutcome(checks, protected)
	pr.Owners = owners
	if pr.Owners == nil {
		pr.Owners = map[string]bool{}
	}

	pr.Muted = false
	if previous != nil {
		pr.Muted = previous.Muted
	}

	return pr
}

// ReduceReviews collapses a submission-ordered review list to the latest
// state per reviewer login. Reviewers can re-review, so the last one wins.
func ReduceReviews(reviews []model.Review) map[string]model.ReviewState {
	out := make(map[string]model.ReviewState, len(reviews))
	for _, review := range reviews {
		out[review.Reviewer] = review.State
	}
	return out
}

// ComputeCheckOutcome aggregates a PR's required check runs into a single
// outcome. An unprotected base branch yields CheckOutcomeNone regardless of
// individual results; so does a protected branch where no required check has
// reported anything yet.
func ComputeCheckOutcome(checks []model.CheckRun, protected bool) model.CheckOutcome {
	if !protected {
		return model.CheckOutcomeNone
	}

	var inProgress bool
	conclusions := make(map[string]bool)

	for _, check := range checks {
		if !check.Required {
			continue
		}
		if check.Status != "completed" {
			inProgress = true
			continue
		}
		conclusions[check.Conclusion] = true
	}

	switch {
	case inProgress:
		return model.CheckOutcomeInProgress
	case conclusions["failure"] || conclusions["timed_out"] || conclusions["action_required"]:
		return model.CheckOutcomeFailure
	case conclusions["cancelled"]:
		return model.CheckOutcomeCancelled
	case len(conclusions) > 0:
		return model.CheckOutcomeSuccess
	default:
		return model.CheckOutcomeNone
	}
}
