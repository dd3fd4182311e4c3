package application

import (
	"fmt"

	"github.com/cmalloy/gitbar/internal/domain/model"
)

// StateChangeAlerts compares two observations of the same pull request and
// returns the alerts the transition warrants. It is pure: the first
// observation of a PR (prev == nil) and PRs not authored by user never alert.
// Both triggers are independent and may fire in the same call.
func StateChangeAlerts(prev, curr *model.PullRequest, user string) []model.AlertRequest {
	if prev == nil || curr.Author != user {
		return nil
	}

	var alerts []model.AlertRequest

	// Required checks settled on an outcome different from the last one seen.
	if curr.CheckOutcome != model.CheckOutcomeInProgress &&
		curr.CheckOutcome != model.CheckOutcomeNone &&
		curr.CheckOutcome != prev.CheckOutcome {
		alerts = append(alerts, model.AlertRequest{
			Title:   "Test status changed",
			Message: fmt.Sprintf("%s: %s", curr.Description(), curr.CheckOutcome),
			URL:     curr.URL,
		})
	}

	// The PR picked up a merge conflict.
	if curr.MergeableState == model.MergeableStateDirty &&
		prev.MergeableState != model.MergeableStateDirty {
		alerts = append(alerts, model.AlertRequest{
			Title:   "Merge conflict",
			Message: curr.Description(),
			URL:     curr.URL,
		})
	}

	return alerts
}
