package model

// PRState represents the lifecycle state of a pull request.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// MergeableStatus is GitHub's tri-state answer to "can this merge cleanly".
type MergeableStatus string

const (
	MergeableYes     MergeableStatus = "mergeable"
	MergeableNo      MergeableStatus = "conflicted"
	MergeableUnknown MergeableStatus = "unknown"
)

// MergeableState mirrors the mergeable_state field of the GitHub PR API.
type MergeableState string

const (
	MergeableStateClean    MergeableState = "clean"
	MergeableStateDirty    MergeableState = "dirty"
	MergeableStateBlocked  MergeableState = "blocked"
	MergeableStateBehind   MergeableState = "behind"
	MergeableStateDraft    MergeableState = "draft"
	MergeableStateUnstable MergeableState = "unstable"
	MergeableStateUnknown  MergeableState = "unknown"
	MergeableStateHasHooks MergeableState = "has_hooks"
)

// ReviewState represents the state of a submitted review.
type ReviewState string

const (
	ReviewStateApproved         ReviewState = "APPROVED"
	ReviewStateChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewStateCommented        ReviewState = "COMMENTED"
	ReviewStatePending          ReviewState = "PENDING"
	ReviewStateDismissed        ReviewState = "DISMISSED"
)

// CheckOutcome is the aggregated result of a pull request's required checks.
type CheckOutcome string

const (
	CheckOutcomeSuccess    CheckOutcome = "success"
	CheckOutcomeFailure    CheckOutcome = "failure"
	CheckOutcomeCancelled  CheckOutcome = "cancelled"
	CheckOutcomeInProgress CheckOutcome = "in_progress"
	// CheckOutcomeNone means the base branch has no required-check
	// protection, or no required check has reported yet.
	CheckOutcomeNone CheckOutcome = "none"
)
