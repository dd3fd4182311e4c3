package model

import "time"

// Notification is a GitHub notification tracked in the local snapshot.
// Cleared is sticky and survives re-normalization.
type Notification struct {
	ID             int64
	ThreadID       string // GitHub notification thread id, needed for mark-read.
	SubjectType    string // "PullRequest", "Issue", ...
	SubjectTitle   string
	SubjectURL     string // API URL of the subject.
	PullRequestID  *int64 // Set when SubjectURL resolves to a tracked PR.
	PullRequestURL string // Browser URL of the linked PR, if any.
	Comment        string // Body of the latest comment, if one was resolvable.
	Cleared        bool   // Sticky, user-controlled.
	UpdatedAt      time.Time

	// Transient, populated by the gateway and not persisted.
	LatestCommentURL string
}

// Clone returns a copy of the notification. PullRequestID is duplicated so
// snapshot readers cannot alias the stored pointer.
func (n Notification) Clone() Notification {
	out := n
	if n.PullRequestID != nil {
		id := *n.PullRequestID
		out.PullRequestID = &id
	}
	return out
}

// AlertRequest is a user-visible alert dispatched to the alert sink.
type AlertRequest struct {
	Title   string
	Message string
	URL     string // Opened when the user activates the alert.
}
