package driven

import "github.com/cmalloy/gitbar/internal/domain/model"

// AlertSink receives user-visible alerts. Implementations are fire-and-forget
// and must never block the caller; delivery failures are their own concern.
type AlertSink interface {
	Notify(alert model.AlertRequest)
}
