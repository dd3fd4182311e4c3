package model

import "time"

// RateLimit reports the authenticated token's core REST API quota.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}
