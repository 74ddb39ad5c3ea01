package entity

import "time"

// Rate-limit bucket names. Each bucket has its own budget per client identifier.
const (
	BucketLogin              = "login"
	BucketRegister           = "register"
	BucketPasswordReset      = "password_reset"
	BucketAnnouncementCreate = "announcement_create"
	BucketAttendanceSubmit   = "attendance_submit"
	BucketMutation           = "mutation"
)

// RateLimitDecision is the outcome of one admission check.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	// FailedOpen is set when the counter store could not be reached and the request was admitted anyway.
	FailedOpen bool
}
