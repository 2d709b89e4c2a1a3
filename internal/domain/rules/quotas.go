package rules

import "time"

const (
	DefaultDailyPostLimit     = 60
	DefaultComplaintThreshold = 5
	DefaultWindowSize         = 3
	DefaultWindowTTL          = 24 * time.Hour

	MaxDescriptionLength = 2000
	MaxTags              = 16
	MaxTagLength         = 64
)

func DayKey(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}

func NextResetAt(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return next.UTC()
}

// ComplaintThresholdReached reports whether count complaints delete a post.
func ComplaintThresholdReached(count, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultComplaintThreshold
	}
	return count >= threshold
}
