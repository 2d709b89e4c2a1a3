package enums

type DeleteReason string

const (
	DeleteReasonAuthor             DeleteReason = "author"
	DeleteReasonModerator          DeleteReason = "moderator"
	DeleteReasonComplaintThreshold DeleteReason = "complaint_threshold"
)

const MaxReportReasonLength = 500
