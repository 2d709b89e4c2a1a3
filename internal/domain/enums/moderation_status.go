package enums

type PostStatus string

const (
	PostStatusPending  PostStatus = "pending"
	PostStatusApproved PostStatus = "approved"
	PostStatusRejected PostStatus = "rejected"
	PostStatusDeleted  PostStatus = "deleted"
)

func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusPending, PostStatusApproved, PostStatusRejected, PostStatusDeleted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an edge of the moderation graph.
func CanTransition(from, to PostStatus) bool {
	switch from {
	case PostStatusPending:
		return to == PostStatusApproved || to == PostStatusRejected
	case PostStatusApproved, PostStatusRejected:
		return to == PostStatusDeleted
	default:
		return false
	}
}
