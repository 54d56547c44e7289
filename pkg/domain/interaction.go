package domain

// FlagKind identifies a boolean actor-relative interaction flag. Flags are
// keyed by (current actor, target id) and are meaningless across actor
// switches, so the store clears them whenever the actor changes.
type FlagKind string

// Supported interaction flag kinds.
const (
	// FlagLikedPost marks a post as liked by the current actor.
	FlagLikedPost FlagKind = "liked_post"
	// FlagLikedComment marks a comment as liked by the current actor.
	FlagLikedComment FlagKind = "liked_comment"
	// FlagFollowingAvatar marks an avatar as followed by the current actor.
	FlagFollowingAvatar FlagKind = "following_avatar"
	// FlagBookmarkedPost marks a post as bookmarked by the current actor.
	FlagBookmarkedPost FlagKind = "bookmarked_post"
)

// TargetType returns the entity type a flag kind annotates.
func (k FlagKind) TargetType() EntityType {
	switch k {
	case FlagLikedPost, FlagBookmarkedPost:
		return EntityPost
	case FlagLikedComment:
		return EntityComment
	case FlagFollowingAvatar:
		return EntityAvatar
	default:
		return ""
	}
}

// PageState tracks pagination progress for a fetch context key such as "feed"
// or "feed_more".
type PageState struct {
	Page    int  `json:"page"`
	HasMore bool `json:"has_more"`
}
