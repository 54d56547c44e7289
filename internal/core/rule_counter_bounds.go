package core

import (
	"context"
	"fmt"
)

// NewCounterBoundsRule returns the advisory rule that logs negative interaction
// counters. The store clamps counters at zero during flag patches, so a
// negative value can only arrive through a seed payload.
func NewCounterBoundsRule() Rule {
	return counterBoundsRule{}
}

type counterBoundsRule struct{}

func (counterBoundsRule) Name() string { return "counter_bounds" }

func (counterBoundsRule) Evaluate(_ context.Context, view ReadView, _ []Change) (Result, error) {
	res := Result{}
	for _, post := range view.ListPosts() {
		c := post.Counters
		if c.Likes < 0 || c.Comments < 0 || c.Shares < 0 || c.Views < 0 {
			res.Violations = append(res.Violations, Violation{
				Rule:     "counter_bounds",
				Severity: SeverityLog,
				Message:  fmt.Sprintf("post %s carries a negative counter (likes=%d comments=%d shares=%d views=%d)", post.ID, c.Likes, c.Comments, c.Shares, c.Views),
				Entity:   EntityPost,
				EntityID: post.ID,
			})
		}
	}
	for _, comment := range view.ListComments() {
		if comment.LikesCount < 0 {
			res.Violations = append(res.Violations, Violation{
				Rule:     "counter_bounds",
				Severity: SeverityLog,
				Message:  fmt.Sprintf("comment %s carries negative likes %d", comment.ID, comment.LikesCount),
				Entity:   EntityComment,
				EntityID: comment.ID,
			})
		}
	}
	for _, avatar := range view.ListAvatars() {
		if avatar.Stats.Followers < 0 {
			res.Violations = append(res.Violations, Violation{
				Rule:     "counter_bounds",
				Severity: SeverityLog,
				Message:  fmt.Sprintf("avatar %s carries negative followers %d", avatar.ID, avatar.Stats.Followers),
				Entity:   EntityAvatar,
				EntityID: avatar.ID,
			})
		}
	}
	return res, nil
}
