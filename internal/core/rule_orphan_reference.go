package core

import (
	"context"
	"fmt"
)

// NewOrphanReferenceRule returns the advisory rule that flags upserted posts
// and comments whose parent record is absent. Orphans are tolerated by the
// store; the rule only surfaces them so feed services can refetch the parent.
func NewOrphanReferenceRule() Rule {
	return orphanReferenceRule{}
}

type orphanReferenceRule struct{}

func (orphanReferenceRule) Name() string { return "orphan_reference" }

func (orphanReferenceRule) Evaluate(_ context.Context, view ReadView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Action != ActionUpsert {
			continue
		}
		switch change.Entity {
		case EntityPost:
			post, ok := view.FindPost(change.EntityID)
			if !ok {
				continue
			}
			if _, ok := view.FindAvatar(post.AvatarID); !ok {
				res.Violations = append(res.Violations, Violation{
					Rule:     "orphan_reference",
					Severity: SeverityWarn,
					Message:  fmt.Sprintf("post %s references absent avatar %s", post.ID, post.AvatarID),
					Entity:   EntityPost,
					EntityID: post.ID,
				})
			}
		case EntityComment:
			comment, ok := view.FindComment(change.EntityID)
			if !ok {
				continue
			}
			if _, ok := view.FindPost(comment.PostID); !ok {
				res.Violations = append(res.Violations, Violation{
					Rule:     "orphan_reference",
					Severity: SeverityWarn,
					Message:  fmt.Sprintf("comment %s references absent post %s", comment.ID, comment.PostID),
					Entity:   EntityComment,
					EntityID: comment.ID,
				})
			}
		}
	}
	return res, nil
}
