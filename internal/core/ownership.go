package core

import "quantacore/pkg/domain"

// Ownership determination. Classification is a pure function of the actor id
// and a snapshot of the store; repeated calls over the same snapshot always
// agree. Posts and comments resolve their ultimate owner transitively through
// their parent avatar, never through a stored owner field of their own.

// OwningUserID resolves the ultimate owning user id for an entity. For a user
// that is the user itself; for an avatar its OwnerUserID; for a post the owner
// of its avatar; for a comment the owner of its post's avatar, or the author
// when the comment was written as a plain user. The second return is false
// when no owner can be resolved (orphaned records).
func OwningUserID(view ReadView, e Entity) (string, bool) {
	switch v := e.(type) {
	case User:
		return v.ID, v.ID != ""
	case Avatar:
		return v.OwnerUserID, v.OwnerUserID != ""
	case Post:
		avatar, ok := view.FindAvatar(v.AvatarID)
		if !ok {
			return "", false
		}
		return avatar.OwnerUserID, avatar.OwnerUserID != ""
	case Comment:
		if v.AuthorKind == AuthorUser {
			return v.AuthorID, v.AuthorID != ""
		}
		avatar, ok := view.FindAvatar(v.AuthorID)
		if !ok {
			return "", false
		}
		return avatar.OwnerUserID, avatar.OwnerUserID != ""
	default:
		return "", false
	}
}

// Classify computes the ownership state of an entity relative to actorID.
// An empty actorID means no session. A nil entity is unknown. Entities whose
// owner cannot be resolved classify as other so owner-only actions stay
// denied.
func Classify(view ReadView, actorID string, e Entity) OwnershipState {
	if actorID == "" {
		return OwnershipUnauthenticated
	}
	if e == nil {
		return OwnershipUnknown
	}
	owner, ok := OwningUserID(view, e)
	if !ok {
		return OwnershipOther
	}
	if owner == actorID {
		return OwnershipOwned
	}
	return OwnershipOther
}

// lookupEntity fetches the entity of the given type from a view. The bool
// reports presence; an unrecognized type is treated as absent.
func lookupEntity(view ReadView, kind EntityType, id string) (Entity, bool) {
	switch kind {
	case EntityUser:
		if u, ok := view.FindUser(id); ok {
			return u, true
		}
	case EntityAvatar:
		if a, ok := view.FindAvatar(id); ok {
			return a, true
		}
	case EntityPost:
		if p, ok := view.FindPost(id); ok {
			return p, true
		}
	case EntityComment:
		if c, ok := view.FindComment(id); ok {
			return c, true
		}
	}
	return nil, false
}

// Classify computes the ownership state of an entity already in hand against
// the current actor and committed state.
func (s *MemoryStore) Classify(e Entity) OwnershipState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actorID := ""
	if s.actor != nil {
		actorID = s.actor.UserID
	}
	return Classify(snapshotView{state: &s.state}, actorID, e)
}

// ClassifyRef looks up an entity by type and id and classifies it. Missing
// entities classify as unknown for signed-in actors.
func (s *MemoryStore) ClassifyRef(kind EntityType, id string) OwnershipState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actorID := ""
	if s.actor != nil {
		actorID = s.actor.UserID
	}
	view := snapshotView{state: &s.state}
	if actorID == "" {
		return OwnershipUnauthenticated
	}
	e, ok := lookupEntity(view, kind, id)
	if !ok {
		return OwnershipUnknown
	}
	return Classify(view, actorID, e)
}

// Permissions derives the permission set for an entity reference against the
// current actor.
func (s *MemoryStore) Permissions(kind EntityType, id string) Permissions {
	return domain.PermissionsFor(s.ClassifyRef(kind, id))
}
