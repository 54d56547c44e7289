package domain

import "fmt"

// GuardAction is a category of owner- or other-sensitive action gated by the
// authorization guard.
type GuardAction string

// Guarded action categories. Edit, delete, and settings management require
// ownership; follow, report, and block require a distinct other party.
const (
	ActionEdit           GuardAction = "edit"
	ActionDeleteEntity   GuardAction = "delete"
	ActionManageSettings GuardAction = "manage_settings"
	ActionFollow         GuardAction = "follow"
	ActionReport         GuardAction = "report"
	ActionBlock          GuardAction = "block"
)

// RequiresOwner reports whether the action is gated on the actor owning the
// target.
func (a GuardAction) RequiresOwner() bool {
	switch a {
	case ActionEdit, ActionDeleteEntity, ActionManageSettings:
		return true
	default:
		return false
	}
}

// DenyReason is a machine-readable guard denial kind.
type DenyReason string

// Guard denial reasons. All four are recoverable, user-facing conditions; the
// guard raises them synchronously before any side effect runs.
const (
	// DenyUnauthenticated means no actor is signed in.
	DenyUnauthenticated DenyReason = "unauthenticated"
	// DenyInvalidElement means the target entity is absent from the store.
	DenyInvalidElement DenyReason = "invalid_element"
	// DenyUnauthorized means the actor does not own an owner-gated target.
	DenyUnauthorized DenyReason = "unauthorized"
	// DenySelfAction means the actor owns a target that requires a distinct
	// other party, e.g. following or reporting their own avatar.
	DenySelfAction DenyReason = "self_action"
)

// DeniedError is raised by the authorization guard when an action fails its
// check. Callers match on Reason via errors.As.
type DeniedError struct {
	Reason   DenyReason
	Action   GuardAction
	Entity   EntityType
	EntityID string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("%s %s %s %s: denied (%s)", e.Action, e.Entity, e.EntityID, deniedVerb(e.Reason), e.Reason)
}

func deniedVerb(r DenyReason) string {
	switch r {
	case DenyUnauthenticated:
		return "without a session"
	case DenyInvalidElement:
		return "that does not exist"
	case DenySelfAction:
		return "owned by the actor"
	default:
		return "owned by another user"
	}
}

// ErrNotFound is returned by remote-store helpers when a referenced record is
// missing.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
