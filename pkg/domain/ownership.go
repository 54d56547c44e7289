package domain

// OwnershipState classifies an entity relative to the current actor.
type OwnershipState string

// Ownership classifications.
const (
	// OwnershipOwned means the actor is the entity's ultimate owner.
	OwnershipOwned OwnershipState = "owned"
	// OwnershipOther means the entity exists and belongs to someone else.
	// Entities with no resolvable owner also classify as other so owner-only
	// actions stay denied.
	OwnershipOther OwnershipState = "other"
	// OwnershipUnauthenticated means no actor is signed in.
	OwnershipUnauthenticated OwnershipState = "unauthenticated"
	// OwnershipUnknown means the entity is absent from the store.
	OwnershipUnknown OwnershipState = "unknown"
)

// ProfileViewMode classifies who is viewing an avatar profile.
type ProfileViewMode string

// Profile view modes.
const (
	ViewModeOwner  ProfileViewMode = "owner"
	ViewModePublic ProfileViewMode = "public"
	ViewModeGuest  ProfileViewMode = "guest"
)

// Permissions is the set of action predicates derived from an ownership state.
// It is computed, never stored.
type Permissions struct {
	CanEdit           bool `json:"can_edit"`
	CanDelete         bool `json:"can_delete"`
	CanManageSettings bool `json:"can_manage_settings"`
	CanFollow         bool `json:"can_follow"`
	CanReport         bool `json:"can_report"`
	CanBlock          bool `json:"can_block"`
}

// PermissionsFor derives the permission set for an ownership state. Owner-only
// predicates hold exactly for owned; other-party predicates hold exactly for
// other. Unauthenticated and unknown states grant nothing.
func PermissionsFor(state OwnershipState) Permissions {
	switch state {
	case OwnershipOwned:
		return Permissions{CanEdit: true, CanDelete: true, CanManageSettings: true}
	case OwnershipOther:
		return Permissions{CanFollow: true, CanReport: true, CanBlock: true}
	default:
		return Permissions{}
	}
}
