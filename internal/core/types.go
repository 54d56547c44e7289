package core

import "quantacore/pkg/domain"

type (
	EntityType      = domain.EntityType
	AuthorKind      = domain.AuthorKind
	Base            = domain.Base
	User            = domain.User
	Avatar          = domain.Avatar
	AvatarStats     = domain.AvatarStats
	Post            = domain.Post
	PostCounters    = domain.PostCounters
	Comment         = domain.Comment
	Session         = domain.Session
	Entity          = domain.Entity
	Change          = domain.Change
	Action          = domain.Action
	FlagKind        = domain.FlagKind
	PageState       = domain.PageState
	OwnershipState  = domain.OwnershipState
	ProfileViewMode = domain.ProfileViewMode
	Permissions     = domain.Permissions
	GuardAction     = domain.GuardAction
	DenyReason      = domain.DenyReason
	DeniedError     = domain.DeniedError
	Severity        = domain.Severity
	Violation       = domain.Violation
	Result          = domain.Result
	Rule            = domain.Rule
	RulesEngine     = domain.RulesEngine
	ReadView        = domain.ReadView
	RemoteStore     = domain.RemoteStore
	ErrNotFound     = domain.ErrNotFound
)

const (
	EntityUser        = domain.EntityUser
	EntityAvatar      = domain.EntityAvatar
	EntityPost        = domain.EntityPost
	EntityComment     = domain.EntityComment
	EntityInteraction = domain.EntityInteraction
)

const (
	AuthorUser   = domain.AuthorUser
	AuthorAvatar = domain.AuthorAvatar
)

const (
	ActionUpsert = domain.ActionUpsert
	ActionDelete = domain.ActionDelete
	ActionFlag   = domain.ActionFlag
	ActionState  = domain.ActionState
	ActionReset  = domain.ActionReset
)

const (
	FlagLikedPost       = domain.FlagLikedPost
	FlagLikedComment    = domain.FlagLikedComment
	FlagFollowingAvatar = domain.FlagFollowingAvatar
	FlagBookmarkedPost  = domain.FlagBookmarkedPost
)

const (
	OwnershipOwned           = domain.OwnershipOwned
	OwnershipOther           = domain.OwnershipOther
	OwnershipUnauthenticated = domain.OwnershipUnauthenticated
	OwnershipUnknown         = domain.OwnershipUnknown
)

const (
	ViewModeOwner  = domain.ViewModeOwner
	ViewModePublic = domain.ViewModePublic
	ViewModeGuest  = domain.ViewModeGuest
)

const (
	ActionEdit           = domain.ActionEdit
	ActionDeleteEntity   = domain.ActionDeleteEntity
	ActionManageSettings = domain.ActionManageSettings
	ActionFollow         = domain.ActionFollow
	ActionReport         = domain.ActionReport
	ActionBlock          = domain.ActionBlock
)

const (
	DenyUnauthenticated = domain.DenyUnauthenticated
	DenyInvalidElement  = domain.DenyInvalidElement
	DenyUnauthorized    = domain.DenyUnauthorized
	DenySelfAction      = domain.DenySelfAction
)

const (
	SeverityWarn = domain.SeverityWarn
	SeverityLog  = domain.SeverityLog
)
