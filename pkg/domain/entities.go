// Package domain defines the client-side entities, interaction state, change
// records, and authorization primitives used by quantacore.
package domain

import "time"

// EntityType identifies the type of record held by the entity store.
type EntityType string

// Supported entity type identifiers used in Change records and remote buckets.
const (
	// EntityUser identifies an account record.
	EntityUser EntityType = "user"
	// EntityAvatar identifies an avatar persona record.
	EntityAvatar EntityType = "avatar"
	// EntityPost identifies a post record.
	EntityPost EntityType = "post"
	// EntityComment identifies a comment record.
	EntityComment EntityType = "comment"
	// EntityInteraction identifies actor-relative flag state in Change records.
	EntityInteraction EntityType = "interaction"
)

// AuthorKind distinguishes whether a comment was written as a user or as an avatar.
type AuthorKind string

// Comment author kinds.
const (
	AuthorUser   AuthorKind = "user"
	AuthorAvatar AuthorKind = "avatar"
)

// Base contains common fields for all stored records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User represents a signed-up account.
type User struct {
	Base
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// AvatarStats aggregates display counters for an avatar profile.
type AvatarStats struct {
	Followers      int     `json:"followers"`
	Posts          int     `json:"posts"`
	Likes          int     `json:"likes"`
	EngagementRate float64 `json:"engagement_rate"`
}

// Avatar is a persona owned by exactly one user. A user may own many avatars.
type Avatar struct {
	Base
	OwnerUserID string      `json:"owner_user_id"`
	Name        string      `json:"name"`
	Bio         string      `json:"bio,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	Stats       AvatarStats `json:"stats"`
}

// PostCounters aggregates engagement counters for a post.
type PostCounters struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
	Views    int `json:"views"`
}

// Post is published by an avatar. Ownership is derived transitively through
// the avatar's OwnerUserID; the post carries no owner field of its own.
type Post struct {
	Base
	AvatarID string       `json:"avatar_id"`
	Caption  string       `json:"caption"`
	MediaURL string       `json:"media_url,omitempty"`
	Counters PostCounters `json:"counters"`
}

// Comment is attached to a post and authored either by a user or an avatar.
type Comment struct {
	Base
	PostID     string     `json:"post_id"`
	AuthorID   string     `json:"author_id"`
	AuthorKind AuthorKind `json:"author_kind"`
	Text       string     `json:"text"`
	LikesCount int        `json:"likes_count"`
}

// Session describes the signed-in actor. A nil *Session means guest.
type Session struct {
	UserID  string `json:"user_id"`
	Profile User   `json:"profile"`
}

// Entity is the closed set of records the ownership engine and guard accept.
// Each variant resolves its identity and type; owner resolution lives with the
// engine because posts and comments resolve transitively through the store.
type Entity interface {
	EntityID() string
	EntityType() EntityType
}

// EntityID returns the user id.
func (u User) EntityID() string { return u.ID }

// EntityType identifies the record as a user.
func (User) EntityType() EntityType { return EntityUser }

// EntityID returns the avatar id.
func (a Avatar) EntityID() string { return a.ID }

// EntityType identifies the record as an avatar.
func (Avatar) EntityType() EntityType { return EntityAvatar }

// EntityID returns the post id.
func (p Post) EntityID() string { return p.ID }

// EntityType identifies the record as a post.
func (Post) EntityType() EntityType { return EntityPost }

// EntityID returns the comment id.
func (c Comment) EntityID() string { return c.ID }

// EntityType identifies the record as a comment.
func (Comment) EntityType() EntityType { return EntityComment }

// Change describes a mutation applied to the store during a batch.
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID string
	Before   any
	After    any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in notification batches.
const (
	// ActionUpsert indicates an entity was inserted or replaced.
	ActionUpsert Action = "upsert"
	// ActionDelete indicates an entity was removed.
	ActionDelete Action = "delete"
	// ActionFlag indicates an actor-relative interaction flag changed.
	ActionFlag Action = "flag"
	// ActionState indicates loading or pagination state changed.
	ActionState Action = "state"
	// ActionReset indicates the store or the flag layer was cleared.
	ActionReset Action = "reset"
)
