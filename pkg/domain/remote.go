package domain

import "context"

// RemoteTransaction exposes the operations a remote-store implementation must
// support within an atomic scope. The client core never calls these directly;
// feature services fetch through a RemoteStore and push results into the
// entity store via the facade.
type RemoteTransaction interface {
	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	DeleteUser(id string) error
	CreateAvatar(Avatar) (Avatar, error)
	UpdateAvatar(id string, mutator func(*Avatar) error) (Avatar, error)
	DeleteAvatar(id string) error
	CreatePost(Post) (Post, error)
	UpdatePost(id string, mutator func(*Post) error) (Post, error)
	DeletePost(id string) error
	CreateComment(Comment) (Comment, error)
	UpdateComment(id string, mutator func(*Comment) error) (Comment, error)
	DeleteComment(id string) error
}

// RemoteStore is a minimal abstraction over the backend collaborator that
// persists confirmed state. Implementations may be in-process (dev, tests) or
// wrap a real service; the core only ever sees fetch results pushed through
// the facade.
type RemoteStore interface {
	RunInTransaction(ctx context.Context, fn func(RemoteTransaction) error) error
	View(ctx context.Context, fn func(ReadView) error) error
	GetUser(id string) (User, bool)
	ListUsers() []User
	GetAvatar(id string) (Avatar, bool)
	ListAvatars() []Avatar
	GetPost(id string) (Post, bool)
	ListPosts() []Post
	GetComment(id string) (Comment, bool)
	ListComments() []Comment
	Close() error
}
