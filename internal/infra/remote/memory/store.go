// Package memory provides an in-process implementation of the remote-store
// collaborator used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"quantacore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the remote
// store interface.
var _ domain.RemoteStore = (*Store)(nil)

type (
	// User aliases domain.User for remote operations.
	User = domain.User
	// Avatar aliases domain.Avatar.
	Avatar = domain.Avatar
	// Post aliases domain.Post.
	Post = domain.Post
	// Comment aliases domain.Comment.
	Comment = domain.Comment
	// RemoteTransaction aliases domain.RemoteTransaction.
	RemoteTransaction = domain.RemoteTransaction
	// ReadView aliases domain.ReadView.
	ReadView = domain.ReadView
)

type state struct {
	users    map[string]User
	avatars  map[string]Avatar
	posts    map[string]Post
	comments map[string]Comment
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Users    map[string]User    `json:"users"`
	Avatars  map[string]Avatar  `json:"avatars"`
	Posts    map[string]Post    `json:"posts"`
	Comments map[string]Comment `json:"comments"`
}

func newState() state {
	return state{
		users:    make(map[string]User),
		avatars:  make(map[string]Avatar),
		posts:    make(map[string]Post),
		comments: make(map[string]Comment),
	}
}

func (s state) clone() state {
	cloned := newState()
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.avatars {
		cloned.avatars[k] = v
	}
	for k, v := range s.posts {
		cloned.posts[k] = v
	}
	for k, v := range s.comments {
		cloned.comments[k] = v
	}
	return cloned
}

// Store is a mutex-guarded in-memory remote store. Transactions clone the
// state and commit atomically; reads return copies.
type Store struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory remote store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// RunInTransaction applies fn against a cloned state and commits on success.
func (s *Store) RunInTransaction(_ context.Context, fn func(RemoteTransaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(_ context.Context, fn func(ReadView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(stateView{state: &snapshot})
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	return u, ok
}

// ListUsers returns all users, newest first.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.state.users))
	for _, u := range s.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetAvatar retrieves an avatar by id.
func (s *Store) GetAvatar(id string) (Avatar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.avatars[id]
	return a, ok
}

// ListAvatars returns all avatars, newest first.
func (s *Store) ListAvatars() []Avatar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Avatar, 0, len(s.state.avatars))
	for _, a := range s.state.avatars {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetPost retrieves a post by id.
func (s *Store) GetPost(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.posts[id]
	return p, ok
}

// ListPosts returns all posts, newest first.
func (s *Store) ListPosts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Post, 0, len(s.state.posts))
	for _, p := range s.state.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetComment retrieves a comment by id.
func (s *Store) GetComment(id string) (Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.comments[id]
	return c, ok
}

// ListComments returns all comments, newest first.
func (s *Store) ListComments() []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Comment, 0, len(s.state.comments))
	for _, c := range s.state.comments {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close releases nothing for the in-memory store.
func (s *Store) Close() error { return nil }

// ExportState returns a snapshot of current state for persistence wrappers.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Users:    make(map[string]User, len(s.state.users)),
		Avatars:  make(map[string]Avatar, len(s.state.avatars)),
		Posts:    make(map[string]Post, len(s.state.posts)),
		Comments: make(map[string]Comment, len(s.state.comments)),
	}
	for k, v := range s.state.users {
		snap.Users[k] = v
	}
	for k, v := range s.state.avatars {
		snap.Avatars[k] = v
	}
	for k, v := range s.state.posts {
		snap.Posts[k] = v
	}
	for k, v := range s.state.comments {
		snap.Comments[k] = v
	}
	return snap
}

// ImportState replaces current state with the snapshot contents.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newState()
	for k, v := range snap.Users {
		next.users[k] = v
	}
	for k, v := range snap.Avatars {
		next.avatars[k] = v
	}
	for k, v := range snap.Posts {
		next.posts[k] = v
	}
	for k, v := range snap.Comments {
		next.comments[k] = v
	}
	s.state = next
}

type transaction struct {
	state state
	now   time.Time
}

func (t *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = t.now
	}
	u.UpdatedAt = t.now
	t.state.users[u.ID] = u
	return u, nil
}

func (t *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := t.state.users[id]
	if !ok {
		return User{}, domain.ErrNotFound{Entity: domain.EntityUser, ID: id}
	}
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.UpdatedAt = t.now
	t.state.users[id] = current
	return current, nil
}

func (t *transaction) DeleteUser(id string) error {
	if _, ok := t.state.users[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityUser, ID: id}
	}
	delete(t.state.users, id)
	return nil
}

func (t *transaction) CreateAvatar(a Avatar) (Avatar, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now
	}
	a.UpdatedAt = t.now
	t.state.avatars[a.ID] = a
	return a, nil
}

func (t *transaction) UpdateAvatar(id string, mutator func(*Avatar) error) (Avatar, error) {
	current, ok := t.state.avatars[id]
	if !ok {
		return Avatar{}, domain.ErrNotFound{Entity: domain.EntityAvatar, ID: id}
	}
	if err := mutator(&current); err != nil {
		return Avatar{}, err
	}
	current.ID = id
	current.UpdatedAt = t.now
	t.state.avatars[id] = current
	return current, nil
}

func (t *transaction) DeleteAvatar(id string) error {
	if _, ok := t.state.avatars[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityAvatar, ID: id}
	}
	delete(t.state.avatars, id)
	return nil
}

func (t *transaction) CreatePost(p Post) (Post, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.now
	}
	p.UpdatedAt = t.now
	t.state.posts[p.ID] = p
	return p, nil
}

func (t *transaction) UpdatePost(id string, mutator func(*Post) error) (Post, error) {
	current, ok := t.state.posts[id]
	if !ok {
		return Post{}, domain.ErrNotFound{Entity: domain.EntityPost, ID: id}
	}
	if err := mutator(&current); err != nil {
		return Post{}, err
	}
	current.ID = id
	current.UpdatedAt = t.now
	t.state.posts[id] = current
	return current, nil
}

func (t *transaction) DeletePost(id string) error {
	if _, ok := t.state.posts[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityPost, ID: id}
	}
	delete(t.state.posts, id)
	return nil
}

func (t *transaction) CreateComment(c Comment) (Comment, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.now
	}
	c.UpdatedAt = t.now
	t.state.comments[c.ID] = c
	return c, nil
}

func (t *transaction) UpdateComment(id string, mutator func(*Comment) error) (Comment, error) {
	current, ok := t.state.comments[id]
	if !ok {
		return Comment{}, domain.ErrNotFound{Entity: domain.EntityComment, ID: id}
	}
	if err := mutator(&current); err != nil {
		return Comment{}, err
	}
	current.ID = id
	current.UpdatedAt = t.now
	t.state.comments[id] = current
	return current, nil
}

func (t *transaction) DeleteComment(id string) error {
	if _, ok := t.state.comments[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityComment, ID: id}
	}
	delete(t.state.comments, id)
	return nil
}

type stateView struct {
	state *state
}

func (v stateView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	return out
}

func (v stateView) ListAvatars() []Avatar {
	out := make([]Avatar, 0, len(v.state.avatars))
	for _, a := range v.state.avatars {
		out = append(out, a)
	}
	return out
}

func (v stateView) ListPosts() []Post {
	out := make([]Post, 0, len(v.state.posts))
	for _, p := range v.state.posts {
		out = append(out, p)
	}
	return out
}

func (v stateView) ListComments() []Comment {
	out := make([]Comment, 0, len(v.state.comments))
	for _, c := range v.state.comments {
		out = append(out, c)
	}
	return out
}

func (v stateView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

func (v stateView) FindAvatar(id string) (Avatar, bool) {
	a, ok := v.state.avatars[id]
	return a, ok
}

func (v stateView) FindPost(id string) (Post, bool) {
	p, ok := v.state.posts[id]
	return p, ok
}

func (v stateView) FindComment(id string) (Comment, bool) {
	c, ok := v.state.comments[id]
	return c, ok
}
