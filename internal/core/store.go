package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

type memoryState struct {
	users    map[string]User
	avatars  map[string]Avatar
	posts    map[string]Post
	comments map[string]Comment

	// Derived child-id indexes, newest first. These are the only sanctioned
	// copies of parent/child associations; entities never carry them.
	userAvatars  map[string][]string
	avatarPosts  map[string][]string
	postComments map[string][]string

	// Actor-relative layers, wiped on every actor switch.
	flags   map[FlagKind]map[string]bool
	loading map[string]bool
	pages   map[string]PageState
}

func newMemoryState() memoryState {
	return memoryState{
		users:        make(map[string]User),
		avatars:      make(map[string]Avatar),
		posts:        make(map[string]Post),
		comments:     make(map[string]Comment),
		userAvatars:  make(map[string][]string),
		avatarPosts:  make(map[string][]string),
		postComments: make(map[string][]string),
		flags:        make(map[FlagKind]map[string]bool),
		loading:      make(map[string]bool),
		pages:        make(map[string]PageState),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.users {
		cloned.users[k] = cloneUser(v)
	}
	for k, v := range s.avatars {
		cloned.avatars[k] = cloneAvatar(v)
	}
	for k, v := range s.posts {
		cloned.posts[k] = clonePost(v)
	}
	for k, v := range s.comments {
		cloned.comments[k] = cloneComment(v)
	}
	for k, v := range s.userAvatars {
		cloned.userAvatars[k] = append([]string(nil), v...)
	}
	for k, v := range s.avatarPosts {
		cloned.avatarPosts[k] = append([]string(nil), v...)
	}
	for k, v := range s.postComments {
		cloned.postComments[k] = append([]string(nil), v...)
	}
	for kind, targets := range s.flags {
		m := make(map[string]bool, len(targets))
		for id, val := range targets {
			m[id] = val
		}
		cloned.flags[kind] = m
	}
	for k, v := range s.loading {
		cloned.loading[k] = v
	}
	for k, v := range s.pages {
		cloned.pages[k] = v
	}
	return cloned
}

func cloneUser(u User) User          { return u }
func cloneAvatar(a Avatar) Avatar    { return a }
func clonePost(p Post) Post          { return p }
func cloneComment(c Comment) Comment { return c }

func cloneSession(s *Session) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// MemoryStore is the single authoritative in-memory store for entities,
// interaction flags, and fetch state. All writes go through RunBatch so a
// group of mutations commits atomically and notifies subscribers exactly once.
type MemoryStore struct {
	mu       sync.RWMutex
	state    memoryState
	engine   *RulesEngine
	actor    *Session
	actorGen uint64
	nowFn    func() time.Time

	subMu   sync.Mutex
	subs    map[int]func([]Change)
	nextSub int
}

// NewMemoryStore constructs a store with the provided advisory rules engine.
// A nil engine disables advisory evaluation.
func NewMemoryStore(engine *RulesEngine) *MemoryStore {
	return &MemoryStore{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		subs:   make(map[int]func([]Change)),
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Subscribe registers a callback fired once per committed batch with the
// changes the batch applied. The returned cancel function removes the
// subscription.
func (s *MemoryStore) Subscribe(fn func([]Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *MemoryStore) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.subMu.Lock()
	callbacks := make([]func([]Change), 0, len(s.subs))
	for _, fn := range s.subs {
		callbacks = append(callbacks, fn)
	}
	s.subMu.Unlock()
	for _, fn := range callbacks {
		fn(changes)
	}
}

// Batch accumulates mutations against a cloned state. Nothing becomes visible
// until the enclosing RunBatch commits.
type Batch struct {
	store   *MemoryStore
	state   memoryState
	changes []Change
	now     time.Time
}

func (b *Batch) recordChange(change Change) {
	b.changes = append(b.changes, change)
}

// RunBatch executes fn against a transactional copy of the state, evaluates
// advisory rules, commits, and fires one subscriber notification for the whole
// batch. Advisory violations never block the commit; they are returned for the
// caller's observability hooks.
func (s *MemoryStore) RunBatch(ctx context.Context, fn func(b *Batch) error) (Result, error) {
	s.mu.Lock()
	batch := &Batch{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(batch); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(batch.changes) > 0 {
		view := snapshotView{state: &batch.state}
		res, err := s.engine.Evaluate(ctx, view, batch.changes)
		if err != nil {
			s.mu.Unlock()
			return Result{}, err
		}
		result = res
	}

	s.state = batch.state
	changes := batch.changes
	s.mu.Unlock()

	s.notify(changes)
	return result, nil
}

// View executes fn against a read-only snapshot of the committed state.
func (s *MemoryStore) View(ctx context.Context, fn func(ReadView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(snapshotView{state: &snapshot})
}

// SetCurrentActor installs the signed-in session, or signs out when session is
// nil. Any actor change wipes the actor-relative layers (interaction flags,
// loading and pagination state) because they are keyed to the previous
// identity; sign-out resets the whole store. The actor generation counter
// advances so derived caches can detect the switch.
func (s *MemoryStore) SetCurrentActor(session *Session) {
	s.mu.Lock()
	s.actor = cloneSession(session)
	s.actorGen++
	if session == nil {
		s.state = newMemoryState()
	} else {
		s.state.flags = make(map[FlagKind]map[string]bool)
		s.state.loading = make(map[string]bool)
		s.state.pages = make(map[string]PageState)
	}
	s.mu.Unlock()
	s.notify([]Change{{Entity: EntityInteraction, Action: ActionReset}})
}

// CurrentActor returns a copy of the signed-in session, or nil for guests.
func (s *MemoryStore) CurrentActor() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSession(s.actor)
}

// ActorGeneration returns a counter that advances on every actor switch.
// Derived caches key themselves to it so stale entries cannot survive a
// session change.
func (s *MemoryStore) ActorGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actorGen
}

// Upsert primitives -----------------------------------------------------------

// UpsertUser inserts or replaces a user record by id.
func (b *Batch) UpsertUser(u User) User {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = b.now
	}
	u.UpdatedAt = b.now
	var before any
	if prev, ok := b.state.users[u.ID]; ok {
		before = cloneUser(prev)
	}
	b.state.users[u.ID] = cloneUser(u)
	b.recordChange(Change{Entity: EntityUser, Action: ActionUpsert, EntityID: u.ID, Before: before, After: cloneUser(u)})
	return cloneUser(u)
}

// UpsertAvatar inserts or replaces an avatar and links it into its owner's
// avatar list, newest first.
func (b *Batch) UpsertAvatar(a Avatar) Avatar {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = b.now
	}
	a.UpdatedAt = b.now
	var before any
	if prev, ok := b.state.avatars[a.ID]; ok {
		before = cloneAvatar(prev)
		if prev.OwnerUserID != a.OwnerUserID {
			b.state.userAvatars[prev.OwnerUserID] = removeID(b.state.userAvatars[prev.OwnerUserID], a.ID)
		}
	}
	b.state.avatars[a.ID] = cloneAvatar(a)
	b.state.userAvatars[a.OwnerUserID] = prependID(b.state.userAvatars[a.OwnerUserID], a.ID)
	b.recordChange(Change{Entity: EntityAvatar, Action: ActionUpsert, EntityID: a.ID, Before: before, After: cloneAvatar(a)})
	return cloneAvatar(a)
}

// UpsertPost inserts or replaces a post and links it into its avatar's post
// list, newest first. A post referencing an absent avatar is tolerated; it
// classifies as foreign until the avatar arrives.
func (b *Batch) UpsertPost(p Post) Post {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = b.now
	}
	p.UpdatedAt = b.now
	var before any
	if prev, ok := b.state.posts[p.ID]; ok {
		before = clonePost(prev)
		if prev.AvatarID != p.AvatarID {
			b.state.avatarPosts[prev.AvatarID] = removeID(b.state.avatarPosts[prev.AvatarID], p.ID)
		}
	}
	b.state.posts[p.ID] = clonePost(p)
	b.state.avatarPosts[p.AvatarID] = prependID(b.state.avatarPosts[p.AvatarID], p.ID)
	b.recordChange(Change{Entity: EntityPost, Action: ActionUpsert, EntityID: p.ID, Before: before, After: clonePost(p)})
	return clonePost(p)
}

// UpsertComment inserts or replaces a comment and links it into its post's
// comment list, newest first.
func (b *Batch) UpsertComment(c Comment) Comment {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = b.now
	}
	c.UpdatedAt = b.now
	var before any
	if prev, ok := b.state.comments[c.ID]; ok {
		before = cloneComment(prev)
		if prev.PostID != c.PostID {
			b.state.postComments[prev.PostID] = removeID(b.state.postComments[prev.PostID], c.ID)
		}
	}
	b.state.comments[c.ID] = cloneComment(c)
	b.state.postComments[c.PostID] = prependID(b.state.postComments[c.PostID], c.ID)
	b.recordChange(Change{Entity: EntityComment, Action: ActionUpsert, EntityID: c.ID, Before: before, After: cloneComment(c)})
	return cloneComment(c)
}

// Remove primitives -----------------------------------------------------------
//
// Removals are tolerant: deleting an absent id is a no-op, never an error.
// Interaction flags referencing a removed entity are dropped eagerly so the
// flag layer cannot answer for records that no longer exist.

// RemoveUser deletes a user and its avatar-list index. The user's avatars stay
// in the store; they keep classifying by their own OwnerUserID.
func (b *Batch) RemoveUser(id string) {
	current, ok := b.state.users[id]
	if !ok {
		return
	}
	delete(b.state.users, id)
	delete(b.state.userAvatars, id)
	b.recordChange(Change{Entity: EntityUser, Action: ActionDelete, EntityID: id, Before: cloneUser(current)})
}

// RemoveAvatar deletes an avatar, detaches it from its owner's avatar list,
// and drops follow flags referencing it. Its posts remain as tolerated
// orphans.
func (b *Batch) RemoveAvatar(id string) {
	current, ok := b.state.avatars[id]
	if !ok {
		return
	}
	delete(b.state.avatars, id)
	b.state.userAvatars[current.OwnerUserID] = removeID(b.state.userAvatars[current.OwnerUserID], id)
	b.dropFlags(id, FlagFollowingAvatar)
	b.recordChange(Change{Entity: EntityAvatar, Action: ActionDelete, EntityID: id, Before: cloneAvatar(current)})
}

// RemovePost deletes a post, cascades to its comments, detaches it from its
// avatar's post list, and drops like/bookmark flags referencing it.
func (b *Batch) RemovePost(id string) {
	current, ok := b.state.posts[id]
	if !ok {
		return
	}
	for _, commentID := range b.state.postComments[id] {
		if c, ok := b.state.comments[commentID]; ok {
			delete(b.state.comments, commentID)
			b.dropFlags(commentID, FlagLikedComment)
			b.recordChange(Change{Entity: EntityComment, Action: ActionDelete, EntityID: commentID, Before: cloneComment(c)})
		}
	}
	delete(b.state.postComments, id)
	delete(b.state.posts, id)
	b.state.avatarPosts[current.AvatarID] = removeID(b.state.avatarPosts[current.AvatarID], id)
	b.dropFlags(id, FlagLikedPost, FlagBookmarkedPost)
	b.recordChange(Change{Entity: EntityPost, Action: ActionDelete, EntityID: id, Before: clonePost(current)})
}

// RemoveComment deletes a comment and detaches it from its post's comment
// list.
func (b *Batch) RemoveComment(id string) {
	current, ok := b.state.comments[id]
	if !ok {
		return
	}
	delete(b.state.comments, id)
	b.state.postComments[current.PostID] = removeID(b.state.postComments[current.PostID], id)
	b.dropFlags(id, FlagLikedComment)
	b.recordChange(Change{Entity: EntityComment, Action: ActionDelete, EntityID: id, Before: cloneComment(current)})
}

func (b *Batch) dropFlags(targetID string, kinds ...FlagKind) {
	for _, kind := range kinds {
		if targets, ok := b.state.flags[kind]; ok {
			delete(targets, targetID)
		}
	}
}

// Interaction and fetch-state primitives --------------------------------------

// SetFlag updates an actor-relative boolean flag and, when counter is non-nil,
// patches the target's associated counter in the same logical step. A missing
// target tolerates the flag write and skips the counter patch.
func (b *Batch) SetFlag(kind FlagKind, targetID string, value bool, counter *int) {
	targets, ok := b.state.flags[kind]
	if !ok {
		targets = make(map[string]bool)
		b.state.flags[kind] = targets
	}
	before := targets[targetID]
	if value {
		targets[targetID] = true
	} else {
		delete(targets, targetID)
	}
	if counter != nil {
		b.patchCounter(kind, targetID, *counter)
	}
	b.recordChange(Change{Entity: EntityInteraction, Action: ActionFlag, EntityID: targetID, Before: before, After: value})
}

func (b *Batch) patchCounter(kind FlagKind, targetID string, value int) {
	if value < 0 {
		value = 0
	}
	switch kind {
	case FlagLikedPost:
		if p, ok := b.state.posts[targetID]; ok {
			p.Counters.Likes = value
			p.UpdatedAt = b.now
			b.state.posts[targetID] = p
		}
	case FlagLikedComment:
		if c, ok := b.state.comments[targetID]; ok {
			c.LikesCount = value
			c.UpdatedAt = b.now
			b.state.comments[targetID] = c
		}
	case FlagFollowingAvatar:
		if a, ok := b.state.avatars[targetID]; ok {
			a.Stats.Followers = value
			a.UpdatedAt = b.now
			b.state.avatars[targetID] = a
		}
	case FlagBookmarkedPost:
		// bookmarks have no public counter
	}
}

// SetLoading records whether a fetch context is in flight.
func (b *Batch) SetLoading(key string, loading bool) {
	if loading {
		b.state.loading[key] = true
	} else {
		delete(b.state.loading, key)
	}
	b.recordChange(Change{Entity: EntityInteraction, Action: ActionState, EntityID: key, After: loading})
}

// SetPagination records pagination progress for a fetch context.
func (b *Batch) SetPagination(key string, page PageState) {
	b.state.pages[key] = page
	b.recordChange(Change{Entity: EntityInteraction, Action: ActionState, EntityID: key, After: page})
}

// ClearAll wipes every map. Used on sign-out.
func (b *Batch) ClearAll() {
	b.state = newMemoryState()
	b.recordChange(Change{Action: ActionReset})
}

// Read helpers ---------------------------------------------------------------
//
// Reads are synchronous against committed state and always return clones, so
// no caller can hold a second live copy of a stored record.

// GetUser retrieves a user by id.
func (s *MemoryStore) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// GetAvatar retrieves an avatar by id.
func (s *MemoryStore) GetAvatar(id string) (Avatar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.avatars[id]
	if !ok {
		return Avatar{}, false
	}
	return cloneAvatar(a), true
}

// GetPost retrieves a post by id.
func (s *MemoryStore) GetPost(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.posts[id]
	if !ok {
		return Post{}, false
	}
	return clonePost(p), true
}

// GetComment retrieves a comment by id.
func (s *MemoryStore) GetComment(id string) (Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.comments[id]
	if !ok {
		return Comment{}, false
	}
	return cloneComment(c), true
}

// AvatarsByUser returns the user's avatars, newest first. Dangling index
// entries are skipped.
func (s *MemoryStore) AvatarsByUser(userID string) []Avatar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.state.userAvatars[userID]
	out := make([]Avatar, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.state.avatars[id]; ok {
			out = append(out, cloneAvatar(a))
		}
	}
	return out
}

// PostsByAvatar returns the avatar's posts, newest first.
func (s *MemoryStore) PostsByAvatar(avatarID string) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.state.avatarPosts[avatarID]
	out := make([]Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.state.posts[id]; ok {
			out = append(out, clonePost(p))
		}
	}
	return out
}

// CommentsByPost returns the post's comments, newest first.
func (s *MemoryStore) CommentsByPost(postID string) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.state.postComments[postID]
	out := make([]Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.state.comments[id]; ok {
			out = append(out, cloneComment(c))
		}
	}
	return out
}

// ChildIDs returns the child-id list for a parent, newest first: a user's
// avatar ids, an avatar's post ids, or a post's comment ids.
func (s *MemoryStore) ChildIDs(parent EntityType, parentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	switch parent {
	case EntityUser:
		ids = s.state.userAvatars[parentID]
	case EntityAvatar:
		ids = s.state.avatarPosts[parentID]
	case EntityPost:
		ids = s.state.postComments[parentID]
	}
	return append([]string(nil), ids...)
}

// IsFlagSet reports whether the current actor has the given flag on target.
func (s *MemoryStore) IsFlagSet(kind FlagKind, targetID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.flags[kind][targetID]
}

// LoadingState reports whether a fetch context is in flight.
func (s *MemoryStore) LoadingState(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.loading[key]
}

// PaginationState returns pagination progress for a fetch context.
func (s *MemoryStore) PaginationState(key string) (PageState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.pages[key]
	return p, ok
}

func prependID(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append([]string{id}, ids...)
}

func removeID(ids []string, id string) []string {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// snapshotView adapts a memoryState to the domain read-view contract.
type snapshotView struct {
	state *memoryState
}

func (v snapshotView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, cloneUser(u))
	}
	return out
}

func (v snapshotView) ListAvatars() []Avatar {
	out := make([]Avatar, 0, len(v.state.avatars))
	for _, a := range v.state.avatars {
		out = append(out, cloneAvatar(a))
	}
	return out
}

func (v snapshotView) ListPosts() []Post {
	out := make([]Post, 0, len(v.state.posts))
	for _, p := range v.state.posts {
		out = append(out, clonePost(p))
	}
	return out
}

func (v snapshotView) ListComments() []Comment {
	out := make([]Comment, 0, len(v.state.comments))
	for _, c := range v.state.comments {
		out = append(out, cloneComment(c))
	}
	return out
}

func (v snapshotView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

func (v snapshotView) FindAvatar(id string) (Avatar, bool) {
	a, ok := v.state.avatars[id]
	if !ok {
		return Avatar{}, false
	}
	return cloneAvatar(a), true
}

func (v snapshotView) FindPost(id string) (Post, bool) {
	p, ok := v.state.posts[id]
	if !ok {
		return Post{}, false
	}
	return clonePost(p), true
}

func (v snapshotView) FindComment(id string) (Comment, bool) {
	c, ok := v.state.comments[id]
	if !ok {
		return Comment{}, false
	}
	return cloneComment(c), true
}
