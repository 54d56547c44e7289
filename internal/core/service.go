package core

import (
	"context"
	"sync"
	"time"
)

// Service exposes the store facade: instrumented entity mutations, guarded
// entry points, optimistic interaction toggles, and read passthroughs. It is
// the only surface callers outside this package are expected to mutate
// through.
type Service struct {
	store     *MemoryStore
	guard     *Guard
	viewModes *ViewModeResolver

	metrics  MetricsRecorder
	tracer   Tracer
	advisory AdvisoryListener

	tokenMu  sync.Mutex
	inflight map[string]uint64
	nextTok  uint64
}

// ServiceOption customises facade construction.
type ServiceOption func(*Service)

// WithMetricsRecorder wires per-operation metrics.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer wires per-operation trace spans.
func WithTracer(tr Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tr }
}

// WithAdvisoryListener wires a sink for advisory rule violations surfaced by
// committed batches.
func WithAdvisoryListener(l AdvisoryListener) ServiceOption {
	return func(s *Service) { s.advisory = l }
}

// NewService constructs a facade backed by the supplied store.
func NewService(store *MemoryStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		guard:     NewGuard(store),
		viewModes: NewViewModeResolver(store),
		inflight:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a facade and in-memory store with the given rules
// engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(NewMemoryStore(engine), opts...)
}

// Store returns the underlying store.
func (s *Service) Store() *MemoryStore {
	return s.store
}

// ViewModes returns the facade's profile view-mode resolver.
func (s *Service) ViewModes() *ViewModeResolver {
	return s.viewModes
}

// Guard returns the facade's authorization guard.
func (s *Service) Guard() *Guard {
	return s.guard
}

// Subscribe registers a change-feed callback on the underlying store.
func (s *Service) Subscribe(fn func([]Change)) (cancel func()) {
	return s.store.Subscribe(fn)
}

func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(Result, error)) {
	start := time.Now()
	var span TraceSpan = nopSpan{}
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	return ctx, func(res Result, err error) {
		span.End(err)
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
		}
		if s.advisory != nil && len(res.Violations) > 0 {
			s.advisory.Advisories(ctx, operation, res.Violations)
		}
	}
}

// Session management ----------------------------------------------------------

// SetCurrentActor installs the signed-in session. A nil session signs out and
// resets the store.
func (s *Service) SetCurrentActor(ctx context.Context, session *Session) {
	_, done := s.instrument(ctx, "set_current_actor")
	s.store.SetCurrentActor(session)
	s.dropTokens()
	done(Result{}, nil)
}

// CurrentActor returns a copy of the signed-in session, or nil for guests.
func (s *Service) CurrentActor() *Session {
	return s.store.CurrentActor()
}

// Entity mutations ------------------------------------------------------------

// Apply runs an arbitrary batch of mutations. The whole batch commits
// atomically and subscribers hear exactly one notification.
func (s *Service) Apply(ctx context.Context, fn func(b *Batch) error) (Result, error) {
	ctx, done := s.instrument(ctx, "apply")
	res, err := s.store.RunBatch(ctx, fn)
	done(res, err)
	return res, err
}

// UpsertUser inserts or replaces a user record.
func (s *Service) UpsertUser(ctx context.Context, u User) (User, Result, error) {
	ctx, done := s.instrument(ctx, "upsert_user")
	var stored User
	res, err := s.store.RunBatch(ctx, func(b *Batch) error {
		stored = b.UpsertUser(u)
		return nil
	})
	done(res, err)
	return stored, res, err
}

// UpsertAvatar inserts or replaces an avatar record.
func (s *Service) UpsertAvatar(ctx context.Context, a Avatar) (Avatar, Result, error) {
	ctx, done := s.instrument(ctx, "upsert_avatar")
	var stored Avatar
	res, err := s.store.RunBatch(ctx, func(b *Batch) error {
		stored = b.UpsertAvatar(a)
		return nil
	})
	done(res, err)
	return stored, res, err
}

// UpsertPost inserts or replaces a post record.
func (s *Service) UpsertPost(ctx context.Context, p Post) (Post, Result, error) {
	ctx, done := s.instrument(ctx, "upsert_post")
	var stored Post
	res, err := s.store.RunBatch(ctx, func(b *Batch) error {
		stored = b.UpsertPost(p)
		return nil
	})
	done(res, err)
	return stored, res, err
}

// UpsertComment inserts or replaces a comment record.
func (s *Service) UpsertComment(ctx context.Context, c Comment) (Comment, Result, error) {
	ctx, done := s.instrument(ctx, "upsert_comment")
	var stored Comment
	res, err := s.store.RunBatch(ctx, func(b *Batch) error {
		stored = b.UpsertComment(c)
		return nil
	})
	done(res, err)
	return stored, res, err
}

// RemoveComment deletes a comment the current actor authored elsewhere in the
// flow; removal itself is tolerant and unguarded.
func (s *Service) RemoveComment(ctx context.Context, id string) (Result, error) {
	ctx, done := s.instrument(ctx, "remove_comment")
	res, err := s.store.RunBatch(ctx, func(b *Batch) error {
		b.RemoveComment(id)
		return nil
	})
	done(res, err)
	return res, err
}

// SetLoading records fetch progress for a context key.
func (s *Service) SetLoading(ctx context.Context, key string, loading bool) (Result, error) {
	ctx, done := s.instrument(ctx, "set_loading")
	res, err := s.store.RunBatch(ctx, func(b *Batch) error {
		b.SetLoading(key, loading)
		return nil
	})
	done(res, err)
	return res, err
}

// SetPagination records pagination progress for a context key.
func (s *Service) SetPagination(ctx context.Context, key string, page PageState) (Result, error) {
	ctx, done := s.instrument(ctx, "set_pagination")
	res, err := s.store.RunBatch(ctx, func(b *Batch) error {
		b.SetPagination(key, page)
		return nil
	})
	done(res, err)
	return res, err
}

// Guarded entry points --------------------------------------------------------

// EditPost applies mutator to an owned post. The guard denies edits by
// non-owners, guests, and on absent posts before mutator runs.
func (s *Service) EditPost(ctx context.Context, id string, mutator func(*Post) error) (Post, Result, error) {
	ctx, done := s.instrument(ctx, "edit_post")
	var (
		updated Post
		res     Result
	)
	err := s.guard.Run(ctx, ActionEdit, EntityPost, id, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunBatch(ctx, func(b *Batch) error {
			current, ok := b.state.posts[id]
			if !ok {
				return ErrNotFound{Entity: EntityPost, ID: id}
			}
			draft := clonePost(current)
			if err := mutator(&draft); err != nil {
				return err
			}
			draft.ID = current.ID
			updated = b.UpsertPost(draft)
			return nil
		})
		return err
	})
	done(res, err)
	return updated, res, err
}

// DeletePost removes an owned post, cascading to its comments.
func (s *Service) DeletePost(ctx context.Context, id string) (Result, error) {
	ctx, done := s.instrument(ctx, "delete_post")
	var res Result
	err := s.guard.Run(ctx, ActionDeleteEntity, EntityPost, id, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunBatch(ctx, func(b *Batch) error {
			b.RemovePost(id)
			return nil
		})
		return err
	})
	done(res, err)
	return res, err
}

// EditAvatar applies mutator to an owned avatar.
func (s *Service) EditAvatar(ctx context.Context, id string, mutator func(*Avatar) error) (Avatar, Result, error) {
	ctx, done := s.instrument(ctx, "edit_avatar")
	var (
		updated Avatar
		res     Result
	)
	err := s.guard.Run(ctx, ActionEdit, EntityAvatar, id, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunBatch(ctx, func(b *Batch) error {
			current, ok := b.state.avatars[id]
			if !ok {
				return ErrNotFound{Entity: EntityAvatar, ID: id}
			}
			draft := cloneAvatar(current)
			if err := mutator(&draft); err != nil {
				return err
			}
			draft.ID = current.ID
			updated = b.UpsertAvatar(draft)
			return nil
		})
		return err
	})
	done(res, err)
	return updated, res, err
}

// DeleteAvatar removes an owned avatar. Its posts stay behind as tolerated
// orphans.
func (s *Service) DeleteAvatar(ctx context.Context, id string) (Result, error) {
	ctx, done := s.instrument(ctx, "delete_avatar")
	var res Result
	err := s.guard.Run(ctx, ActionDeleteEntity, EntityAvatar, id, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunBatch(ctx, func(b *Batch) error {
			b.RemoveAvatar(id)
			return nil
		})
		return err
	})
	done(res, err)
	return res, err
}

// UpdateUserSettings applies mutator to the actor's own user record.
func (s *Service) UpdateUserSettings(ctx context.Context, id string, mutator func(*User) error) (User, Result, error) {
	ctx, done := s.instrument(ctx, "update_user_settings")
	var (
		updated User
		res     Result
	)
	err := s.guard.Run(ctx, ActionManageSettings, EntityUser, id, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunBatch(ctx, func(b *Batch) error {
			current, ok := b.state.users[id]
			if !ok {
				return ErrNotFound{Entity: EntityUser, ID: id}
			}
			draft := cloneUser(current)
			if err := mutator(&draft); err != nil {
				return err
			}
			draft.ID = current.ID
			updated = b.UpsertUser(draft)
			return nil
		})
		return err
	})
	done(res, err)
	return updated, res, err
}

// FollowAvatar toggles the follow flag on another party's avatar. Following
// your own avatar is denied as a self action.
func (s *Service) FollowAvatar(ctx context.Context, avatarID string) (ToggleReceipt, Result, error) {
	ctx, done := s.instrument(ctx, "follow_avatar")
	var res Result
	receipt, err := GuardedRun(s.guard, ctx, ActionFollow, EntityAvatar, avatarID, func(ctx context.Context) (ToggleReceipt, error) {
		var err error
		var rec ToggleReceipt
		rec, res, err = s.toggle(ctx, FlagFollowingAvatar, avatarID)
		return rec, err
	})
	done(res, err)
	return receipt, res, err
}

// ReportEntity authorizes a report against another party's record. The report
// payload itself is submitted upstream; locally only the guard decision
// matters.
func (s *Service) ReportEntity(ctx context.Context, kind EntityType, id string) error {
	ctx, done := s.instrument(ctx, "report_entity")
	err := s.guard.Authorize(ActionReport, kind, id)
	done(Result{}, err)
	return err
}

// BlockUser authorizes a block against another user and purges their content
// from the local store.
func (s *Service) BlockUser(ctx context.Context, userID string) (Result, error) {
	ctx, done := s.instrument(ctx, "block_user")
	var res Result
	err := s.guard.Run(ctx, ActionBlock, EntityUser, userID, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunBatch(ctx, func(b *Batch) error {
			for _, avatarID := range append([]string(nil), b.state.userAvatars[userID]...) {
				for _, postID := range append([]string(nil), b.state.avatarPosts[avatarID]...) {
					b.RemovePost(postID)
				}
				b.RemoveAvatar(avatarID)
			}
			b.RemoveUser(userID)
			return nil
		})
		return err
	})
	done(res, err)
	return res, err
}

// Optimistic toggles ----------------------------------------------------------

// ToggleReceipt describes an applied optimistic toggle. Token identifies the
// in-flight server round trip; Rollback restores the pre-toggle flag and
// counter when that round trip fails. Like ConfirmToggle, a rollback whose
// token was superseded by a newer toggle on the same target is a no-op.
type ToggleReceipt struct {
	Kind     FlagKind
	TargetID string
	Token    uint64
	Value    bool
	Rollback func(ctx context.Context) (Result, error)
}

// OptimisticToggle flips an interaction flag immediately and patches the
// target's counter in the same batch, before any server confirmation. The
// returned receipt carries the rollback closure and the token to pass to
// ConfirmToggle.
func (s *Service) OptimisticToggle(ctx context.Context, kind FlagKind, targetID string) (ToggleReceipt, Result, error) {
	ctx, done := s.instrument(ctx, "optimistic_toggle")
	receipt, res, err := s.toggle(ctx, kind, targetID)
	done(res, err)
	return receipt, res, err
}

func (s *Service) toggle(ctx context.Context, kind FlagKind, targetID string) (ToggleReceipt, Result, error) {
	prev := s.store.IsFlagSet(kind, targetID)
	prevCount, hasCounter := s.counterFor(kind, targetID)
	next := !prev

	var counter *int
	if hasCounter {
		nextCount := prevCount
		if next {
			nextCount++
		} else {
			nextCount--
		}
		counter = &nextCount
	}

	res, err := s.store.RunBatch(ctx, func(b *Batch) error {
		b.SetFlag(kind, targetID, next, counter)
		return nil
	})
	if err != nil {
		return ToggleReceipt{}, res, err
	}

	token := s.issueToken(kind, targetID)
	receipt := ToggleReceipt{
		Kind:     kind,
		TargetID: targetID,
		Token:    token,
		Value:    next,
		Rollback: func(ctx context.Context) (Result, error) {
			if !s.retireToken(kind, targetID, token) {
				return Result{}, nil
			}
			var restore *int
			if hasCounter {
				c := prevCount
				restore = &c
			}
			return s.store.RunBatch(ctx, func(b *Batch) error {
				b.SetFlag(kind, targetID, prev, restore)
				return nil
			})
		},
	}
	return receipt, res, nil
}

// ConfirmToggle settles an optimistic toggle after the server round trip. A
// stale token, superseded by a newer toggle on the same target, is ignored.
// When confirmed, a non-nil serverCount reconciles the counter to the server's
// value; when rejected, the flag and counter revert.
func (s *Service) ConfirmToggle(ctx context.Context, kind FlagKind, targetID string, token uint64, confirmed bool, serverCount *int) (Result, error) {
	ctx, done := s.instrument(ctx, "confirm_toggle")
	if !s.retireToken(kind, targetID, token) {
		done(Result{}, nil)
		return Result{}, nil
	}

	current := s.store.IsFlagSet(kind, targetID)
	var res Result
	var err error
	switch {
	case confirmed && serverCount != nil:
		res, err = s.store.RunBatch(ctx, func(b *Batch) error {
			b.SetFlag(kind, targetID, current, serverCount)
			return nil
		})
	case !confirmed:
		prevCount, hasCounter := s.counterFor(kind, targetID)
		var restore *int
		if hasCounter {
			c := prevCount
			if current {
				c--
			} else {
				c++
			}
			restore = &c
		}
		res, err = s.store.RunBatch(ctx, func(b *Batch) error {
			b.SetFlag(kind, targetID, !current, restore)
			return nil
		})
	}
	done(res, err)
	return res, err
}

func (s *Service) counterFor(kind FlagKind, targetID string) (int, bool) {
	switch kind {
	case FlagLikedPost:
		if p, ok := s.store.GetPost(targetID); ok {
			return p.Counters.Likes, true
		}
	case FlagLikedComment:
		if c, ok := s.store.GetComment(targetID); ok {
			return c.LikesCount, true
		}
	case FlagFollowingAvatar:
		if a, ok := s.store.GetAvatar(targetID); ok {
			return a.Stats.Followers, true
		}
	}
	return 0, false
}

func tokenKey(kind FlagKind, targetID string) string {
	return string(kind) + "/" + targetID
}

func (s *Service) issueToken(kind FlagKind, targetID string) uint64 {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	s.nextTok++
	s.inflight[tokenKey(kind, targetID)] = s.nextTok
	return s.nextTok
}

// retireToken reports whether token is still the latest in-flight toggle for
// the target, clearing it when so.
func (s *Service) retireToken(kind FlagKind, targetID string, token uint64) bool {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	key := tokenKey(kind, targetID)
	if s.inflight[key] != token {
		return false
	}
	delete(s.inflight, key)
	return true
}

func (s *Service) dropTokens() {
	s.tokenMu.Lock()
	s.inflight = make(map[string]uint64)
	s.tokenMu.Unlock()
}

// Read passthroughs -----------------------------------------------------------

// ViewMode resolves who is viewing an avatar profile.
func (s *Service) ViewMode(avatarID string) ProfileViewMode {
	return s.viewModes.Resolve(avatarID)
}

// Classify returns the ownership state of an entity against the current actor.
func (s *Service) Classify(e Entity) OwnershipState {
	return s.store.Classify(e)
}

// ClassifyRef classifies a stored entity by kind and id.
func (s *Service) ClassifyRef(kind EntityType, id string) OwnershipState {
	return s.store.ClassifyRef(kind, id)
}

// Permissions returns the capability set for a stored entity against the
// current actor.
func (s *Service) Permissions(kind EntityType, id string) Permissions {
	return s.store.Permissions(kind, id)
}

// AccountData bundles everything the store holds for one user. The archive
// exporter serializes it.
type AccountData struct {
	User     User      `json:"user"`
	Avatars  []Avatar  `json:"avatars"`
	Posts    []Post    `json:"posts"`
	Comments []Comment `json:"comments"`
}

// AccountSnapshot collects a user's record, their avatars, those avatars'
// posts, and every comment the user or their avatars authored.
func (s *Service) AccountSnapshot(ctx context.Context, userID string) (AccountData, error) {
	_, done := s.instrument(ctx, "account_snapshot")
	user, ok := s.store.GetUser(userID)
	if !ok {
		err := ErrNotFound{Entity: EntityUser, ID: userID}
		done(Result{}, err)
		return AccountData{}, err
	}
	data := AccountData{User: user, Avatars: s.store.AvatarsByUser(userID)}
	owned := make(map[string]bool, len(data.Avatars))
	for _, avatar := range data.Avatars {
		owned[avatar.ID] = true
		data.Posts = append(data.Posts, s.store.PostsByAvatar(avatar.ID)...)
	}
	err := s.store.View(ctx, func(view ReadView) error {
		for _, comment := range view.ListComments() {
			switch comment.AuthorKind {
			case AuthorUser:
				if comment.AuthorID == userID {
					data.Comments = append(data.Comments, comment)
				}
			case AuthorAvatar:
				if owned[comment.AuthorID] {
					data.Comments = append(data.Comments, comment)
				}
			}
		}
		return nil
	})
	done(Result{}, err)
	if err != nil {
		return AccountData{}, err
	}
	return data, nil
}
