package core

import "sync"

// ViewModeResolver classifies who is viewing an avatar profile, caching the
// answer per avatar id. The cache keys itself to the store's actor generation,
// so a session switch discards every entry at once instead of relying on
// per-key invalidation; removing or re-owning an avatar evicts its entry via
// the store's change feed.
type ViewModeResolver struct {
	store *MemoryStore

	mu    sync.Mutex
	gen   uint64
	cache map[string]ProfileViewMode
}

// NewViewModeResolver constructs a resolver bound to the store and subscribes
// it to change notifications for defensive eviction.
func NewViewModeResolver(store *MemoryStore) *ViewModeResolver {
	r := &ViewModeResolver{
		store: store,
		gen:   store.ActorGeneration(),
		cache: make(map[string]ProfileViewMode),
	}
	store.Subscribe(r.onChanges)
	return r
}

func (r *ViewModeResolver) onChanges(changes []Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range changes {
		switch {
		case c.Action == ActionReset:
			r.cache = make(map[string]ProfileViewMode)
		case c.Entity == EntityAvatar && (c.Action == ActionDelete || c.Action == ActionUpsert):
			// Upserts can change OwnerUserID; cheap to recompute either way.
			delete(r.cache, c.EntityID)
		}
	}
}

// Resolve returns the profile view mode for an avatar against the current
// actor: guest without a session, owner when the actor owns the avatar,
// public otherwise. Absent avatars resolve to public and are not cached.
func (r *ViewModeResolver) Resolve(avatarID string) ProfileViewMode {
	actor := r.store.CurrentActor()
	gen := r.store.ActorGeneration()

	r.mu.Lock()
	if r.gen != gen {
		r.cache = make(map[string]ProfileViewMode)
		r.gen = gen
	}
	if mode, ok := r.cache[avatarID]; ok {
		r.mu.Unlock()
		return mode
	}
	r.mu.Unlock()

	mode, cacheable := r.compute(actor, avatarID)
	if cacheable {
		r.mu.Lock()
		if r.gen == gen {
			r.cache[avatarID] = mode
		}
		r.mu.Unlock()
	}
	return mode
}

func (r *ViewModeResolver) compute(actor *Session, avatarID string) (ProfileViewMode, bool) {
	if actor == nil {
		return ViewModeGuest, true
	}
	avatar, ok := r.store.GetAvatar(avatarID)
	if !ok {
		return ViewModePublic, false
	}
	if avatar.OwnerUserID == actor.UserID {
		return ViewModeOwner, true
	}
	return ViewModePublic, true
}

// Invalidate evicts a single cached entry.
func (r *ViewModeResolver) Invalidate(avatarID string) {
	r.mu.Lock()
	delete(r.cache, avatarID)
	r.mu.Unlock()
}

// Reset drops the entire cache.
func (r *ViewModeResolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]ProfileViewMode)
	r.mu.Unlock()
}

func (r *ViewModeResolver) cachedLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
