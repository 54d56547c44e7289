package core

import (
	"context"
	"errors"
)

// Guard is the only sanctioned entry point for owner- or other-sensitive
// actions. It converts ownership classification into an allow/deny decision
// and raises a typed DeniedError before any side effect can run.
//
// Checks run in a fixed order: authentication, then existence, then ownership
// or self-action. A guest therefore gets DenyUnauthenticated even when the
// target is also missing.
type Guard struct {
	store *MemoryStore
}

// NewGuard constructs a guard over the store.
func NewGuard(store *MemoryStore) *Guard {
	return &Guard{store: store}
}

// Authorize checks whether the current actor may perform action on the
// referenced entity. It returns nil on allow and a DeniedError on deny.
func (g *Guard) Authorize(action GuardAction, kind EntityType, id string) error {
	actor := g.store.CurrentActor()
	if actor == nil {
		return DeniedError{Reason: DenyUnauthenticated, Action: action, Entity: kind, EntityID: id}
	}

	var owner string
	var resolvable, found bool
	verr := g.store.View(context.Background(), func(view ReadView) error {
		var e Entity
		e, found = lookupEntity(view, kind, id)
		if found {
			owner, resolvable = OwningUserID(view, e)
		}
		return nil
	})
	_ = verr // the view callback never fails
	if !found {
		return DeniedError{Reason: DenyInvalidElement, Action: action, Entity: kind, EntityID: id}
	}

	if action.RequiresOwner() {
		if !resolvable || owner != actor.UserID {
			return DeniedError{Reason: DenyUnauthorized, Action: action, Entity: kind, EntityID: id}
		}
		return nil
	}

	// Other-party actions: ownership alone does not gate them correctly. An
	// orphaned target has no owner and is fine to follow or report; a target
	// the actor owns is not.
	if resolvable && owner == actor.UserID {
		return DeniedError{Reason: DenySelfAction, Action: action, Entity: kind, EntityID: id}
	}
	return nil
}

// Run performs the guard check for action on the referenced entity and, only
// on allow, invokes fn. A denied action never executes its callable.
func (g *Guard) Run(ctx context.Context, action GuardAction, kind EntityType, id string, fn func(context.Context) error) error {
	if err := g.Authorize(action, kind, id); err != nil {
		return err
	}
	return fn(ctx)
}

// GuardedRun is the typed variant of Guard.Run for callables that produce a
// result.
func GuardedRun[T any](g *Guard, ctx context.Context, action GuardAction, kind EntityType, id string, fn func(context.Context) (T, error)) (T, error) {
	if err := g.Authorize(action, kind, id); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}

// DeniedReason extracts the denial reason from an error returned by the
// guard, or "" when the error is not a guard denial.
func DeniedReason(err error) DenyReason {
	var denied DeniedError
	if errors.As(err, &denied) {
		return denied.Reason
	}
	return ""
}
