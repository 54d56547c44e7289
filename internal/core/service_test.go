package core_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quantacore/internal/core"
	"quantacore/pkg/domain"
)

type recordingMetrics struct {
	mu   sync.Mutex
	ops  []string
	fail int
}

func (r *recordingMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, operation)
	if !success {
		r.fail++
	}
}

type recordingAdvisories struct {
	mu    sync.Mutex
	viols []domain.Violation
}

func (r *recordingAdvisories) Advisories(_ context.Context, _ string, violations []domain.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viols = append(r.viols, violations...)
}

func seedService(t *testing.T, svc *core.Service) graphIDs {
	t.Helper()
	ctx := context.Background()
	var ids graphIDs
	if _, err := svc.Apply(ctx, func(b *core.Batch) error {
		u := b.UpsertUser(domain.User{Handle: "ada"})
		a := b.UpsertAvatar(domain.Avatar{OwnerUserID: u.ID, Name: "ada-prime"})
		p := b.UpsertPost(domain.Post{AvatarID: a.ID, Caption: "first"})
		c := b.UpsertComment(domain.Comment{PostID: p.ID, AuthorID: u.ID, AuthorKind: domain.AuthorUser, Text: "hi"})
		ids = graphIDs{userID: u.ID, avatarID: a.ID, postID: p.ID, commentID: c.ID}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return ids
}

func TestApplySeedsAtomically(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	var fired int
	cancel := svc.Subscribe(func([]domain.Change) { fired++ })
	defer cancel()

	seedService(t, svc)
	if fired != 1 {
		t.Fatalf("seed batch fired %d notifications", fired)
	}
}

func TestOptimisticToggleFlipAndRevert(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()
	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})

	receipt, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !receipt.Value {
		t.Fatalf("first toggle should set the flag")
	}
	post, _ := svc.Store().GetPost(ids.postID)
	if post.Counters.Likes != 1 {
		t.Fatalf("likes after toggle = %d", post.Counters.Likes)
	}

	// Toggling twice restores the original state.
	if _, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	post, _ = svc.Store().GetPost(ids.postID)
	if post.Counters.Likes != 0 {
		t.Fatalf("likes after flip-flip = %d", post.Counters.Likes)
	}
	if svc.Store().IsFlagSet(domain.FlagLikedPost, ids.postID) {
		t.Fatalf("flag set after flip-flip")
	}
}

func TestToggleRollbackRestoresState(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()
	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})

	receipt, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := receipt.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	post, _ := svc.Store().GetPost(ids.postID)
	if post.Counters.Likes != 0 {
		t.Fatalf("likes after rollback = %d", post.Counters.Likes)
	}
	if svc.Store().IsFlagSet(domain.FlagLikedPost, ids.postID) {
		t.Fatalf("flag survived rollback")
	}

	// A confirm arriving after rollback carries a retired token and is
	// ignored.
	serverCount := 7
	if _, err := svc.ConfirmToggle(ctx, domain.FlagLikedPost, ids.postID, receipt.Token, true, &serverCount); err != nil {
		t.Fatalf("late confirm: %v", err)
	}
	post, _ = svc.Store().GetPost(ids.postID)
	if post.Counters.Likes != 0 {
		t.Fatalf("retired confirm patched counter to %d", post.Counters.Likes)
	}
}

func TestConfirmToggleReconcilesServerCount(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()
	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})

	receipt, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	serverCount := 42
	if _, err := svc.ConfirmToggle(ctx, domain.FlagLikedPost, ids.postID, receipt.Token, true, &serverCount); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	post, _ := svc.Store().GetPost(ids.postID)
	if post.Counters.Likes != 42 {
		t.Fatalf("likes after confirm = %d", post.Counters.Likes)
	}
	if !svc.Store().IsFlagSet(domain.FlagLikedPost, ids.postID) {
		t.Fatalf("flag lost on confirm")
	}
}

func TestConfirmToggleRejectedReverts(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()
	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})

	receipt, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := svc.ConfirmToggle(ctx, domain.FlagLikedPost, ids.postID, receipt.Token, false, nil); err != nil {
		t.Fatalf("reject: %v", err)
	}
	post, _ := svc.Store().GetPost(ids.postID)
	if post.Counters.Likes != 0 {
		t.Fatalf("likes after rejected confirm = %d", post.Counters.Likes)
	}
	if svc.Store().IsFlagSet(domain.FlagLikedPost, ids.postID) {
		t.Fatalf("flag survived rejected confirm")
	}
}

func TestStaleTokenIgnored(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()
	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})

	first, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	second, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}

	// The first round trip's confirmation arrives late; only the second
	// token is current.
	serverCount := 99
	if _, err := svc.ConfirmToggle(ctx, domain.FlagLikedPost, ids.postID, first.Token, true, &serverCount); err != nil {
		t.Fatalf("stale confirm: %v", err)
	}
	post, _ := svc.Store().GetPost(ids.postID)
	if post.Counters.Likes == 99 {
		t.Fatalf("stale token reconciled the counter")
	}

	if _, err := svc.ConfirmToggle(ctx, domain.FlagLikedPost, ids.postID, second.Token, false, nil); err != nil {
		t.Fatalf("current reject: %v", err)
	}
	if !svc.Store().IsFlagSet(domain.FlagLikedPost, ids.postID) {
		t.Fatalf("rejecting the un-like should restore the liked state")
	}
}

func TestStaleRollbackIgnored(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()
	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})

	if _, err := svc.Apply(ctx, func(b *core.Batch) error {
		b.UpsertPost(domain.Post{Base: domain.Base{ID: ids.postID}, AvatarID: ids.avatarID, Caption: "first", Counters: domain.PostCounters{Likes: 5}})
		return nil
	}); err != nil {
		t.Fatalf("seed likes: %v", err)
	}

	// Three rapid toggles; only the third round trip is in flight.
	first, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if _, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if _, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, ids.postID); err != nil {
		t.Fatalf("third toggle: %v", err)
	}
	if !svc.Store().IsFlagSet(domain.FlagLikedPost, ids.postID) {
		t.Fatalf("flag not set after third toggle")
	}

	// The first round trip fails late; its rollback carries a superseded
	// token and must leave the third toggle's state alone.
	if _, err := first.Rollback(ctx); err != nil {
		t.Fatalf("stale rollback: %v", err)
	}
	if !svc.Store().IsFlagSet(domain.FlagLikedPost, ids.postID) {
		t.Fatalf("stale rollback cleared the newer flag")
	}
	post, _ := svc.Store().GetPost(ids.postID)
	if post.Counters.Likes != 6 {
		t.Fatalf("likes after stale rollback = %d", post.Counters.Likes)
	}
}

func TestEditPostGuardedMutator(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()

	if _, _, err := svc.EditPost(ctx, ids.postID, func(p *domain.Post) error {
		p.Caption = "nope"
		return nil
	}); core.DeniedReason(err) != domain.DenyUnauthenticated {
		t.Fatalf("guest edit = %v", err)
	}

	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})
	updated, _, err := svc.EditPost(ctx, ids.postID, func(p *domain.Post) error {
		p.Caption = "edited"
		return nil
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.Caption != "edited" || updated.ID != ids.postID {
		t.Fatalf("unexpected update: %+v", updated)
	}

	if _, _, err := svc.EditPost(ctx, ids.postID, func(*domain.Post) error {
		return fmt.Errorf("mutator refuses")
	}); err == nil {
		t.Fatalf("mutator error swallowed")
	}
	post, _ := svc.Store().GetPost(ids.postID)
	if post.Caption != "edited" {
		t.Fatalf("failed mutator changed state: %q", post.Caption)
	}
}

func TestDeleteAndSettingsEntryPoints(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()
	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})

	if _, _, err := svc.UpdateUserSettings(ctx, ids.userID, func(u *domain.User) error {
		u.Bio = "updated bio"
		return nil
	}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	user, _ := svc.Store().GetUser(ids.userID)
	if user.Bio != "updated bio" {
		t.Fatalf("settings not applied: %+v", user)
	}

	if _, err := svc.DeletePost(ctx, ids.postID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, ok := svc.Store().GetPost(ids.postID); ok {
		t.Fatalf("post survived delete")
	}

	if _, err := svc.DeleteAvatar(ctx, ids.avatarID); err != nil {
		t.Fatalf("delete avatar: %v", err)
	}
	if _, ok := svc.Store().GetAvatar(ids.avatarID); ok {
		t.Fatalf("avatar survived delete")
	}
}

func TestFollowAvatarSelfActionDenied(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()
	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})

	if _, _, err := svc.FollowAvatar(ctx, ids.avatarID); core.DeniedReason(err) != domain.DenySelfAction {
		t.Fatalf("self follow = %v", err)
	}

	var foreignAvatar string
	if _, err := svc.Apply(ctx, func(b *core.Batch) error {
		u := b.UpsertUser(domain.User{Handle: "brin"})
		a := b.UpsertAvatar(domain.Avatar{OwnerUserID: u.ID, Name: "brin-prime"})
		foreignAvatar = a.ID
		return nil
	}); err != nil {
		t.Fatalf("seed foreign: %v", err)
	}

	receipt, _, err := svc.FollowAvatar(ctx, foreignAvatar)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if !receipt.Value {
		t.Fatalf("follow receipt should report the flag set")
	}
	avatar, _ := svc.Store().GetAvatar(foreignAvatar)
	if avatar.Stats.Followers != 1 {
		t.Fatalf("followers after follow = %d", avatar.Stats.Followers)
	}
}

func TestBlockUserPurgesContent(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()

	var blocked graphIDs
	if _, err := svc.Apply(ctx, func(b *core.Batch) error {
		u := b.UpsertUser(domain.User{Handle: "spammer"})
		a := b.UpsertAvatar(domain.Avatar{OwnerUserID: u.ID, Name: "spam-prime"})
		p := b.UpsertPost(domain.Post{AvatarID: a.ID, Caption: "spam"})
		blocked = graphIDs{userID: u.ID, avatarID: a.ID, postID: p.ID}
		return nil
	}); err != nil {
		t.Fatalf("seed blocked: %v", err)
	}

	svc.SetCurrentActor(ctx, &domain.Session{UserID: ids.userID})
	if _, err := svc.BlockUser(ctx, blocked.userID); err != nil {
		t.Fatalf("block: %v", err)
	}

	if _, ok := svc.Store().GetUser(blocked.userID); ok {
		t.Fatalf("blocked user survived")
	}
	if _, ok := svc.Store().GetAvatar(blocked.avatarID); ok {
		t.Fatalf("blocked avatar survived")
	}
	if _, ok := svc.Store().GetPost(blocked.postID); ok {
		t.Fatalf("blocked post survived")
	}
	if _, ok := svc.Store().GetPost(ids.postID); !ok {
		t.Fatalf("own content purged by block")
	}
}

func TestReportEntityGuardOnly(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()

	if err := svc.ReportEntity(ctx, domain.EntityPost, ids.postID); core.DeniedReason(err) != domain.DenyUnauthenticated {
		t.Fatalf("guest report = %v", err)
	}
	svc.SetCurrentActor(ctx, &domain.Session{UserID: "other-user"})
	if err := svc.ReportEntity(ctx, domain.EntityPost, ids.postID); err != nil {
		t.Fatalf("report foreign post: %v", err)
	}
}

func TestServiceObservabilityHooks(t *testing.T) {
	metrics := &recordingMetrics{}
	advisories := &recordingAdvisories{}
	engine := domain.NewRulesEngine()
	engine.Register(core.NewOrphanReferenceRule())
	svc := core.NewInMemoryService(engine,
		core.WithMetricsRecorder(metrics),
		core.WithAdvisoryListener(advisories),
		core.WithTracer(core.NewJSONTracer(nil)),
	)
	ctx := context.Background()

	// An orphaned post trips the advisory rule without blocking the commit.
	if _, _, err := svc.UpsertPost(ctx, domain.Post{AvatarID: "absent-avatar", Caption: "orphan"}); err != nil {
		t.Fatalf("orphan upsert: %v", err)
	}

	metrics.mu.Lock()
	ops := append([]string(nil), metrics.ops...)
	metrics.mu.Unlock()
	if len(ops) == 0 || ops[len(ops)-1] != "upsert_post" {
		t.Fatalf("metrics ops = %v", ops)
	}

	advisories.mu.Lock()
	viols := append([]domain.Violation(nil), advisories.viols...)
	advisories.mu.Unlock()
	if len(viols) != 1 || viols[0].Rule != "orphan_reference" {
		t.Fatalf("advisories = %+v", viols)
	}
}

func TestAccountSnapshotCollectsOwnedContent(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ids := seedService(t, svc)
	ctx := context.Background()

	// Content from another user must stay out of the snapshot.
	if _, err := svc.Apply(ctx, func(b *core.Batch) error {
		u := b.UpsertUser(domain.User{Handle: "brin"})
		a := b.UpsertAvatar(domain.Avatar{OwnerUserID: u.ID, Name: "brin-prime"})
		b.UpsertPost(domain.Post{AvatarID: a.ID, Caption: "not mine"})
		b.UpsertComment(domain.Comment{PostID: ids.postID, AuthorID: u.ID, AuthorKind: domain.AuthorUser, Text: "foreign"})
		return nil
	}); err != nil {
		t.Fatalf("seed foreign: %v", err)
	}

	data, err := svc.AccountSnapshot(ctx, ids.userID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if data.User.ID != ids.userID {
		t.Fatalf("wrong user: %+v", data.User)
	}
	if len(data.Avatars) != 1 || data.Avatars[0].ID != ids.avatarID {
		t.Fatalf("avatars = %+v", data.Avatars)
	}
	if len(data.Posts) != 1 || data.Posts[0].ID != ids.postID {
		t.Fatalf("posts = %+v", data.Posts)
	}
	if len(data.Comments) != 1 || data.Comments[0].ID != ids.commentID {
		t.Fatalf("comments = %+v", data.Comments)
	}

	if _, err := svc.AccountSnapshot(ctx, "missing"); err == nil {
		t.Fatalf("missing user snapshot succeeded")
	}
}
