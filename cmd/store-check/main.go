// Command store-check seeds a small social graph through the configured
// remote-store driver, replays it into the client entity store, and verifies
// the store facade end to end: batched notification, ownership
// classification, view modes, guard decisions, and an optimistic toggle round
// trip. Useful as a smoke test against a real sqlite or postgres backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"quantacore/internal/core"
	"quantacore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

type report struct {
	Driver        string `json:"driver"`
	Users         int    `json:"users"`
	Avatars       int    `json:"avatars"`
	Posts         int    `json:"posts"`
	Notifications int    `json:"notifications"`
	ViewMode      string `json:"view_mode"`
	Ownership     string `json:"ownership"`
	GuardDenial   string `json:"guard_denial"`
	ToggleLikes   int    `json:"toggle_likes"`
	OK            bool   `json:"ok"`
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("store-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var timeout time.Duration
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rep, err := run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "store-check: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fmt.Fprintf(stderr, "store-check: encode report: %v\n", err)
		return 1
	}
	if !rep.OK {
		return 1
	}
	return 0
}

func run(ctx context.Context) (report, error) {
	remote, err := core.OpenRemoteStore()
	if err != nil {
		return report{}, fmt.Errorf("open remote store: %w", err)
	}
	defer func() { _ = remote.Close() }()

	driver := os.Getenv("QUANTACORE_REMOTE_DRIVER")
	if driver == "" {
		driver = string(core.RemoteMemory)
	}

	// Seed a two-user graph through the remote driver.
	var owner, other domain.User
	var avatar domain.Avatar
	var post domain.Post
	err = remote.RunInTransaction(ctx, func(tx domain.RemoteTransaction) error {
		var err error
		if owner, err = tx.CreateUser(domain.User{Handle: "ada", DisplayName: "Ada"}); err != nil {
			return err
		}
		if other, err = tx.CreateUser(domain.User{Handle: "brin", DisplayName: "Brin"}); err != nil {
			return err
		}
		if avatar, err = tx.CreateAvatar(domain.Avatar{OwnerUserID: owner.ID, Name: "ada-prime"}); err != nil {
			return err
		}
		post, err = tx.CreatePost(domain.Post{AvatarID: avatar.ID, Caption: "hello"})
		return err
	})
	if err != nil {
		return report{}, fmt.Errorf("seed remote: %w", err)
	}

	// Replay the remote state into the client store in one batch.
	engine := domain.NewRulesEngine()
	engine.Register(core.NewOrphanReferenceRule())
	engine.Register(core.NewCounterBoundsRule())
	svc := core.NewInMemoryService(engine)

	notifications := 0
	cancelSub := svc.Subscribe(func([]domain.Change) { notifications++ })
	defer cancelSub()

	if _, err := svc.Apply(ctx, func(b *core.Batch) error {
		for _, u := range remote.ListUsers() {
			b.UpsertUser(u)
		}
		for _, a := range remote.ListAvatars() {
			b.UpsertAvatar(a)
		}
		for _, p := range remote.ListPosts() {
			b.UpsertPost(p)
		}
		return nil
	}); err != nil {
		return report{}, fmt.Errorf("replay into store: %w", err)
	}

	rep := report{
		Driver:        driver,
		Users:         2,
		Avatars:       1,
		Posts:         1,
		Notifications: notifications,
	}

	// Exercise the facade as the signed-in owner.
	svc.SetCurrentActor(ctx, &domain.Session{UserID: owner.ID})
	rep.ViewMode = string(svc.ViewMode(avatar.ID))
	rep.Ownership = string(svc.ClassifyRef(domain.EntityPost, post.ID))

	// The owner following their own avatar must be denied as a self action.
	_, _, guardErr := svc.FollowAvatar(ctx, avatar.ID)
	rep.GuardDenial = string(core.DeniedReason(guardErr))

	// Optimistic like as the other user, confirmed with the server count.
	svc.SetCurrentActor(ctx, &domain.Session{UserID: other.ID})
	receipt, _, err := svc.OptimisticToggle(ctx, domain.FlagLikedPost, post.ID)
	if err != nil {
		return report{}, fmt.Errorf("optimistic toggle: %w", err)
	}
	serverLikes := 1
	if _, err := svc.ConfirmToggle(ctx, domain.FlagLikedPost, post.ID, receipt.Token, true, &serverLikes); err != nil {
		return report{}, fmt.Errorf("confirm toggle: %w", err)
	}
	if liked, ok := svc.Store().GetPost(post.ID); ok {
		rep.ToggleLikes = liked.Counters.Likes
	}

	rep.OK = rep.Notifications == 1 &&
		rep.ViewMode == string(domain.ViewModeOwner) &&
		rep.Ownership == string(domain.OwnershipOwned) &&
		rep.GuardDenial == string(domain.DenySelfAction) &&
		rep.ToggleLikes == 1
	return rep, nil
}
