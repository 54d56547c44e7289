package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"quantacore/internal/infra/remote/sqlite"
	"quantacore/pkg/domain"
)

func TestPersistAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var userID, postID string
	if err := store.RunInTransaction(ctx, func(tx domain.RemoteTransaction) error {
		u, err := tx.CreateUser(domain.User{Handle: "ada"})
		if err != nil {
			return err
		}
		userID = u.ID
		a, err := tx.CreateAvatar(domain.Avatar{OwnerUserID: u.ID, Name: "ada-prime"})
		if err != nil {
			return err
		}
		p, err := tx.CreatePost(domain.Post{AvatarID: a.ID, Caption: "first"})
		postID = p.ID
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, ok := reopened.GetUser(userID); !ok {
		t.Fatalf("user not rehydrated")
	}
	if post, ok := reopened.GetPost(postID); !ok || post.Caption != "first" {
		t.Fatalf("post = %+v ok=%v", post, ok)
	}
}

func TestFailedTransactionDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var userID string
	_ = store.RunInTransaction(ctx, func(tx domain.RemoteTransaction) error {
		u, err := tx.CreateUser(domain.User{Handle: "ada"})
		if err != nil {
			return err
		}
		userID = u.ID
		return context.Canceled
	})
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, ok := reopened.GetUser(userID); ok {
		t.Fatalf("aborted transaction persisted")
	}
}

func TestDefaultPath(t *testing.T) {
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "custom.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if store.Path() == "" || store.DB() == nil {
		t.Fatalf("accessors empty")
	}
}
