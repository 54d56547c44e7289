package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFS(t *testing.T) *Filesystem {
	t.Helper()
	f, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	return f
}

func TestFilesystemPutWritesSidecarMeta(t *testing.T) {
	ctx := context.Background()
	f := newTestFS(t)

	info, err := f.Put(ctx, "exports/acct.json", strings.NewReader(`{"n":1}`), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"user_id": "u1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" || info.Size != int64(len(`{"n":1}`)) {
		t.Fatalf("info = %+v", info)
	}

	dataPath := filepath.Join(f.root, "exports", "acct.json")
	if _, err := os.Stat(dataPath); err != nil {
		t.Fatalf("data file: %v", err)
	}
	if _, err := os.Stat(dataPath + ".meta"); err != nil {
		t.Fatalf("meta sidecar: %v", err)
	}

	got, rc, err := f.Get(ctx, "exports/acct.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != `{"n":1}` {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/json" || got.Metadata["user_id"] != "u1" || got.ETag != info.ETag {
		t.Fatalf("info = %+v", got)
	}
}

func TestFilesystemPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	f := newTestFS(t)
	if _, err := f.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := f.Put(ctx, "k", strings.NewReader("two"), PutOptions{}); err == nil {
		t.Fatalf("duplicate put succeeded")
	}
}

func TestNormalizeKeyRejectsTraversal(t *testing.T) {
	bad := []string{"", "  ", "../etc/passwd", "a/../../b", "/abs/path"}
	for _, key := range bad {
		if _, err := normalizeKey(key); err == nil {
			t.Errorf("normalizeKey(%q) accepted", key)
		}
	}
	good := []string{"a", "a/b/c.json", "archives/u1/x/account.csv"}
	for _, key := range good {
		if _, err := normalizeKey(key); err != nil {
			t.Errorf("normalizeKey(%q) rejected: %v", key, err)
		}
	}
}

func TestFilesystemListOrdersByKey(t *testing.T) {
	ctx := context.Background()
	f := newTestFS(t)
	for _, key := range []string{"a/2", "b/1", "a/1"} {
		if _, err := f.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := f.List(ctx, "a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "a/1" || infos[1].Key != "a/2" {
		t.Fatalf("list = %+v", infos)
	}
}

func TestFilesystemDeleteRemovesMeta(t *testing.T) {
	ctx := context.Background()
	f := newTestFS(t)
	if _, err := f.Put(ctx, "k", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	deleted, err := f.Delete(ctx, "k")
	if err != nil || !deleted {
		t.Fatalf("delete = %v, %v", deleted, err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "k.meta")); !os.IsNotExist(err) {
		t.Fatalf("meta sidecar survived delete")
	}
	deleted, err = f.Delete(ctx, "k")
	if err != nil || deleted {
		t.Fatalf("repeat delete = %v, %v", deleted, err)
	}
}

func TestFilesystemPresignGETOnly(t *testing.T) {
	ctx := context.Background()
	f := newTestFS(t)
	url, err := f.PresignURL(ctx, "k", SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "http://local.blob/") {
		t.Fatalf("presign = %q, %v", url, err)
	}
	if _, err := f.PresignURL(ctx, "k", SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatalf("PUT presign succeeded")
	}
}
