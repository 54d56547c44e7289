package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"quantacore/internal/blob"
	"quantacore/internal/core"
	"quantacore/pkg/domain"
)

type fakeSource struct {
	data core.AccountData
	err  error
}

func (f *fakeSource) AccountSnapshot(_ context.Context, userID string) (core.AccountData, error) {
	if f.err != nil {
		return core.AccountData{}, f.err
	}
	if f.data.User.ID != userID {
		return core.AccountData{}, domain.ErrNotFound{Entity: domain.EntityUser, ID: userID}
	}
	return f.data, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recordingAudit) Record(_ context.Context, entry AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Status)
	}
	return out
}

func testAccountData() core.AccountData {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return core.AccountData{
		User:    domain.User{Base: domain.Base{ID: "u1", CreatedAt: now}, Handle: "ada"},
		Avatars: []domain.Avatar{{Base: domain.Base{ID: "a1", CreatedAt: now}, OwnerUserID: "u1", Name: "ada-prime"}},
		Posts:   []domain.Post{{Base: domain.Base{ID: "p1", CreatedAt: now}, AvatarID: "a1", Caption: "first", Counters: domain.PostCounters{Likes: 2}}},
		Comments: []domain.Comment{
			{Base: domain.Base{ID: "c1", CreatedAt: now}, PostID: "p1", AuthorID: "u1", AuthorKind: domain.AuthorUser, Text: "hi", LikesCount: 1},
		},
	}
}

func awaitTerminal(t *testing.T, w *Worker, id string) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.Get(id)
		if !ok {
			t.Fatalf("record %s vanished", id)
		}
		if record.Status == StatusSucceeded || record.Status == StatusFailed {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("archive %s never finished", id)
	return Record{}
}

func TestWorkerArchivesAccount(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	audit := &recordingAudit{}
	w := NewWorker(&fakeSource{data: testAccountData()}, store, audit)
	w.Start()
	defer func() {
		if err := w.Stop(context.Background()); err != nil {
			t.Errorf("stop: %v", err)
		}
	}()

	queued, err := w.Enqueue(ctx, Input{UserID: "u1", RequestedBy: "u1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != StatusQueued || len(queued.Formats) != 2 {
		t.Fatalf("queued record = %+v", queued)
	}

	record := awaitTerminal(t, w, queued.ID)
	if record.Status != StatusSucceeded {
		t.Fatalf("record = %+v", record)
	}
	if len(record.Artifacts) != 2 {
		t.Fatalf("artifacts = %+v", record.Artifacts)
	}
	if record.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}

	for _, artifact := range record.Artifacts {
		wantKey := fmt.Sprintf("archives/u1/%s/account.%s", record.ID, artifact.Format)
		if artifact.Key != wantKey {
			t.Errorf("artifact key = %q, want %q", artifact.Key, wantKey)
		}
		info, rc, err := store.Get(ctx, artifact.Key)
		if err != nil {
			t.Fatalf("stored artifact %s: %v", artifact.Key, err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		if info.Metadata["archive_id"] != record.ID || info.Metadata["user_id"] != "u1" {
			t.Errorf("artifact metadata = %+v", info.Metadata)
		}
		switch artifact.Format {
		case FormatJSON:
			var data core.AccountData
			if err := json.Unmarshal(body, &data); err != nil {
				t.Fatalf("json artifact: %v", err)
			}
			if data.User.ID != "u1" || len(data.Posts) != 1 {
				t.Errorf("json payload = %+v", data)
			}
		case FormatCSV:
			lines := strings.Split(strings.TrimSpace(string(body)), "\n")
			if len(lines) != 5 {
				t.Errorf("csv rows = %d:\n%s", len(lines), body)
			}
			if !strings.HasPrefix(lines[0], "section,id,created_at") {
				t.Errorf("csv header = %q", lines[0])
			}
		}
	}

	statuses := audit.statuses()
	if len(statuses) < 3 || statuses[0] != StatusQueued || statuses[len(statuses)-1] != StatusSucceeded {
		t.Fatalf("audit statuses = %v", statuses)
	}
}

func TestWorkerFailsOnSourceError(t *testing.T) {
	ctx := context.Background()
	audit := &recordingAudit{}
	w := NewWorker(&fakeSource{err: fmt.Errorf("backend down")}, blob.NewMemory(), audit)
	w.Start()
	defer w.Stop(context.Background())

	queued, err := w.Enqueue(ctx, Input{UserID: "u1", RequestedBy: "u1", Formats: []Format{FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := awaitTerminal(t, w, queued.ID)
	if record.Status != StatusFailed || !strings.Contains(record.Error, "backend down") {
		t.Fatalf("record = %+v", record)
	}
	statuses := audit.statuses()
	if statuses[len(statuses)-1] != StatusFailed {
		t.Fatalf("audit statuses = %v", statuses)
	}
}

func TestEnqueueValidatesInput(t *testing.T) {
	ctx := context.Background()
	w := NewWorker(&fakeSource{data: testAccountData()}, blob.NewMemory(), nil)

	if _, err := w.Enqueue(ctx, Input{}); err == nil {
		t.Fatalf("empty user id accepted")
	}
	if _, err := w.Enqueue(ctx, Input{UserID: "u1", Formats: []Format{"xml"}}); err == nil {
		t.Fatalf("unsupported format accepted")
	}

	queued, err := w.Enqueue(ctx, Input{UserID: "u1", Formats: []Format{FormatJSON, FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(queued.Formats) != 1 {
		t.Fatalf("duplicate formats kept: %+v", queued.Formats)
	}
}

func TestGetUnknownRecord(t *testing.T) {
	w := NewWorker(&fakeSource{}, blob.NewMemory(), nil)
	if _, ok := w.Get("missing"); ok {
		t.Fatalf("unknown record found")
	}
}
