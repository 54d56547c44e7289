// Package archive implements asynchronous account data exports: a worker
// snapshots everything the store holds for one user and writes the result to
// blob storage as downloadable artifacts.
package archive

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"quantacore/internal/blob"
	"quantacore/internal/core"
)

// Status describes the lifecycle stage of an archive request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Format identifies an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Artifact captures a stored archive artifact.
type Artifact struct {
	ID          string    `json:"id"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Key         string    `json:"key"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an archive request and resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	cp := r
	cp.Formats = append([]Format(nil), r.Formats...)
	cp.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// Input represents an enqueue request for the worker.
type Input struct {
	UserID      string
	Formats     []Format
	RequestedBy string
}

// SnapshotSource supplies the account data an archive serializes.
type SnapshotSource interface {
	AccountSnapshot(ctx context.Context, userID string) (core.AccountData, error)
}

// AuditLogger records archive audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for archive requests.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	UserID     string         `json:"user_id"`
	Status     Status         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Worker executes account archives asynchronously.
type Worker struct {
	source SnapshotSource
	store  blob.Store
	audit  AuditLogger

	queue chan archiveTask
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type archiveTask struct {
	id    string
	input Input
}

type renderedArtifact struct {
	Artifact Artifact
	Payload  []byte
}

// NewWorker constructs an archive worker.
func NewWorker(source SnapshotSource, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan archiveTask, 16),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing archive requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// Enqueue schedules an archive job and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.source == nil {
		return Record{}, fmt.Errorf("archive source not configured")
	}
	if input.UserID == "" {
		return Record{}, fmt.Errorf("user id required")
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if format != FormatJSON && format != FormatCSV {
			return Record{}, fmt.Errorf("unsupported archive format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		UserID:      input.UserID,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(ctx, AuditEntry{
			ID:         newID(),
			Action:     "account_archive",
			Actor:      input.RequestedBy,
			UserID:     input.UserID,
			Status:     StatusQueued,
			OccurredAt: now,
		})
	}

	select {
	case w.queue <- archiveTask{id: id, input: input}:
	default:
		return Record{}, fmt.Errorf("archive queue full")
	}

	return queued, nil
}

// Get returns a snapshot of the archive record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task archiveTask) {
	w.updateStatus(task.id, StatusRunning, "")

	data, err := w.source.AccountSnapshot(w.ctx, task.input.UserID)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("snapshot account: %v", err))
		return
	}

	w.mu.RLock()
	var formats []Format
	if record, ok := w.jobs[task.id]; ok {
		formats = append(formats, record.Formats...)
	}
	w.mu.RUnlock()

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		rendered, err := materialize(format, data)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		key := fmt.Sprintf("archives/%s/%s/account.%s", task.input.UserID, task.id, format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(rendered.Payload), blob.PutOptions{
			ContentType: rendered.Artifact.ContentType,
			Metadata:    map[string]string{"user_id": task.input.UserID, "archive_id": task.id},
		})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		stored := rendered.Artifact
		stored.Key = info.Key
		stored.URL = info.URL
		if info.Size > 0 {
			stored.SizeBytes = info.Size
		}
		artifacts = append(artifacts, stored)
	}

	w.complete(task.id, artifacts)
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, userID string
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
		actor, userID = record.RequestedBy, record.UserID
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     "account_archive",
			Actor:      actor,
			UserID:     userID,
			Status:     status,
			OccurredAt: now,
		})
	}
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, userID string
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor, userID = record.RequestedBy, record.UserID
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     "account_archive",
			Actor:      actor,
			UserID:     userID,
			Status:     StatusSucceeded,
			Metadata:   map[string]any{"artifacts": len(artifacts)},
			OccurredAt: now,
		})
	}
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, userID string
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor, userID = record.RequestedBy, record.UserID
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     "account_archive",
			Actor:      actor,
			UserID:     userID,
			Status:     StatusFailed,
			Metadata:   map[string]any{"error": reason},
			OccurredAt: now,
		})
	}
}

func materialize(format Format, data core.AccountData) (renderedArtifact, error) {
	now := time.Now().UTC()
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return renderedArtifact{
			Artifact: Artifact{ID: newID(), Format: FormatJSON, ContentType: "application/json", SizeBytes: int64(len(payload)), CreatedAt: now},
			Payload:  payload,
		}, nil
	case FormatCSV:
		payload, err := renderCSV(data)
		if err != nil {
			return renderedArtifact{}, err
		}
		return renderedArtifact{
			Artifact: Artifact{ID: newID(), Format: FormatCSV, ContentType: "text/csv", SizeBytes: int64(len(payload)), CreatedAt: now},
			Payload:  payload,
		}, nil
	default:
		return renderedArtifact{}, fmt.Errorf("unsupported archive format %s", format)
	}
}

// renderCSV flattens the account data into one table: a section column plus
// the fields shared across entity kinds.
func renderCSV(data core.AccountData) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"section", "id", "created_at", "label", "likes"}); err != nil {
		return nil, err
	}
	rows := [][]string{
		{"user", data.User.ID, data.User.CreatedAt.Format(time.RFC3339), data.User.Handle, ""},
	}
	for _, avatar := range data.Avatars {
		rows = append(rows, []string{"avatar", avatar.ID, avatar.CreatedAt.Format(time.RFC3339), avatar.Name, strconv.Itoa(avatar.Stats.Likes)})
	}
	for _, post := range data.Posts {
		rows = append(rows, []string{"post", post.ID, post.CreatedAt.Format(time.RFC3339), post.Caption, strconv.Itoa(post.Counters.Likes)})
	}
	for _, comment := range data.Comments {
		rows = append(rows, []string{"comment", comment.ID, comment.CreatedAt.Format(time.RFC3339), comment.Text, strconv.Itoa(comment.LikesCount)})
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
