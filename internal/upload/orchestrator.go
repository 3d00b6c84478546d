// Package upload sends batches of résumés to a remote store: one container
// per batch, one file per item, each shared by link.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zombor/cv-intake/internal/remote"
)

// ContainerPrefix starts the name of every batch container
const ContainerPrefix = "CV_Uploads_"

const containerTimeFormat = "2006-01-02T15:04:05.000Z"

// CredentialProvider returns a fresh access token
type CredentialProvider interface {
	AccessToken(ctx context.Context) (*oauth2.Token, error)
}

// IDGenerator generates session IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Orchestrator runs upload batches. It keeps no state between calls.
type Orchestrator struct {
	credentials CredentialProvider
	connector   remote.Connector
	opts        Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewOrchestrator creates an Orchestrator with UUID session IDs and the system clock
func NewOrchestrator(credentials CredentialProvider, connector remote.Connector, opts Options) *Orchestrator {
	return NewOrchestratorWithDeps(credentials, connector, opts, uuidGenerator{}, systemClock{})
}

// NewOrchestratorWithDeps creates an Orchestrator with custom dependencies for testing
func NewOrchestratorWithDeps(credentials CredentialProvider, connector remote.Connector, opts Options, idGen IDGenerator, timeSrc TimeSource) *Orchestrator {
	return &Orchestrator{
		credentials: credentials,
		connector:   connector,
		opts:        opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// UploadBatch creates a new container and uploads every item into it.
//
// A missing token or container is fatal and returned as is with a Fatal
// result. Failed items do not stop the batch: the result is PartiallyFailed
// and a *BatchError lists their indices.
func (o *Orchestrator) UploadBatch(ctx context.Context, items []Item) (*Result, error) {
	return o.run(ctx, nil, items)
}

// Continue uploads more items into the container of an existing session and
// updates the session.
func (o *Orchestrator) Continue(ctx context.Context, session *Session, items []Item) (*Result, error) {
	if session == nil || session.Container.ID == "" {
		return nil, errors.New("continuing batch: session has no container")
	}
	return o.run(ctx, session, items)
}

// DeleteContainer removes a batch container and everything in it
func (o *Orchestrator) DeleteContainer(ctx context.Context, containerID string) error {
	store, err := o.connect(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if err := o.call(ctx, func(ctx context.Context) error {
		return store.DeleteFolder(ctx, containerID)
	}); err != nil {
		return &ContainerError{Op: "delete", Cause: err}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, session *Session, items []Item) (*Result, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	result := &Result{
		FileLinks: make([]string, len(items)),
		Items:     make([]ItemResult, len(items)),
		Status:    StatusFatal,
	}

	store, err := o.connect(ctx)
	if err != nil {
		slog.Error("Batch failed before upload", "error", err)
		return result, err
	}
	defer closeStore(store)

	if session == nil {
		container, err := o.createContainer(ctx, store)
		if err != nil {
			slog.Error("Failed to create container", "error", err)
			return result, err
		}
		now := o.timeSource.Now()
		session = &Session{
			ID:        o.idGenerator.Generate(),
			CreatedAt: now,
			Container: *container,
		}
	}
	result.Session = session
	result.ContainerLink = session.Container.Link

	slog.Info("Uploading batch", "session", session.ID, "container", session.Container.ID, "items", len(items))
	o.uploadItems(ctx, store, session.Container.ID, items, result)

	offset := len(session.FileLinks)
	failed := result.FailedIndices()
	for i, item := range result.Items {
		result.FileLinks[i] = item.Link
	}
	session.FileLinks = append(session.FileLinks, result.FileLinks...)
	for _, index := range failed {
		session.FailedIndices = append(session.FailedIndices, offset+index)
	}
	session.UpdatedAt = o.timeSource.Now()

	if len(failed) == 0 {
		result.Status = StatusComplete
		session.Status = StatusComplete
		slog.Info("Batch complete", "session", session.ID, "items", len(items))
		return result, nil
	}

	result.Status = StatusPartiallyFailed
	session.Status = StatusPartiallyFailed
	slog.Warn("Batch partially failed", "session", session.ID, "failed", len(failed), "items", len(items))
	return result, &BatchError{
		Message:       fmt.Sprintf("%d of %d files failed to upload", len(failed), len(items)),
		FailedIndices: failed,
	}
}

// connect fetches a fresh token and opens the store with it. Token errors are
// returned unwrapped so callers can match them.
func (o *Orchestrator) connect(ctx context.Context) (remote.Store, error) {
	var token *oauth2.Token
	if err := o.call(ctx, func(ctx context.Context) error {
		var err error
		token, err = o.credentials.AccessToken(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	store, err := o.connector.Connect(ctx, token)
	if err != nil {
		return nil, &ContainerError{Op: "connect", Cause: err}
	}
	return store, nil
}

func closeStore(store remote.Store) {
	if err := store.Close(); err != nil {
		slog.Warn("Failed to close remote store", "error", err)
	}
}

func (o *Orchestrator) createContainer(ctx context.Context, store remote.Store) (*remote.Container, error) {
	name := ContainerPrefix + o.timeSource.Now().UTC().Format(containerTimeFormat)

	var container *remote.Container
	if err := o.call(ctx, func(ctx context.Context) error {
		var err error
		container, err = store.CreateFolder(ctx, name, o.opts.ParentID)
		return err
	}); err != nil {
		return nil, &ContainerError{Op: "create", Cause: err}
	}

	if err := o.call(ctx, func(ctx context.Context) error {
		return store.SetPublic(ctx, container.ID)
	}); err != nil {
		slog.Warn("Failed to share container by link", "container", container.ID, "error", err)
	}

	if o.opts.ShareWith != "" {
		if err := o.call(ctx, func(ctx context.Context) error {
			return store.ShareWith(ctx, container.ID, o.opts.ShareWith)
		}); err != nil {
			slog.Warn("Failed to share container", "container", container.ID, "email", o.opts.ShareWith, "error", err)
		}
	}

	return container, nil
}

func (o *Orchestrator) uploadItems(ctx context.Context, store remote.Store, containerID string, items []Item, result *Result) {
	var g errgroup.Group
	g.SetLimit(max(1, o.opts.Concurrency))

	var limiter *rate.Limiter
	if o.opts.ItemDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(o.opts.ItemDelay), 1)
	}

	for i, item := range items {
		if i > 0 && o.opts.ChunkSize > 0 && o.opts.ChunkPause > 0 && i%o.opts.ChunkSize == 0 {
			_ = g.Wait()
			slog.Info("Pausing between chunks", "done", i, "items", len(items), "pause", o.opts.ChunkPause)
			_ = sleep(ctx, o.opts.ChunkPause)
		}

		var err error
		if limiter != nil {
			err = limiter.Wait(ctx)
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			for j := i; j < len(items); j++ {
				result.Items[j] = ItemResult{
					Index:    j,
					FileName: items[j].FileName,
					Err:      &ItemError{Index: j, FileName: items[j].FileName, Cause: err},
				}
			}
			break
		}

		g.Go(func() error {
			result.Items[i] = o.uploadItem(ctx, store, containerID, i, item)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) uploadItem(ctx context.Context, store remote.Store, containerID string, index int, item Item) ItemResult {
	res := ItemResult{Index: index, FileName: item.FileName}

	data, err := item.payload()
	if err != nil {
		res.Err = &ItemError{Index: index, FileName: item.FileName, Cause: err}
		return res
	}

	uploaded, err := o.uploadWithRetry(ctx, store, remote.File{
		Name:     item.FileName,
		MimeType: item.MimeType,
		ParentID: containerID,
		Data:     data,
	})
	if err != nil {
		slog.Error("Failed to upload file", "index", index, "filename", item.FileName, "error", err)
		res.Err = &ItemError{Index: index, FileName: item.FileName, Cause: err}
		return res
	}

	res.FileID = uploaded.ID
	res.Link = uploaded.Link
	if item.Record != nil {
		item.Record.ShareLink = uploaded.Link
	}

	err = sleep(ctx, o.opts.PermissionDelay)
	if err == nil {
		err = o.call(ctx, func(ctx context.Context) error {
			return store.SetPublic(ctx, uploaded.ID)
		})
	}
	if err != nil {
		slog.Warn("Failed to share file by link", "index", index, "filename", item.FileName, "file", uploaded.ID, "error", err)
		res.PermissionErr = err
	}

	slog.Debug("Uploaded file", "index", index, "filename", item.FileName, "file", uploaded.ID)
	return res
}

func (o *Orchestrator) uploadWithRetry(ctx context.Context, store remote.Store, file remote.File) (*remote.UploadedFile, error) {
	backoff := o.opts.Backoff.backoff()
	attempts := o.opts.Backoff.attempts()

	for attempt := 1; ; attempt++ {
		var uploaded *remote.UploadedFile
		err := o.call(ctx, func(ctx context.Context) error {
			var err error
			uploaded, err = store.Upload(ctx, file)
			return err
		})
		if err == nil {
			return uploaded, nil
		}
		if attempt >= attempts || !remote.IsRateLimited(err) {
			return nil, err
		}

		pause := backoff.Pause()
		slog.Warn("Upload rate limited, retrying", "filename", file.Name, "attempt", attempt, "pause", pause)
		if err := sleep(ctx, pause); err != nil {
			return nil, err
		}
	}
}

// call runs fn with the per-call timeout applied
func (o *Orchestrator) call(ctx context.Context, fn func(context.Context) error) error {
	if o.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.CallTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
