// Package intake stores incoming résumés, routes them by completeness and
// uploads them in batches.
package intake

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/cv-intake/internal/auth"
	"github.com/zombor/cv-intake/internal/decode"
	"github.com/zombor/cv-intake/internal/export"
	"github.com/zombor/cv-intake/internal/extract"
	"github.com/zombor/cv-intake/internal/phone"
	"github.com/zombor/cv-intake/internal/upload"
)

// ErrInvalidPhone is returned when a manual phone edit cannot be normalized
var ErrInvalidPhone = errors.New("invalid phone number")

// IDGenerator generates unique IDs for documents
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Extractor recovers contact fields from documents
type Extractor interface {
	Extract(ctx context.Context, doc decode.RawDocument) extract.Record
	ExtractField(ctx context.Context, field extract.Field, text string) (string, error)
}

// Uploader sends batches to the remote store
type Uploader interface {
	UploadBatch(ctx context.Context, items []upload.Item) (*upload.Result, error)
	Continue(ctx context.Context, session *upload.Session, items []upload.Item) (*upload.Result, error)
	DeleteContainer(ctx context.Context, containerID string) error
}

// CredentialManager rotates and reports on the refresh token
type CredentialManager interface {
	RotateRefreshToken(ctx context.Context, token string, now time.Time) error
	Status(ctx context.Context, now time.Time) (auth.Status, error)
}

// Service handles document intake
type Service struct {
	db          DB
	storage     Storage
	extractor   Extractor
	uploader    Uploader
	credentials CredentialManager
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with UUID ids and the system clock
func NewService(db DB, storage Storage, extractor Extractor, uploader Uploader, credentials CredentialManager) *Service {
	return NewServiceWithDeps(db, storage, extractor, uploader, credentials, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, extractor Extractor, uploader Uploader, credentials CredentialManager, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		uploader:    uploader,
		credentials: credentials,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	spaceRuns       = regexp.MustCompile(`\s+`)
)

// sanitizeFilename makes a spool-safe file name, keeping letters so names in
// the file name stay readable
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFileChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaceRuns.ReplaceAllString(base, " "))

	if r := []rune(base); len(r) > 50 {
		base = strings.TrimSpace(string(r[:50]))
	}
	if base == "" {
		base = "document"
	}
	if ext = unsafeFileChars.ReplaceAllString(strings.TrimPrefix(ext, "."), ""); ext != "" {
		return base + "." + ext
	}
	return base
}

// ProcessDocument spools a document, extracts its record and saves it
func (s *Service) ProcessDocument(ctx context.Context, filename string, data []byte, contentType string) (*Document, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := decode.MimeFromExtension(filename); guessed != "" {
			contentType = guessed
		}
	}

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	record := s.extractor.Extract(ctx, decode.RawDocument{
		FileName: filename,
		MimeHint: contentType,
		Bytes:    data,
	})

	document := &Document{
		Record:      record,
		ID:          id,
		ContentType: contentType,
		StoredPath:  savedPath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveDocument(document); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving document to database: %w", err)
	}

	slog.Info("Stored document", "id", id, "filename", filename, "complete", record.Complete())
	return document, nil
}

// GetDocument retrieves a document by ID
func (s *Service) GetDocument(id string) (*Document, error) {
	document, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return document, nil
}

// ListDocuments returns the documents passing filter, oldest first
func (s *Service) ListDocuments(filter Filter) ([]*Document, error) {
	documents, err := s.db.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	documents = slices.DeleteFunc(documents, func(d *Document) bool { return !d.Matches(filter) })
	slices.SortFunc(documents, func(a, b *Document) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return documents, nil
}

// GetDocumentFile returns the original bytes and content type of a document
func (s *Service) GetDocumentFile(id string) ([]byte, string, error) {
	document, err := s.db.GetDocument(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting document: %w", err)
	}

	data, err := s.storage.Get(document.StoredPath)
	if err != nil {
		return nil, "", fmt.Errorf("getting document file: %w", err)
	}
	return data, document.ContentType, nil
}

// UpdateDocument applies manual review corrections as typed. Phone numbers must
// normalize; an empty value clears the field.
func (s *Service) UpdateDocument(id string, update DocumentUpdate) (*Document, error) {
	document, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	if update.GivenName != nil {
		document.GivenName = strings.TrimSpace(*update.GivenName)
	}
	if update.FamilyName != nil {
		document.FamilyName = strings.TrimSpace(*update.FamilyName)
	}
	if update.PhoneNumber != nil {
		number := strings.TrimSpace(*update.PhoneNumber)
		if number != "" {
			normalized, ok := phone.Normalize(number)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPhone, number)
			}
			number = normalized
		}
		document.PhoneNumber = number
	}
	document.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveDocument(document); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	return document, nil
}

// ReextractField runs extraction for one field again on the stored text and
// keeps the result only when something was found
func (s *Service) ReextractField(ctx context.Context, id string, field extract.Field) (*Document, error) {
	document, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	value, err := s.extractor.ExtractField(ctx, field, document.RawText)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return document, nil
	}

	switch field {
	case extract.FieldGivenName:
		document.GivenName = value
	case extract.FieldFamilyName:
		document.FamilyName = value
	case extract.FieldPhoneNumber:
		document.PhoneNumber = value
	}
	document.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveDocument(document); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	return document, nil
}

// DeleteDocument removes a document and its file
func (s *Service) DeleteDocument(id string) error {
	document, err := s.db.GetDocument(id)
	if err != nil {
		return fmt.Errorf("getting document for deletion: %w", err)
	}

	if err := s.storage.Delete(document.StoredPath); err != nil {
		slog.Warn("Failed to delete file", "filename", document.StoredPath, "error", err)
	}

	if err := s.db.DeleteDocument(id); err != nil {
		return fmt.Errorf("deleting document from database: %w", err)
	}
	return nil
}

// UploadStored uploads stored documents as one batch. With a session ID the
// files go into that session's container, otherwise a new one is created.
// A partially failed batch returns both the result and a *upload.BatchError.
func (s *Service) UploadStored(ctx context.Context, ids []string, sessionID string) (*upload.Result, error) {
	if len(ids) == 0 {
		return nil, upload.ErrNoItems
	}

	var session *upload.Session
	if sessionID != "" {
		var err error
		session, err = s.db.GetSession(sessionID)
		if err != nil {
			return nil, fmt.Errorf("getting session: %w", err)
		}
	}

	documents := make([]*Document, len(ids))
	items := make([]upload.Item, len(ids))
	for i, id := range ids {
		document, err := s.db.GetDocument(id)
		if err != nil {
			return nil, fmt.Errorf("getting document %s: %w", id, err)
		}
		data, err := s.storage.Get(document.StoredPath)
		if err != nil {
			return nil, fmt.Errorf("getting document file %s: %w", id, err)
		}
		documents[i] = document
		items[i] = upload.Item{
			FileName: document.SourceFileName,
			MimeType: document.ContentType,
			Data:     data,
			Record:   &document.Record,
		}
	}

	result, err := s.runBatch(ctx, session, items)
	if result == nil || result.Session == nil {
		return result, err
	}

	now := s.timeSource.Now()
	for i, item := range result.Items {
		if item.Failed() {
			continue
		}
		documents[i].SessionID = result.Session.ID
		documents[i].UpdatedAt = now
		if saveErr := s.db.SaveDocument(documents[i]); saveErr != nil {
			slog.Error("Failed to save uploaded document", "id", documents[i].ID, "error", saveErr)
		}
	}
	return result, err
}

// UploadFile is a base64 encoded document sent for immediate upload
type UploadFile struct {
	FileName    string `json:"file_name" validate:"required"`
	FileContent string `json:"file_content" validate:"required"`
	MimeType    string `json:"mime_type"`
}

// UploadFiles extracts and uploads documents in one call without
// spooling them. Records come back in input order with their share links.
func (s *Service) UploadFiles(ctx context.Context, files []UploadFile) (*upload.Result, []extract.Record, error) {
	if len(files) == 0 {
		return nil, nil, upload.ErrNoItems
	}

	records := make([]extract.Record, len(files))
	items := make([]upload.Item, len(files))

	var g errgroup.Group
	for i, file := range files {
		items[i] = upload.Item{FileName: file.FileName, MimeType: file.MimeType, Encoded: file.FileContent, Record: &records[i]}
		g.Go(func() error {
			data, err := upload.DecodeContent(file.FileContent)
			if err != nil {
				// left for the orchestrator to report as a failed item
				records[i] = extract.Record{SourceFileName: file.FileName}
				return nil
			}
			items[i].Data = data
			records[i] = s.extractor.Extract(ctx, decode.RawDocument{FileName: file.FileName, MimeHint: file.MimeType, Bytes: data})
			return nil
		})
	}
	_ = g.Wait()

	result, err := s.runBatch(ctx, nil, items)
	return result, records, err
}

func (s *Service) runBatch(ctx context.Context, session *upload.Session, items []upload.Item) (*upload.Result, error) {
	var (
		result *upload.Result
		err    error
	)
	if session != nil {
		result, err = s.uploader.Continue(ctx, session, items)
	} else {
		result, err = s.uploader.UploadBatch(ctx, items)
	}

	if result != nil && result.Session != nil {
		if saveErr := s.db.SaveSession(result.Session); saveErr != nil {
			slog.Error("Failed to save session", "session", result.Session.ID, "error", saveErr)
		}
	}
	return result, err
}

// GetSession retrieves a batch session by ID
func (s *Service) GetSession(id string) (*upload.Session, error) {
	session, err := s.db.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return session, nil
}

// ListSessions returns all batch sessions, newest first
func (s *Service) ListSessions() ([]*upload.Session, error) {
	sessions, err := s.db.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	slices.SortFunc(sessions, func(a, b *upload.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sessions, nil
}

// DeleteContainer removes a remote container and forgets the sessions that
// used it
func (s *Service) DeleteContainer(ctx context.Context, containerID string) error {
	if err := s.uploader.DeleteContainer(ctx, containerID); err != nil {
		return err
	}

	sessions, err := s.db.ListSessions()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	for _, session := range sessions {
		if session.Container.ID != containerID {
			continue
		}
		if err := s.db.DeleteSession(session.ID); err != nil {
			return fmt.Errorf("deleting session %s: %w", session.ID, err)
		}
	}
	return nil
}

// RotateRefreshToken replaces the stored refresh token
func (s *Service) RotateRefreshToken(ctx context.Context, token string) error {
	return s.credentials.RotateRefreshToken(ctx, token, s.timeSource.Now())
}

// CredentialStatus reports on the active refresh token
func (s *Service) CredentialStatus(ctx context.Context) (auth.Status, error) {
	return s.credentials.Status(ctx, s.timeSource.Now())
}

// ExportXLSX writes the filtered documents to a spreadsheet
func (s *Service) ExportXLSX(filter Filter) ([]byte, error) {
	documents, err := s.ListDocuments(filter)
	if err != nil {
		return nil, err
	}

	records := make([]extract.Record, len(documents))
	for i, document := range documents {
		records[i] = document.Record
	}

	data, err := export.RecordsXLSX(records)
	if err != nil {
		return nil, fmt.Errorf("exporting documents: %w", err)
	}
	return data, nil
}
