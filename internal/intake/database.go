package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/cv-intake/internal/upload"
)

const (
	documentsBucket   = "documents"
	sessionsBucket    = "sessions"
	credentialsBucket = "credentials"

	refreshTokenKey = "refresh_token"
)

// ErrNotFound is returned when a document or session does not exist
var ErrNotFound = errors.New("not found")

// DB defines the persistence operations of the intake service
type DB interface {
	SaveDocument(document *Document) error
	GetDocument(id string) (*Document, error)
	ListDocuments() ([]*Document, error)
	DeleteDocument(id string) error

	SaveSession(session *upload.Session) error
	GetSession(id string) (*upload.Session, error)
	ListSessions() ([]*upload.Session, error)
	DeleteSession(id string) error

	// SaveRefreshToken and LoadRefreshToken back auth.TokenStore
	SaveRefreshToken(ctx context.Context, token string, updatedAt time.Time) error
	LoadRefreshToken(ctx context.Context) (string, time.Time, error)

	Close() error
}

// BoltDB implements DB on a single bbolt file
type BoltDB struct {
	db *bbolt.DB
}

type storedToken struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBoltDB opens the database and creates its buckets
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{documentsBucket, sessionsBucket, credentialsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) SaveDocument(document *Document) error {
	return put(b.db, documentsBucket, document.ID, document)
}

func (b *BoltDB) GetDocument(id string) (*Document, error) {
	var document Document
	if err := get(b.db, documentsBucket, id, &document); err != nil {
		return nil, err
	}
	return &document, nil
}

func (b *BoltDB) ListDocuments() ([]*Document, error) {
	return list[Document](b.db, documentsBucket)
}

func (b *BoltDB) DeleteDocument(id string) error {
	return remove(b.db, documentsBucket, id)
}

func (b *BoltDB) SaveSession(session *upload.Session) error {
	return put(b.db, sessionsBucket, session.ID, session)
}

func (b *BoltDB) GetSession(id string) (*upload.Session, error) {
	var session upload.Session
	if err := get(b.db, sessionsBucket, id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (b *BoltDB) ListSessions() ([]*upload.Session, error) {
	return list[upload.Session](b.db, sessionsBucket)
}

func (b *BoltDB) DeleteSession(id string) error {
	return remove(b.db, sessionsBucket, id)
}

// SaveRefreshToken stores an operator-rotated refresh token
func (b *BoltDB) SaveRefreshToken(_ context.Context, token string, updatedAt time.Time) error {
	return put(b.db, credentialsBucket, refreshTokenKey, storedToken{Token: token, UpdatedAt: updatedAt})
}

// LoadRefreshToken returns an empty token when none has been stored
func (b *BoltDB) LoadRefreshToken(_ context.Context) (string, time.Time, error) {
	var stored storedToken
	err := get(b.db, credentialsBucket, refreshTokenKey, &stored)
	if errors.Is(err, ErrNotFound) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return stored.Token, stored.UpdatedAt, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

func put(db *bbolt.DB, bucket, key string, value any) error {
	return db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func get(db *bbolt.DB, bucket, key string, value any) error {
	return db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
		}
		return json.Unmarshal(data, value)
	})
}

func list[T any](db *bbolt.DB, bucket string) ([]*T, error) {
	items := make([]*T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling %s %s: %w", bucket, k, err)
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func remove(db *bbolt.DB, bucket, key string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}
