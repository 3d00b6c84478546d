// Package remote talks to the storage service that receives uploaded
// résumés: Google Drive by default, or a Cloud Storage bucket.
package remote

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrInvalidContainer is returned for a container id the store cannot address
var ErrInvalidContainer = errors.New("invalid container id")

// Container groups the files of one upload batch
type Container struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// File is a single upload request
type File struct {
	Name     string
	MimeType string
	ParentID string
	Data     []byte
}

// UploadedFile identifies a file the remote store accepted
type UploadedFile struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// Store is a remote store bound to one access token
type Store interface {
	CreateFolder(ctx context.Context, name, parentID string) (*Container, error)
	Upload(ctx context.Context, file File) (*UploadedFile, error)
	// SetPublic makes a file or folder readable by anyone with the link
	SetPublic(ctx context.Context, id string) error
	// ShareWith gives a user write access to a file or folder
	ShareWith(ctx context.Context, id, email string) error
	DeleteFolder(ctx context.Context, id string) error
	// Close releases the client behind the store
	Close() error
}

// Connector opens a Store with an access token
type Connector interface {
	Connect(ctx context.Context, token *oauth2.Token) (Store, error)
}

// IsRateLimited reports whether err is the remote API asking us to slow down
func IsRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	if apiErr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}
