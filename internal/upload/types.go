package upload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/zombor/cv-intake/internal/extract"
	"github.com/zombor/cv-intake/internal/remote"
)

// Status is the outcome of a batch
type Status string

const (
	StatusComplete        Status = "complete"
	StatusPartiallyFailed Status = "partially_failed"
	StatusFatal           Status = "fatal"
)

// BackoffPolicy controls retries of rate-limited uploads. MaxAttempts of one
// or less disables retries.
type BackoffPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

func (p BackoffPolicy) backoff() *gax.Backoff {
	return &gax.Backoff{Initial: p.Initial, Max: p.Max, Multiplier: p.Multiplier}
}

func (p BackoffPolicy) attempts() int {
	return max(1, p.MaxAttempts)
}

// Options tune how a batch is uploaded. The zero value uploads sequentially
// with no pacing, no timeouts and no retries.
type Options struct {
	// ParentID is the remote folder new containers are created in
	ParentID string
	// Concurrency bounds parallel item uploads; 1 or less is sequential
	Concurrency int
	// ItemDelay is the minimum gap between item starts
	ItemDelay time.Duration
	// ChunkSize items are processed before pausing for ChunkPause
	ChunkSize  int
	ChunkPause time.Duration
	// CallTimeout bounds every remote call
	CallTimeout time.Duration
	// PermissionDelay is waited between an upload and its permission call
	PermissionDelay time.Duration
	Backoff         BackoffPolicy
	// ShareWith, when set, gets writer access to each new container
	ShareWith string
}

// Item pairs a document payload with its extracted record. Data is used when
// set, otherwise Encoded is base64-decoded.
type Item struct {
	FileName string
	MimeType string
	Data     []byte
	Encoded  string
	Record   *extract.Record
}

func (it Item) payload() ([]byte, error) {
	if it.Data != nil {
		return it.Data, nil
	}
	if it.Encoded == "" {
		return nil, errors.New("item has no content")
	}
	return DecodeContent(it.Encoded)
}

// DecodeContent decodes a base64 payload. A data URL prefix ending in
// ";base64," is skipped.
func DecodeContent(encoded string) ([]byte, error) {
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
		encoded = encoded[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 content: %w", err)
	}
	return data, nil
}

// ItemResult is the outcome for one item, at its input index
type ItemResult struct {
	Index    int
	FileName string
	FileID   string
	Link     string
	// Err is set when the upload failed
	Err error
	// PermissionErr is set when the file uploaded but could not be shared
	PermissionErr error
}

// Failed reports whether the upload itself failed
func (r ItemResult) Failed() bool {
	return r.Err != nil
}

// Session is one remote container and everything uploaded into it. Callers
// own it and pass it back to Continue to add more files.
type Session struct {
	ID            string           `json:"id"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Container     remote.Container `json:"container"`
	FileLinks     []string         `json:"file_links"`
	FailedIndices []int            `json:"failed_indices"`
	Status        Status           `json:"status"`
}

// Result describes one UploadBatch or Continue call
type Result struct {
	Session       *Session
	FileLinks     []string
	ContainerLink string
	Status        Status
	Items         []ItemResult
}

// FailedIndices lists the items whose upload failed, in input order
func (r *Result) FailedIndices() []int {
	var failed []int
	for _, item := range r.Items {
		if item.Failed() {
			failed = append(failed, item.Index)
		}
	}
	return failed
}
