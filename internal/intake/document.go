package intake

import (
	"time"

	"github.com/zombor/cv-intake/internal/extract"
)

// Filter selects documents by completeness
type Filter string

const (
	FilterAll      Filter = ""
	FilterComplete Filter = "complete"
	// FilterReview selects documents missing at least one field
	FilterReview Filter = "review"
)

// Document is a stored document with its extracted record
type Document struct {
	extract.Record
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"`
	StoredPath  string    `json:"stored_path"`
	SessionID   string    `json:"session_id,omitempty"` // batch the document was uploaded in
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Matches reports whether the document passes the filter
func (d *Document) Matches(filter Filter) bool {
	switch filter {
	case FilterComplete:
		return d.Complete()
	case FilterReview:
		return !d.Complete()
	default:
		return true
	}
}

// DocumentUpdate holds manual corrections. Nil fields are left unchanged.
type DocumentUpdate struct {
	GivenName   *string `json:"given_name" validate:"omitempty,max=100"`
	FamilyName  *string `json:"family_name" validate:"omitempty,max=100"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=32"`
}
