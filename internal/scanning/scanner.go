package scanning

import "context"

// ContactData contains the contact fields a model read from résumé text
type ContactData struct {
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	PhoneNumber string `json:"phone_number"`
}

// Scanner defines the interface for model-assisted contact extraction
type Scanner interface {
	// ScanContact reads decoded résumé text and extracts contact fields
	ScanContact(ctx context.Context, text string) (*ContactData, error)
	// Close closes the scanner and releases resources
	Close() error
}
