// Package extract turns raw documents into contact records.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/cv-intake/internal/decode"
	"github.com/zombor/cv-intake/internal/names"
	"github.com/zombor/cv-intake/internal/phone"
	"github.com/zombor/cv-intake/internal/scanning"
)

// ErrUnknownField is returned by ExtractField for a field it cannot re-run
var ErrUnknownField = errors.New("unknown field")

// TextDecoder converts a raw document to text
type TextDecoder interface {
	Decode(doc decode.RawDocument) (string, error)
}

// Extractor recovers names and phone numbers from documents. The optional
// scanner fills fields the heuristics left empty.
type Extractor struct {
	decoder TextDecoder
	scanner scanning.Scanner
}

// New creates an Extractor with the default decoder. scanner may be nil.
func New(scanner scanning.Scanner) *Extractor {
	return NewWithDecoder(decode.New(), scanner)
}

// NewWithDecoder creates an Extractor with a custom decoder
func NewWithDecoder(decoder TextDecoder, scanner scanning.Scanner) *Extractor {
	return &Extractor{decoder: decoder, scanner: scanner}
}

// Extract never fails: decoding errors are logged and produce a record with
// empty fields.
func (e *Extractor) Extract(ctx context.Context, doc decode.RawDocument) Record {
	record := Record{SourceFileName: doc.FileName}

	text, err := e.decoder.Decode(doc)
	if err != nil {
		slog.Warn("Failed to decode document", "filename", doc.FileName, "error", err)
		return record
	}
	if text == "" {
		slog.Info("Document has no text", "filename", doc.FileName)
		return record
	}

	record.RawText = text

	name, ok := names.FromFileName(doc.FileName)
	if !ok {
		name = names.FromText(text)
	}
	record.GivenName = name.Given
	record.FamilyName = name.Family
	record.PhoneNumber = phone.Extract(text)

	e.assist(ctx, &record)

	slog.Info("Extracted document", "filename", doc.FileName, "complete", record.Complete())
	return record
}

// ExtractField re-runs one field against already decoded text
func (e *Extractor) ExtractField(ctx context.Context, field Field, text string) (string, error) {
	var record Record
	switch field {
	case FieldGivenName, FieldFamilyName:
		name := names.FromText(text)
		record.GivenName, record.FamilyName = name.Given, name.Family
	case FieldPhoneNumber:
		record.PhoneNumber = phone.Extract(text)
	default:
		return "", fmt.Errorf("extracting %q: %w", field, ErrUnknownField)
	}

	if fieldValue(record, field) == "" && strings.TrimSpace(text) != "" {
		record.RawText = text
		e.assist(ctx, &record)
	}
	return fieldValue(record, field), nil
}

func fieldValue(r Record, field Field) string {
	switch field {
	case FieldGivenName:
		return r.GivenName
	case FieldFamilyName:
		return r.FamilyName
	default:
		return r.PhoneNumber
	}
}

// assist asks the scanner for missing fields. Its answers go through the same
// validation as the heuristics and failures are ignored.
func (e *Extractor) assist(ctx context.Context, record *Record) {
	if e.scanner == nil || record.Complete() || strings.TrimSpace(record.RawText) == "" {
		return
	}

	data, err := e.scanner.ScanContact(ctx, record.RawText)
	if err != nil {
		slog.Warn("Contact scan failed", "filename", record.SourceFileName, "error", err)
		return
	}

	if record.GivenName == "" && record.FamilyName == "" &&
		names.IsValid(data.GivenName) && names.IsValid(data.FamilyName) {
		record.GivenName = names.Capitalize(data.GivenName)
		record.FamilyName = names.Capitalize(data.FamilyName)
	}
	if record.PhoneNumber == "" {
		if number, ok := phone.Normalize(data.PhoneNumber); ok {
			record.PhoneNumber = number
		}
	}
}
