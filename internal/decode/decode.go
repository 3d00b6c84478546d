// Package decode turns résumé documents (PDF, DOCX, plain text, RTF) into raw text.
package decode

import (
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
)

// Format identifies one of the supported document formats
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatText Format = "text"
	FormatRTF  Format = "rtf"
)

// MIME types recognised by Detect
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
	MimeRTF  = "application/rtf"
)

// RawDocument is an unprocessed file as selected by the caller.
// The pipeline only reads it.
type RawDocument struct {
	FileName string
	MimeHint string
	Bytes    []byte
}

// Decoder converts documents to text
type Decoder struct {
	pdfBackends []pdfBackend
}

// New creates a Decoder that reads PDFs with MuPDF first and falls back to the
// pure Go reader
func New() *Decoder {
	return &Decoder{
		pdfBackends: []pdfBackend{fitzBackend{}, plainBackend{}},
	}
}

// Detect works out the format of a document from its MIME hint and extension.
// RTF is checked by extension as well because producers report its MIME type
// inconsistently.
func Detect(doc RawDocument) (Format, error) {
	mimeType := normalizeMime(doc.MimeHint)
	ext := strings.ToLower(filepath.Ext(doc.FileName))

	if mimeType == MimeRTF || mimeType == "text/rtf" || ext == ".rtf" {
		return FormatRTF, nil
	}

	switch mimeType {
	case MimePDF:
		return FormatPDF, nil
	case MimeDOCX:
		return FormatDOCX, nil
	case MimeText:
		return FormatText, nil
	case "", "application/octet-stream":
		switch ext {
		case ".pdf":
			return FormatPDF, nil
		case ".docx":
			return FormatDOCX, nil
		case ".txt", ".text":
			return FormatText, nil
		}
	}

	return "", unsupported(doc.FileName, fmt.Errorf("mime type %q, extension %q", doc.MimeHint, ext))
}

// MimeFromExtension guesses a MIME type from a file name when the client did
// not send one
func MimeFromExtension(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	case ".txt", ".text":
		return MimeText
	case ".rtf":
		return MimeRTF
	default:
		return "application/octet-stream"
	}
}

// Decode returns the raw text of a document. An empty but valid document
// yields an empty string and no error.
func (d *Decoder) Decode(doc RawDocument) (string, error) {
	format, err := Detect(doc)
	if err != nil {
		return "", err
	}

	slog.Debug("Decoding document", "filename", doc.FileName, "format", format, "size", len(doc.Bytes))

	switch format {
	case FormatPDF:
		return d.decodePDF(doc)
	case FormatDOCX:
		return decodeDOCX(doc)
	case FormatRTF:
		return decodeRTF(doc.Bytes), nil
	default:
		return strings.ToValidUTF8(string(doc.Bytes), ""), nil
	}
}

func normalizeMime(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(hint)
	if err != nil {
		return hint
	}
	return mediaType
}
