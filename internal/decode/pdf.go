package decode

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// pdfBackend returns the text of every page, in page order
type pdfBackend interface {
	Name() string
	Pages(data []byte) ([]string, error)
}

func (d *Decoder) decodePDF(doc RawDocument) (string, error) {
	var errs []error
	for _, backend := range d.pdfBackends {
		pages, err := backend.Pages(doc.Bytes)
		if err != nil {
			slog.Warn("PDF backend failed", "backend", backend.Name(), "filename", doc.FileName, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			continue
		}
		text := strings.Join(pages, "\n")
		if strings.TrimSpace(text) == "" {
			return "", nil
		}
		return text, nil
	}
	return "", corrupt(doc.FileName, errors.Join(errs...))
}

// joinRuns joins the text runs of one page with single spaces
func joinRuns(runs []string) string {
	kept := make([]string, 0, len(runs))
	for _, run := range runs {
		run = strings.TrimSpace(run)
		if run != "" {
			kept = append(kept, run)
		}
	}
	return strings.Join(kept, " ")
}

// fitzBackend reads PDFs through MuPDF
type fitzBackend struct{}

func (fitzBackend) Name() string { return "mupdf" }

func (fitzBackend) Pages(data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		text, err := doc.Text(n)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", n+1, err)
		}
		pages = append(pages, joinRuns(strings.Split(text, "\n")))
	}
	return pages, nil
}

// plainBackend is the pure Go reader, used when MuPDF rejects a file
type plainBackend struct{}

func (plainBackend) Name() string { return "ledongthuc" }

func (plainBackend) Pages(data []byte) (pages []string, err error) {
	// the reader panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("reading PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}

	pages = make([]string, 0, reader.NumPage())
	for n := 1; n <= reader.NumPage(); n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", n, err)
		}
		pages = append(pages, joinRuns(strings.Split(text, "\n")))
	}
	return pages, nil
}
