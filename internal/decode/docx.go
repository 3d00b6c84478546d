package decode

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// decodeDOCX pulls paragraph text out of word/document.xml, one line per
// paragraph. Formatting is discarded.
func decodeDOCX(doc RawDocument) (string, error) {
	if len(doc.Bytes) == 0 {
		return "", nil
	}

	archive, err := zip.NewReader(bytes.NewReader(doc.Bytes), int64(len(doc.Bytes)))
	if err != nil {
		return "", corrupt(doc.FileName, fmt.Errorf("opening archive: %w", err))
	}

	var body *zip.File
	for _, f := range archive.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", corrupt(doc.FileName, errors.New("no "+docxBody+" in archive"))
	}

	rc, err := body.Open()
	if err != nil {
		return "", corrupt(doc.FileName, fmt.Errorf("opening %s: %w", docxBody, err))
	}
	defer rc.Close()

	text, err := paragraphText(rc)
	if err != nil {
		return "", corrupt(doc.FileName, err)
	}
	return text, nil
}

func paragraphText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n")), nil
}
