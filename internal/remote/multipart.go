package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const multipartBoundary = "-------314159265358979323846"

type fileMetadata struct {
	Name    string   `json:"name"`
	Parents []string `json:"parents,omitempty"`
}

// encodeMultipart builds a multipart/related body with a JSON metadata part
// followed by the raw file bytes, as the Drive upload endpoint expects
func encodeMultipart(meta fileMetadata, mimeType string, data []byte) (*bytes.Buffer, string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling metadata: %w", err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	delimiter := "\r\n--" + multipartBoundary + "\r\n"
	closeDelimiter := "\r\n--" + multipartBoundary + "--"

	body := new(bytes.Buffer)
	body.Grow(len(metaJSON) + len(data) + 256)
	body.WriteString(delimiter)
	body.WriteString("Content-Type: application/json; charset=UTF-8\r\n\r\n")
	body.Write(metaJSON)
	body.WriteString(delimiter)
	body.WriteString("Content-Type: " + mimeType + "\r\n\r\n")
	body.Write(data)
	body.WriteString(closeDelimiter)

	return body, `multipart/related; boundary="` + multipartBoundary + `"`, nil
}
