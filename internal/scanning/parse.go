package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseContactJSON parses the JSON object a model replied with
func parseContactJSON(text string) (*ContactData, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var data ContactData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.GivenName = strings.TrimSpace(data.GivenName)
	data.FamilyName = strings.TrimSpace(data.FamilyName)
	data.PhoneNumber = strings.TrimSpace(data.PhoneNumber)

	return &data, nil
}
