package scanning

import "strings"

// models only need the top of a résumé to find contact details
const maxPromptText = 4000

const contactScanPrompt = `You are reading the text of a candidate's CV or résumé. Extract the following information:

1. given_name: The candidate's first name only.
2. family_name: The candidate's surname only.
3. phone_number: The candidate's UK phone number exactly as written in the text.

Use an empty string for any field you cannot find. Do not guess and do not invent values.

Respond ONLY with a JSON object in this exact format (no markdown, no code blocks):
{"given_name": "Jane", "family_name": "Doe", "phone_number": "07123 456 789"}

CV text:
`

func buildPrompt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxPromptText {
		text = strings.ToValidUTF8(text[:maxPromptText], "")
	}
	return contactScanPrompt + text
}
