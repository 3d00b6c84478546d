// Package names recovers a candidate's given and family name from a file name
// or from document text.
package names

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Name is a (given, family) pair. The zero value means nothing was found.
type Name struct {
	Given  string `json:"given_name"`
	Family string `json:"family_name"`
}

// IsZero reports whether no name was found
func (n Name) IsZero() bool {
	return n.Given == "" && n.Family == ""
}

var nameToken = regexp.MustCompile(`^[\p{L}' -]+$`)

// words that show up next to each other in résumé file names and headings
var documentWords = map[string]struct{}{
	"cv": {}, "resume": {}, "résumé": {}, "curriculum": {}, "vitae": {}, "vita": {},
	"report": {}, "final": {}, "draft": {}, "copy": {}, "updated": {}, "update": {},
	"new": {}, "old": {}, "document": {}, "doc": {}, "docx": {}, "pdf": {}, "file": {},
	"version": {}, "latest": {}, "application": {}, "cover": {}, "letter": {},
	"profile": {}, "personal": {}, "details": {}, "contact": {}, "page": {},
	"of": {}, "the": {}, "and": {}, "for": {}, "my": {},
}

// separators tried, in order, when splitting a file name
var fileNameSeparators = []rune{'-', '_', ' '}

// IsValid reports whether a token looks like part of a person's name
func IsValid(token string) bool {
	token = strings.TrimSpace(token)
	if utf8.RuneCountInString(token) < 2 {
		return false
	}
	if !nameToken.MatchString(token) || strings.IndexFunc(token, unicode.IsLetter) < 0 {
		return false
	}
	_, isDocumentWord := documentWords[strings.ToLower(token)]
	return !isDocumentWord
}

// FromFileName returns the first adjacent pair of valid tokens in a file name,
// trying each separator in turn.
func FromFileName(fileName string) (Name, bool) {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	for _, sep := range fileNameSeparators {
		parts := strings.FieldsFunc(base, func(r rune) bool {
			return r == sep
		})
		if name, ok := firstPair(parts); ok {
			return name, true
		}
	}
	return Name{}, false
}

// FromText scans whitespace separated tokens for the first valid pair. It
// returns the zero Name when there is none.
func FromText(text string) Name {
	name, _ := firstPair(strings.Fields(text))
	return name
}

func firstPair(tokens []string) (Name, bool) {
	for i := 0; i+1 < len(tokens); i++ {
		given, family := strings.TrimSpace(tokens[i]), strings.TrimSpace(tokens[i+1])
		if IsValid(given) && IsValid(family) {
			return Name{Given: Capitalize(given), Family: Capitalize(family)}, true
		}
	}
	return Name{}, false
}

// Capitalize upper-cases the first letter and lower-cases the rest
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
