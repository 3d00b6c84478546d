package decode

import (
	"regexp"
	"strings"
)

// rtfRule is one step of the RTF clean-up. Rules run in slice order.
type rtfRule struct {
	name  string
	apply func(string) string
}

// replaceRule replaces every match of the alternatives with repl. An escaped
// backslash is matched first and left alone so it never starts a control word.
func replaceRule(name, repl string, alternatives ...string) rtfRule {
	re := regexp.MustCompile(`\\\\|` + strings.Join(alternatives, "|"))
	return rtfRule{name: name, apply: func(s string) string {
		return re.ReplaceAllStringFunc(s, func(m string) string {
			if m == `\\` {
				return m
			}
			return repl
		})
	}}
}

var rtfRules = []rtfRule{
	{name: "destinations", apply: stripDestinations},
	replaceRule("breaks", " ", `\\(?:par|line|tab)\b ?`),
	// one pass, so removing an escape never joins a control word to the text after it
	replaceRule("escapes", "",
		`\\'[0-9a-fA-F]{2}`,
		`\\u-?[0-9]+ ?\??`,
		`\\[a-zA-Z]+-?[0-9]* ?`,
		`\\[^\\{}]`,
	),
	{name: "braces", apply: stripBraces},
	{name: "whitespace", apply: func(s string) string { return strings.Join(strings.Fields(s), " ") }},
}

// destinations whose content is never document text
var rtfDestinations = []string{
	"fonttbl", "colortbl", "stylesheet", "info", "pict", "listtable",
	"listoverridetable", "rsidtbl", "generator", "themedata", "colorschememapping",
	"latentstyles", "datastore", "xmlnstbl", "filetbl",
}

func decodeRTF(data []byte) string {
	text := string(data)
	for _, rule := range rtfRules {
		text = rule.apply(text)
	}
	return text
}

// stripDestinations removes balanced groups that open with an ignorable
// destination ({\* ...}) or a known non-text destination word
func stripDestinations(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] == '\\' && i+1 < len(s) {
			b.WriteString(s[i : i+2])
			i += 2
			continue
		}
		if s[i] == '{' && isDestination(s[i+1:]) {
			i = skipGroup(s, i)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isDestination(rest string) bool {
	rest = strings.TrimLeft(rest, " \r\n")
	if strings.HasPrefix(rest, `\*`) {
		return true
	}
	for _, word := range rtfDestinations {
		if strings.HasPrefix(rest, `\`+word) {
			next := len(word) + 1
			if next >= len(rest) || !isASCIILetter(rest[next]) {
				return true
			}
		}
	}
	return false
}

// skipGroup returns the index just past the group that opens at start
func skipGroup(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

// stripBraces drops group delimiters and unescapes \\, \{ and \}
func stripBraces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '{', '}':
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
