package phone

import "regexp"

// Family groups pattern rules by how specific they are
type Family string

const (
	FamilyMobile        Family = "mobile"
	FamilyInternational Family = "international"
	FamilyPunctuated    Family = "punctuated"
	FamilyLandline      Family = "landline"
	FamilyCatchAll      Family = "catch-all"
)

// PatternRule is one entry of the ordered recognition table
type PatternRule struct {
	Name    string
	Family  Family
	Pattern *regexp.Regexp
}

func rule(name string, family Family, pattern string) PatternRule {
	return PatternRule{Name: name, Family: family, Pattern: regexp.MustCompile(pattern)}
}

// separators stay on one line so a match never spans two lines of a document
const sep = `[ \t.-]?`

// rules run from the most specific formats to the loosest windows
var rules = []PatternRule{
	rule("mobile-e164", FamilyMobile, `\+447\d{9}\b`),
	rule("mobile-e164-trunk", FamilyMobile, `\+44\(0\)7\d{9}\b`),
	rule("mobile-0044", FamilyMobile, `\b00447\d{9}\b`),
	rule("mobile-national", FamilyMobile, `\b07\d{9}\b`),

	rule("intl-mobile-4-6", FamilyInternational, `\+44[ \t]?7\d{3}`+sep+`\d{6}\b`),
	rule("intl-mobile-4-3-3", FamilyInternational, `\+44[ \t]?7\d{3}`+sep+`\d{3}`+sep+`\d{3}\b`),
	rule("intl-mobile-3-4-4", FamilyInternational, `\+44[ \t]?7\d{2}`+sep+`\d{3}`+sep+`\d{4}\b`),
	rule("intl-mobile-trunk-4-6", FamilyInternational, `\+44[ \t]?\(0\)[ \t]?7\d{3}`+sep+`\d{6}\b`),
	rule("intl-mobile-trunk-4-3-3", FamilyInternational, `\+44[ \t]?\(0\)[ \t]?7\d{3}`+sep+`\d{3}`+sep+`\d{3}\b`),
	rule("intl-mobile-0044-4-6", FamilyInternational, `\b0044[ \t]?7\d{3}`+sep+`\d{6}\b`),
	rule("intl-mobile-0044-4-3-3", FamilyInternational, `\b0044[ \t]?7\d{3}`+sep+`\d{3}`+sep+`\d{3}\b`),
	rule("intl-mobile-paren", FamilyInternational, `\(\+44\)[ \t]?7\d{3}`+sep+`\d{3}`+sep+`\d{3}\b`),

	rule("mobile-5-3-3", FamilyPunctuated, `\b07\d{3}`+sep+`\d{3}`+sep+`\d{3}\b`),
	rule("mobile-5-6", FamilyPunctuated, `\b07\d{3}`+sep+`\d{6}\b`),
	rule("mobile-paren-5-3-3", FamilyPunctuated, `\(07\d{3}\)[ \t]?\d{3}`+sep+`\d{3}\b`),
	rule("mobile-paren-5-6", FamilyPunctuated, `\(07\d{3}\)[ \t]?\d{6}\b`),
	rule("mobile-4-3-4", FamilyPunctuated, `\b07\d{2}`+sep+`\d{3}`+sep+`\d{4}\b`),
	rule("mobile-4-4-3", FamilyPunctuated, `\b07\d{2}`+sep+`\d{4}`+sep+`\d{3}\b`),
	rule("mobile-3-4-4", FamilyPunctuated, `\b07\d`+sep+`\d{4}`+sep+`\d{4}\b`),
	rule("mobile-5-2-2-2", FamilyPunctuated, `\b07\d{3}`+sep+`\d{2}`+sep+`\d{2}`+sep+`\d{2}\b`),

	rule("intl-landline-trunk", FamilyInternational, `\+44[ \t]?\(0\)[ \t]?[1-9]\d{1,4}`+sep+`\d{3,4}`+sep+`\d{3,4}\b`),
	rule("intl-landline", FamilyInternational, `\+44[ \t]?[1-9]\d{1,4}`+sep+`\d{3,4}`+sep+`\d{3,4}\b`),
	rule("intl-landline-compact", FamilyInternational, `\+44[ \t]?[1-9]\d{9}\b`),
	rule("intl-landline-0044", FamilyInternational, `\b0044[ \t]?[1-9]\d{1,4}`+sep+`\d{3,4}`+sep+`\d{3,4}\b`),

	rule("london", FamilyLandline, `\b020`+sep+`\d{4}`+sep+`\d{4}\b`),
	rule("london-paren", FamilyLandline, `\(020\)[ \t]?\d{4}`+sep+`\d{4}\b`),
	rule("area-3-4-4", FamilyLandline, `\b02\d`+sep+`\d{4}`+sep+`\d{4}\b`),
	rule("area-5-6", FamilyLandline, `\b01\d{3}`+sep+`\d{6}\b`),
	rule("area-5-3-3", FamilyLandline, `\b01\d{3}`+sep+`\d{3}`+sep+`\d{3}\b`),
	rule("area-4-3-4", FamilyLandline, `\b01\d{2}`+sep+`\d{3}`+sep+`\d{4}\b`),
	rule("area-paren-5-6", FamilyLandline, `\(01\d{3}\)[ \t]?\d{6}\b`),
	rule("area-paren-4-3-4", FamilyLandline, `\(01\d{2}\)[ \t]?\d{3}`+sep+`\d{4}\b`),
	rule("area-paren", FamilyLandline, `\(0[1-9]\d{2,3}\)[ \t]?\d{3}`+sep+`\d{3,4}\b`),
	rule("non-geographic", FamilyLandline, `\b03\d{2}`+sep+`\d{3}`+sep+`\d{4}\b`),
	rule("freephone", FamilyLandline, `\b0800`+sep+`\d{3}`+sep+`\d{3,4}\b`),
	rule("special-rate", FamilyLandline, `\b08\d{2}`+sep+`\d{3}`+sep+`\d{4}\b`),
	rule("area-generic", FamilyLandline, `\b0[1-9]\d{2,3}`+sep+`\d{3}`+sep+`\d{4}\b`),
	rule("national-compact", FamilyLandline, `\b0[1-9]\d{9}\b`),

	rule("prefixed-window", FamilyCatchAll, `(?:\+44|0044|0)[ \t]?\(?\d{2,5}\)?`+sep+`\d{2,5}`+sep+`\d{2,5}`),
	rule("digit-window", FamilyCatchAll, `(?:\+44|0044|0)?[ \t-]?\d{2,5}[ \t-]?\d{2,5}[ \t-]?\d{2,5}`),
	rule("symbol-window", FamilyCatchAll, `[0-9+ ()-]{10,16}`),
	rule("digit-run", FamilyCatchAll, `\d{10,13}`),
}

// Rules returns a copy of the recognition table in evaluation order
func Rules() []PatternRule {
	out := make([]PatternRule, len(rules))
	copy(out, rules)
	return out
}
