package extract

// Record holds the fields recovered from one document. Absent fields are
// empty strings. RawText is kept whenever decoding produced text so fields can
// be re-extracted without decoding the file again.
type Record struct {
	GivenName      string `json:"given_name"`
	FamilyName     string `json:"family_name"`
	PhoneNumber    string `json:"phone_number"`
	SourceFileName string `json:"source_file_name"`
	RawText        string `json:"raw_text"`
	ShareLink      string `json:"share_link,omitempty"`
}

// Complete reports whether every contact field was found
func (r Record) Complete() bool {
	return r.GivenName != "" && r.FamilyName != "" && r.PhoneNumber != ""
}

// Field names a single re-extractable field
type Field string

const (
	FieldGivenName   Field = "given_name"
	FieldFamilyName  Field = "family_name"
	FieldPhoneNumber Field = "phone_number"
)

// Fields lists the re-extractable fields
func Fields() []Field {
	return []Field{FieldGivenName, FieldFamilyName, FieldPhoneNumber}
}
