package media

const mib = 1 << 20

// Rule is the allow-list and size ceiling for one attachment kind.
type Rule struct {
	Types   []string
	MaxSize int64
}

// DefaultRules are the validation ceilings per kind. They are
// independent of the optimizer's compression threshold.
var DefaultRules = map[Kind]Rule{
	KindImage: {
		Types:   []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		MaxSize: 10 * mib,
	},
	KindVideo: {
		Types:   []string{"video/mp4", "video/webm", "video/quicktime"},
		MaxSize: 50 * mib,
	},
	KindAudio: {
		Types:   []string{"audio/mpeg", "audio/wav", "audio/ogg", "audio/webm", "audio/mp4"},
		MaxSize: 20 * mib,
	},
	KindFile: {
		Types: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"text/plain",
		},
		MaxSize: 5 * mib,
	},
}

// Validator checks attachments before any network attempt.
type Validator struct {
	rules map[Kind]Rule
}

// NewValidator returns a Validator using rules, or DefaultRules when
// rules is nil.
func NewValidator(rules map[Kind]Rule) *Validator {
	if rules == nil {
		rules = DefaultRules
	}
	return &Validator{rules: rules}
}

// ValidateFile checks f against the rule for kind. The type check runs
// before the size check.
func (v *Validator) ValidateFile(f *File, kind Kind) error {
	rule, ok := v.rules[kind]
	if !ok || !contains(rule.Types, canonicalType(f.Type)) {
		return &UnsupportedTypeError{Name: f.Name, Type: f.Type, Kind: kind}
	}
	if f.Size() > rule.MaxSize {
		return &FileTooLargeError{Name: f.Name, Size: f.Size(), Limit: rule.MaxSize}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
