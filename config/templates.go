package config

const (
	DefaultLeftDelim  = "{{"
	DefaultRightDelim = "}}"
)

type GoTemplate struct {
	Enabled    bool   `json:"enabled"`
	LeftDelim  string `json:"left-delim"`
	RightDelim string `json:"right-delim"`
}

// Validate returns a copy with blank delimiters set to the Go defaults
func (t GoTemplate) Validate() GoTemplate {
	if t.LeftDelim == "" {
		t.LeftDelim = DefaultLeftDelim
	}
	if t.RightDelim == "" {
		t.RightDelim = DefaultRightDelim
	}
	return t
}
