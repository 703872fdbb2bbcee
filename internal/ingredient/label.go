package ingredient

import (
	"errors"
	"regexp"
	"strings"
)

// Separator joins the words of a multi-word label
const Separator = "_"

// MalformedQueryMessage is shown to the user when a search query is rejected
const MalformedQueryMessage = "An ingredient should only contain letters and whitespaces."

// ErrMalformedQuery is returned when a query contains anything other than letters and whitespace
var ErrMalformedQuery = errors.New(MalformedQueryMessage)

var (
	queryPattern = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	labelPattern = regexp.MustCompile(`^[a-z]+(_[a-z]+)*$`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Label is a normalized ingredient identifier, e.g. "bell_pepper"
type Label string

// String returns the label text
func (l Label) String() string {
	return string(l)
}

// Valid reports whether the label is well formed
func (l Label) Valid() bool {
	return labelPattern.MatchString(string(l))
}

// Display returns the label with separators replaced by spaces
func (l Label) Display() string {
	return strings.ReplaceAll(string(l), Separator, " ")
}

// ValidateQuery checks that a raw user query only contains letters and whitespace
func ValidateQuery(query string) error {
	if !queryPattern.MatchString(query) {
		return ErrMalformedQuery
	}
	return nil
}

// Normalize lowercases the input and collapses whitespace runs into a single separator.
// Surrounding whitespace is dropped. Normalizing a normalized label returns it unchanged.
func Normalize(s string) Label {
	s = strings.ToLower(strings.TrimSpace(s))
	return Label(whitespace.ReplaceAllString(s, Separator))
}

// ParseQuery validates and normalizes a raw search query
func ParseQuery(query string) (Label, error) {
	if err := ValidateQuery(query); err != nil {
		return "", err
	}
	label := Normalize(query)
	if !label.Valid() {
		return "", ErrMalformedQuery
	}
	return label, nil
}

// ParseLabel normalizes a recognizer reply and checks that it is a well formed label.
// Replies may already use the separator ("bell_pepper") or spaces ("Bell Pepper").
func ParseLabel(s string) (Label, error) {
	label := Normalize(strings.ReplaceAll(s, Separator, " "))
	if !label.Valid() {
		return "", ErrMalformedQuery
	}
	return label, nil
}
