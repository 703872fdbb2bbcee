package scan

import (
	"fmt"

	"github.com/teamalpha/aichef/internal/ingredient"
)

// Outcome is what happened to a recognized (or unrecognized) input
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeDuplicate
	OutcomePending
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomePending:
		return "pending"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText encodes the outcome by name
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// SearchResult reports how a typed query was resolved
type SearchResult struct {
	Query   ingredient.Label `json:"query"`
	Label   ingredient.Label `json:"label,omitempty"`
	Outcome Outcome          `json:"outcome"`
}
