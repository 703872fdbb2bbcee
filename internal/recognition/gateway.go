// Package recognition maps camera frames and search queries to ingredient labels
// using an external vision model.
package recognition

import (
	"context"
	"errors"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/ingredient"
)

// ErrNotFound is returned when the input does not show or name a known ingredient.
// It is an expected outcome, not a failure.
var ErrNotFound = errors.New("ingredient not found")

// Gateway defines the interface for ingredient recognition
type Gateway interface {
	// ClassifyFrame recognizes the ingredient shown in a frame
	ClassifyFrame(ctx context.Context, frame camera.Frame) (ingredient.Label, error)
	// ResolveQuery maps a normalized search query to a known ingredient
	ResolveQuery(ctx context.Context, query ingredient.Label) (ingredient.Label, error)
	// Close closes the gateway and releases resources
	Close() error
}
