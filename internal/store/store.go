// Package store persists named schematic documents.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/relaysim/internal/schematic"
)

// ErrNotFound is returned when no schematic has the requested name.
var ErrNotFound = errors.New("schematic not found")

// Record is one stored schematic.
type Record struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Document  *schematic.Document `json:"document"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SchematicStore defines the interface for saving and loading schematics.
type SchematicStore interface {
	// Save inserts doc under doc.Name, or replaces the document already
	// stored under that name while keeping its ID and creation time.
	Save(ctx context.Context, doc *schematic.Document) (*Record, error)

	// Load returns the schematic stored under name, or ErrNotFound.
	Load(ctx context.Context, name string) (*Record, error)

	// List returns every stored schematic ordered by name.
	List(ctx context.Context) ([]Record, error)

	// Delete removes the schematic stored under name, or returns ErrNotFound.
	Delete(ctx context.Context, name string) error

	Close() error
}
