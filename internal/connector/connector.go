// Package connector defines the pluggable source-connector abstraction and
// its concrete adapters. Each external system kind is a small struct holding
// only its configuration; adding a source means implementing one interface
// and registering a factory.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// ErrSourceUnreachable marks connection/auth/listing failures that abort the
// whole run. Per-record failures are never wrapped with it.
var ErrSourceUnreachable = errors.New("import source unreachable")

// Unreachable wraps an error as a run-fatal source failure.
func Unreachable(err error) error {
	return fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
}

// Category is one source-side object-type taxonomy entry.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BatchFunc consumes one batch of raw records. Returning an error stops the
// fetch and propagates to the caller.
type BatchFunc func(batch []models.RawRecord) error

// Connector is the contract every source adapter implements.
type Connector interface {
	// FetchBatches streams raw records to fn batch by batch. It must yield
	// progressively rather than materialize the full result set, so batches
	// can be checkpointed independently. When since is non-nil and the
	// connector configuration names a timestamp field, only records changed
	// after since are yielded (incremental import). Connection, auth and
	// id-listing failures return an error wrapping ErrSourceUnreachable;
	// a failed detail batch is skipped and logged, not fatal.
	FetchBatches(ctx context.Context, since *time.Time, fn BatchFunc) error

	// TestConnection is a fast, side-effect-free probe. Failures resolve to
	// false; they never propagate.
	TestConnection(ctx context.Context) bool

	// Schema returns source field names, best effort. Nested structures are
	// flattened to dotted paths with indexed list segments. Returns an empty
	// slice on failure, never an error.
	Schema(ctx context.Context) []string

	// Categories lists the source-side object-type taxonomy where the source
	// has one; empty otherwise.
	Categories(ctx context.Context) []Category
}

// Factory builds a connector from its connection parameters. Parameters are
// validated lazily: a factory only rejects structurally unusable input (e.g.
// a missing file path), credentials are checked at connect time.
type Factory func(params map[string]any) (Connector, error)

var registry = map[string]Factory{}

// Register adds a connector kind. Called from adapter init functions.
func Register(kind string, factory Factory) {
	if _, dup := registry[kind]; dup {
		panic("connector: duplicate registration for kind " + kind)
	}
	registry[kind] = factory
}

// New builds a connector for a source kind.
func New(kind string, params map[string]any) (Connector, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown source type %q (known: %v)", kind, Kinds())
	}
	return factory(params)
}

// Kinds returns the registered connector kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
