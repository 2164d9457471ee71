// Package pipestore provides persistence for serialized pipe definitions.
package pipestore

import (
	"fmt"
	"time"

	"github.com/brickflow/brickflow/errors"
	"github.com/brickflow/brickflow/pipe"
)

// StoredPipe is the persisted envelope around a pipe record: identity,
// optimistic-concurrency version and audit timestamps.
type StoredPipe struct {
	// Identity
	ID string `json:"id"`

	// Version for optimistic concurrency control
	Version int64 `json:"version"`

	// The serialized pipe definition
	Pipe pipe.Record `json:"pipe"`

	// Audit
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Validate checks the envelope is complete enough to persist
func (sp *StoredPipe) Validate() error {
	if sp.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("pipe ID cannot be empty"),
			"pipestore", "Validate", "validation")
	}

	for i, b := range sp.Pipe.Bricks {
		if b.Name == "" {
			return errors.WrapInvalid(
				fmt.Errorf("brick at index %d has empty name", i),
				"pipestore", "Validate", "brick name validation")
		}
	}

	return nil
}
