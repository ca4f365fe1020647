package jobs

import (
	"fmt"

	"facelane/internal/services"
)

var (
	// ErrNotFound is returned when no record exists for a job id.
	ErrNotFound = fmt.Errorf("job %w", services.ErrNotFound)
	// ErrDuplicate is returned when creating a record whose id already exists.
	ErrDuplicate = fmt.Errorf("job already exists: %w", services.ErrConflict)
	// ErrInvalidID is returned for identifiers that NewID could not have produced.
	ErrInvalidID = fmt.Errorf("invalid job id: %w", services.ErrNotFound)
)
