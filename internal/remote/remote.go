// Package remote defines the remote data service the store synchronizes with,
// plus an HTTP client and an in-memory implementation.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/tally/internal/models"
)

// Sentinel errors for the two failure classes the store distinguishes.
var (
	// ErrUnavailable means the service could not be reached at all.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrRejected means the service answered and refused the call.
	ErrRejected = errors.New("remote rejected")

	ErrUnauthorized = fmt.Errorf("%w: unauthorized", ErrRejected)
	ErrNotFound     = fmt.Errorf("%w: not found", ErrRejected)
)

// Service is per-table CRUD with row-level ownership filtering.
type Service interface {
	// Select returns every row of table owned by ownerID.
	Select(ctx context.Context, table models.Table, ownerID string) ([]models.Row, error)
	// Insert stores row and returns it as persisted, including the assigned id.
	Insert(ctx context.Context, table models.Table, row models.Row) (models.Row, error)
	// Update merges row into the row identified by id.
	Update(ctx context.Context, table models.Table, id string, row models.Row) error
	// Delete removes the row identified by id.
	Delete(ctx context.Context, table models.Table, id string) error
}

// RejectedError carries the server's structured refusal.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s", e.Status, e.Code)
}

// Is lets errors.Is(err, ErrRejected) match any refusal.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
