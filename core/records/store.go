// Package records defines access to hospitals, blood inventory and delivery
// requests.
package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/bloodlift/core/model"
)

var (
	// ErrNotFound is returned when a hospital or request does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when a status change would not be
	// monotonic.
	ErrInvalidTransition = errors.New("invalid request status transition")
	// ErrInUse is returned when deleting a hospital that still has open
	// requests.
	ErrInUse = errors.New("record in use")
	// ErrInvalid wraps validation failures of submitted records.
	ErrInvalid = errors.New("invalid record")
)

// Store is the record store used by the mission manager.
type Store interface {
	ListPendingRequests(ctx context.Context) ([]model.DeliveryRequest, error)
	// ListInventory returns records holding at least one unit.
	ListInventory(ctx context.Context) ([]model.InventoryRecord, error)
	ListHospitals(ctx context.Context) ([]model.Hospital, error)
	GetHospital(ctx context.Context, id int64) (model.Hospital, error)
	GetRequest(ctx context.Context, id int64) (model.DeliveryRequest, error)
	UpdateRequestStatus(ctx context.Context, id int64, status model.RequestStatus) error
}

// Editor is the write side used by the HTTP API and the seed command.
type Editor interface {
	// ListRequests returns every request, newest first.
	ListRequests(ctx context.Context) ([]model.DeliveryRequest, error)
	// CreateRequest validates and stores a new pending request.
	CreateRequest(ctx context.Context, r model.DeliveryRequest) (model.DeliveryRequest, error)
	// UpsertInventory sets the stock of one blood type at a hospital.
	UpsertInventory(ctx context.Context, rec model.InventoryRecord) error
	AddHospital(ctx context.Context, h model.Hospital) (model.Hospital, error)
	// UpdateHospital renames or moves a hospital. Hospitals with pending
	// or scheduled requests return ErrInUse.
	UpdateHospital(ctx context.Context, h model.Hospital) error
	// DeleteHospital removes a hospital and its inventory. Hospitals with
	// pending or scheduled requests return ErrInUse.
	DeleteHospital(ctx context.Context, id int64) error
}

// TransitionError builds the error returned for a rejected status change.
func TransitionError(id int64, from, to model.RequestStatus) error {
	return fmt.Errorf("request %d %s -> %s: %w", id, from, to, ErrInvalidTransition)
}

// Invalid marks err as a validation failure.
func Invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}
