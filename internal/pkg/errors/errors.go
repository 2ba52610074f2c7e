package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundError reports a missing batch, stage or certificate by id.
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// OutOfOrderError reports a stage creation that violates the fixed
// verification sequence.
type OutOfOrderError struct {
	BatchID   uuid.UUID
	Requested string
	Expected  string
}

func (e *OutOfOrderError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("batch %s: stage %s out of order", e.BatchID, e.Requested)
	}
	return fmt.Sprintf("batch %s: stage %s out of order, expected %s", e.BatchID, e.Requested, e.Expected)
}

// ImmutableStageError reports a mutation attempt on an anchored stage.
type ImmutableStageError struct {
	StageID   uuid.UUID
	AnchorRef string
}

func (e *ImmutableStageError) Error() string {
	return fmt.Sprintf("stage %s is anchored (%s) and immutable", e.StageID, e.AnchorRef)
}

// InsufficientPermissionsError reports an actor/role mismatch.
type InsufficientPermissionsError struct {
	UserID uuid.UUID
	Action string
}

func (e *InsufficientPermissionsError) Error() string {
	return fmt.Sprintf("user %s: insufficient permissions for %s", e.UserID, e.Action)
}

func (e *InsufficientPermissionsError) Unwrap() error { return ErrUnauthorized }

// IneligibleBatchError reports unmet certificate prerequisites. MissingStages
// lists the stage types still required, in verification order.
type IneligibleBatchError struct {
	BatchID       uuid.UUID
	Grade         string
	MissingStages []string
	ColdChain     bool
}

func (e *IneligibleBatchError) Error() string {
	if e.ColdChain && len(e.MissingStages) == 0 {
		return fmt.Sprintf("batch %s ineligible for %s certificate: cold chain non-compliant", e.BatchID, e.Grade)
	}
	return fmt.Sprintf("batch %s ineligible for %s certificate: missing stages %s",
		e.BatchID, e.Grade, strings.Join(e.MissingStages, ", "))
}

// DuplicateCertificateError reports an unexpired, unrevoked certificate of
// the same grade already on record.
type DuplicateCertificateError struct {
	BatchID uuid.UUID
	Grade   string
}

func (e *DuplicateCertificateError) Error() string {
	return fmt.Sprintf("batch %s already holds an active %s certificate", e.BatchID, e.Grade)
}

// StageAlreadyExistsError reports the losing side of a (batch_id, stage_type)
// uniqueness race. ExistingID identifies the surviving row so callers can
// treat the conflict as idempotent success when it matches their intent.
type StageAlreadyExistsError struct {
	BatchID    uuid.UUID
	StageType  string
	ExistingID uuid.UUID
}

func (e *StageAlreadyExistsError) Error() string {
	return fmt.Sprintf("batch %s: stage %s already exists (%s)", e.BatchID, e.StageType, e.ExistingID)
}

// StageTerminallyRejectedError reports a stage whose single retry is spent:
// a second rejection closes the stage for good and flags the batch.
type StageTerminallyRejectedError struct {
	BatchID   uuid.UUID
	StageType string
}

func (e *StageTerminallyRejectedError) Error() string {
	return fmt.Sprintf("batch %s: stage %s terminally rejected, batch flagged for review", e.BatchID, e.StageType)
}

// IncompleteLifecycleError reports a premature finalize, naming the stage
// types that are not yet COMPLETED.
type IncompleteLifecycleError struct {
	BatchID    uuid.UUID
	Incomplete []string
}

func (e *IncompleteLifecycleError) Error() string {
	return fmt.Sprintf("batch %s lifecycle incomplete: %s", e.BatchID, strings.Join(e.Incomplete, ", "))
}
