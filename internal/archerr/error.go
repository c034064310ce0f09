// Package archerr provides the structured error taxonomy shared by every
// archive component: not-found, conflict, validation and internal failures,
// each carrying enough operational context to log or report without the
// caller re-deriving it.
package archerr

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/conatus-oss/dana-archive/pkg/requestid"
)

// ArchiveError carries structured context for a failed archive operation.
type ArchiveError struct {
	Operation string
	Step      string
	Condition string
	RequestID string
	Timestamp time.Time

	Context map[string]any
	Cause   error

	message string
}

func (e *ArchiveError) Error() string {
	if e.message == "" {
		e.message = strings.Join(e.buildMessage(), " ")
	}
	return e.message
}

func (e *ArchiveError) Unwrap() error {
	return e.Cause
}

func (e *ArchiveError) buildMessage() []string {
	parts := []string{}

	if e.Operation != "" {
		parts = append(parts, "operation", e.Operation)
	}
	if e.Step != "" {
		parts = append(parts, "step", e.Step)
	}
	if e.Condition != "" {
		parts = append(parts, "condition", e.Condition)
	}
	for key, value := range e.Context {
		switch key {
		case "collection_id", "asset_id", "media_id", "filename", "path", "parent_id", "session_id", "transaction_id":
			parts = append(parts, key, fmt.Sprintf("%v", value))
		}
	}
	if e.RequestID != "" {
		parts = append(parts, "request_id", e.RequestID)
	}
	if e.Cause != nil {
		parts = append(parts, "cause", e.Cause.Error())
	}

	return parts
}

func (e *ArchiveError) WithContext(key string, value any) *ArchiveError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	e.message = ""
	return e
}

func (e *ArchiveError) WithContextMap(context map[string]any) *ArchiveError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	maps.Copy(e.Context, context)
	e.message = ""
	return e
}

func (e *ArchiveError) AtStep(step string) *ArchiveError {
	e.Step = step
	e.message = ""
	return e
}

func (e *ArchiveError) WithCondition(condition string) *ArchiveError {
	e.Condition = condition
	e.message = ""
	return e
}

func (e *ArchiveError) WithCause(cause error) *ArchiveError {
	e.Cause = cause
	e.message = ""
	return e
}

func (e *ArchiveError) WithCollectionID(id string) *ArchiveError {
	return e.WithContext("collection_id", id)
}

func (e *ArchiveError) WithAssetID(id string) *ArchiveError {
	return e.WithContext("asset_id", id)
}

func (e *ArchiveError) WithMediaID(id string) *ArchiveError {
	return e.WithContext("media_id", id)
}

// New creates a bare ArchiveError, pulling a request ID from ctx if present.
func New(ctx context.Context, operation string) *ArchiveError {
	return &ArchiveError{
		Operation: operation,
		RequestID: requestid.FromContext(ctx),
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
}

// NotFoundError signals that a referenced entity does not exist (spec.md
// DOES_NOT_EXIST condition).
type NotFoundError struct{ *ArchiveError }

// ConflictError signals a uniqueness or state conflict (e.g. duplicate path,
// schema cycle).
type ConflictError struct{ *ArchiveError }

// ValidationError signals that caller-supplied data failed validation
// (property coercion, referential integrity, access level rules).
type ValidationError struct{ *ArchiveError }

// InternalError signals an unexpected failure: I/O, database inconsistency,
// or any condition the caller cannot recover from by changing its input.
type InternalError struct{ *ArchiveError }

func NewNotFoundError(ctx context.Context, operation, condition string) *NotFoundError {
	return &NotFoundError{New(ctx, operation).WithCondition(condition)}
}

func NewConflictError(ctx context.Context, operation, condition string) *ConflictError {
	return &ConflictError{New(ctx, operation).WithCondition(condition)}
}

func NewValidationError(ctx context.Context, operation, condition string) *ValidationError {
	return &ValidationError{New(ctx, operation).WithCondition(condition)}
}

func NewInternalError(ctx context.Context, operation string, cause error) *InternalError {
	return &InternalError{New(ctx, operation).WithCondition("internal_error").WithCause(cause)}
}

// Collection / asset specific helpers mirroring the well-known conditions
// spec.md §7 names.

func NewCollectionNotFoundError(ctx context.Context, collectionID string) *NotFoundError {
	return &NotFoundError{
		New(ctx, "get_collection").
			WithCondition("collection_not_found").
			WithCollectionID(collectionID),
	}
}

func NewAssetNotFoundError(ctx context.Context, assetID string) *NotFoundError {
	return &NotFoundError{
		New(ctx, "get_asset").
			WithCondition("asset_not_found").
			WithAssetID(assetID),
	}
}

func NewMediaNotFoundError(ctx context.Context, mediaID string) *NotFoundError {
	return &NotFoundError{
		New(ctx, "get_media").
			WithCondition("media_not_found").
			WithMediaID(mediaID),
	}
}

func NewSchemaCycleError(ctx context.Context, collectionID string) *ConflictError {
	return &ConflictError{
		New(ctx, "update_collection_schema").
			WithCondition("schema_cycle_detected").
			WithCollectionID(collectionID),
	}
}

func NewUnsupportedMediaTypeError(ctx context.Context, mimeType string) *ValidationError {
	return &ValidationError{
		New(ctx, "put_media").
			WithCondition("unsupported_media_type").
			WithContext("mime_type", mimeType),
	}
}

func NewDatabaseInconsistencyError(ctx context.Context, operation string, cause error) *InternalError {
	return &InternalError{
		New(ctx, operation).
			AtStep("database_read").
			WithCondition("database_inconsistency").
			WithCause(cause),
	}
}

func NewIOError(ctx context.Context, operation, path string, cause error) *InternalError {
	return &InternalError{
		New(ctx, operation).
			AtStep("filesystem").
			WithCondition("io_error").
			WithContext("path", path).
			WithCause(cause),
	}
}
