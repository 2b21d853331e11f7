package model

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing input. Maps to HTTP 400.
type ValidationError struct {
	// Field names the offending input field, when known.
	Field string

	// Message is a human-readable description.
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports an unknown bag, recipe, tiddler, user, or role.
// Maps to HTTP 404.
type NotFoundError struct {
	// Kind is the entity kind: "bag", "recipe", "tiddler", "user",
	// "role", "session", "attachment".
	Kind string

	// Name identifies the missing entity.
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// NewNotFoundError creates a NotFoundError for an entity.
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// PermissionError reports an ACL or authentication denial. Maps to HTTP 403.
type PermissionError struct {
	// EntityType and EntityName identify the protected entity, when the
	// denial is entity-scoped. Empty for blanket denials (e.g. anonymous
	// access disabled).
	EntityType EntityType
	EntityName string

	// Permission is the access level that was requested.
	Permission Permission

	// Message is a human-readable description.
	Message string
}

func (e *PermissionError) Error() string {
	if e.EntityName != "" {
		return fmt.Sprintf("permission denied: %s %s on %s %q", e.Message, e.Permission, e.EntityType, e.EntityName)
	}
	return fmt.Sprintf("permission denied: %s", e.Message)
}

// NewPermissionError creates an entity-scoped PermissionError.
func NewPermissionError(et EntityType, name string, perm Permission, message string) *PermissionError {
	return &PermissionError{EntityType: et, EntityName: name, Permission: perm, Message: message}
}

// ConflictError reports a duplicate unique name or a concurrent mutation
// conflict. Maps to HTTP 409.
type ConflictError struct {
	Kind string
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// NewConflictError creates a ConflictError for an entity.
func NewConflictError(kind, name string) *ConflictError {
	return &ConflictError{Kind: kind, Name: name}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsPermission reports whether err is (or wraps) a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
