package domain

import (
	"fmt"
	"strings"
)

// ReferentialIntegrityError is returned when a foreign key does not resolve to
// an existing record of the expected type, or when a delete would orphan
// dependent records.
type ReferentialIntegrityError struct {
	Entity    EntityType
	EntityID  string
	Field     string
	Target    EntityType
	TargetID  string
	Dependent bool
}

func (e ReferentialIntegrityError) Error() string {
	if e.Dependent {
		return fmt.Sprintf("%s %s is still referenced by %s %s", e.Entity, e.EntityID, e.Target, e.TargetID)
	}
	return fmt.Sprintf("%s %s: %s references missing %s %q", e.Entity, e.EntityID, e.Field, e.Target, e.TargetID)
}

// NotFoundError is returned when an update or delete target does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// FieldError describes one invalid field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError is returned when required fields are missing or malformed.
type ValidationError struct {
	Entity EntityType
	Fields []FieldError
}

// NewValidationError builds a single-field validation error.
func NewValidationError(entity EntityType, field, reason string) ValidationError {
	return ValidationError{Entity: entity, Fields: []FieldError{{Field: field, Reason: reason}}}
}

func (e ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

// AuthorizationError is returned when the acting user lacks a required role.
type AuthorizationError struct {
	Operation string
	UserID    string
	Required  []Role
}

func (e AuthorizationError) Error() string {
	roles := make([]string, 0, len(e.Required))
	for _, r := range e.Required {
		roles = append(roles, string(r))
	}
	who := e.UserID
	if who == "" {
		who = "anonymous"
	}
	return fmt.Sprintf("%s requires role %s (actor %s)", e.Operation, strings.Join(roles, "|"), who)
}

// ExternalOperationError wraps a failure of a collaborator outside the store
// (payment gateway, blob upload). The store state is unchanged when it is returned.
type ExternalOperationError struct {
	Operation string
	Err       error
}

func (e ExternalOperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

// Unwrap exposes the underlying failure.
func (e ExternalOperationError) Unwrap() error { return e.Err }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
