// Package errors provides standardized error types and helpers for the webpack codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateModule indicates two distinct modules claimed the same identity
	ErrDuplicateModule = errors.New("duplicate module")
	// ErrUnreachableEntry indicates an entry resolved to no module in the graph
	ErrUnreachableEntry = errors.New("unreachable entry")
	// ErrIDCollision indicates an identifier strategy produced a non-injective assignment
	ErrIDCollision = errors.New("id collision")
	// ErrSplitPolicy indicates the splitter would have dropped a reachable module
	ErrSplitPolicy = errors.New("split policy violation")
	// ErrChunkLoad indicates a chunk failed to load at runtime
	ErrChunkLoad = errors.New("chunk load failed")
	// ErrInternal indicates an internal system error
	ErrInternal = errors.New("internal error")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// DuplicateModuleError reports a second module registered under an identity
// that is already bound to different content.
type DuplicateModuleError struct {
	Identity string // Module identity (resolved path plus loader chain)
	Existing string // Content hash already registered
	Incoming string // Content hash of the rejected module
	Err      error  // Underlying error, if any
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("duplicate module %s: content %s conflicts with %s", e.Identity, e.Incoming, e.Existing)
}

func (e *DuplicateModuleError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDuplicateModule
}

// UnreachableEntryError reports an entry whose request resolved to no module.
type UnreachableEntryError struct {
	Entry   string // Entry name
	Request string // Request that failed to resolve
	Err     error  // Underlying error, if any
}

func (e *UnreachableEntryError) Error() string {
	if e.Request != "" {
		return fmt.Sprintf("entry %s is unreachable: no module for %s", e.Entry, e.Request)
	}
	return fmt.Sprintf("entry %s is unreachable", e.Entry)
}

func (e *UnreachableEntryError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnreachableEntry
}

// IDCollisionError reports two graph elements that ended up with the same
// identifier under a strategy that could not disambiguate them.
type IDCollisionError struct {
	Strategy string // Strategy that produced the collision
	ID       string // Colliding identifier
	First    string // Identity of the element that held the id
	Second   string // Identity of the element that collided
}

func (e *IDCollisionError) Error() string {
	return fmt.Sprintf("id collision under %s strategy: %q assigned to both %s and %s", e.Strategy, e.ID, e.First, e.Second)
}

func (e *IDCollisionError) Unwrap() error {
	return ErrIDCollision
}

// SplitPolicyError reports a partitioning decision that would lose a
// reachable module. It is always a bug in policy configuration or in the
// splitter itself, never a user input error.
type SplitPolicyError struct {
	Module string // Identity of the module that would be dropped
	Chunk  string // Chunk the module was expected in
	Reason string // What the policy tried to do
}

func (e *SplitPolicyError) Error() string {
	return fmt.Sprintf("split policy violation: module %s lost from chunk %s: %s", e.Module, e.Chunk, e.Reason)
}

func (e *SplitPolicyError) Unwrap() error {
	return ErrSplitPolicy
}

// LoadErrorKind classifies chunk load failures.
type LoadErrorKind string

const (
	// LoadMissing means the chunk asset could not be found.
	LoadMissing LoadErrorKind = "missing"
	// LoadTimeout means the chunk did not register before the deadline.
	LoadTimeout LoadErrorKind = "timeout"
	// LoadFailed means the fetch or evaluation of the chunk errored.
	LoadFailed LoadErrorKind = "failed"
)

// ChunkLoadError reports an on-demand chunk that could not be loaded.
// It is recoverable: the loading slot is reset so a later request retries.
type ChunkLoadError struct {
	Kind    LoadErrorKind // Failure classification
	ChunkID string        // Chunk that failed
	Src     string        // Source URL or path that was fetched
	Err     error         // Underlying error, if any
}

func (e *ChunkLoadError) Error() string {
	if e.Src != "" {
		return fmt.Sprintf("loading chunk %s failed (%s): %s", e.ChunkID, e.Kind, e.Src)
	}
	return fmt.Sprintf("loading chunk %s failed (%s)", e.ChunkID, e.Kind)
}

func (e *ChunkLoadError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrChunkLoad
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "JSON", "config", "source")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewDuplicateModule creates a DuplicateModuleError
func NewDuplicateModule(identity, existing, incoming string) *DuplicateModuleError {
	return &DuplicateModuleError{
		Identity: identity,
		Existing: existing,
		Incoming: incoming,
	}
}

// NewUnreachableEntry creates an UnreachableEntryError
func NewUnreachableEntry(entry, request string, err error) *UnreachableEntryError {
	return &UnreachableEntryError{
		Entry:   entry,
		Request: request,
		Err:     err,
	}
}

// NewIDCollision creates an IDCollisionError
func NewIDCollision(strategy, id, first, second string) *IDCollisionError {
	return &IDCollisionError{
		Strategy: strategy,
		ID:       id,
		First:    first,
		Second:   second,
	}
}

// NewSplitPolicy creates a SplitPolicyError
func NewSplitPolicy(module, chunk, reason string) *SplitPolicyError {
	return &SplitPolicyError{
		Module: module,
		Chunk:  chunk,
		Reason: reason,
	}
}

// NewChunkLoad creates a ChunkLoadError
func NewChunkLoad(kind LoadErrorKind, chunkID, src string, err error) *ChunkLoadError {
	return &ChunkLoadError{
		Kind:    kind,
		ChunkID: chunkID,
		Src:     src,
		Err:     err,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
