package apperr

import (
	"context"
	"errors"
)

// Category groups failures by how the operator should react to them.
type Category string

const (
	CategoryInvalidInput Category = "invalid_input"
	CategoryAuth         Category = "auth"
	CategoryNetwork      Category = "network"
	CategoryFilesystem   Category = "filesystem"
	CategoryMetadata     Category = "metadata"
	CategoryDependency   Category = "dependency"
	CategoryInterrupted  Category = "interrupted"
	CategoryUnknown      Category = "unknown"
)

// CategorizedError attaches a Category to an underlying error.
type CategorizedError struct {
	Category Category
	Err      error
}

func (e CategorizedError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e CategorizedError) Unwrap() error {
	return e.Err
}

// Wrap tags err with category. A nil err stays nil and an already
// categorized error keeps its original category.
func Wrap(category Category, err error) error {
	if err == nil {
		return nil
	}
	var ce CategorizedError
	if errors.As(err, &ce) {
		return err
	}
	return CategorizedError{Category: category, Err: err}
}

// CategoryOf returns the category attached to err.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	if errors.Is(err, context.Canceled) {
		return CategoryInterrupted
	}
	return CategoryUnknown
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch CategoryOf(err) {
	case CategoryInvalidInput:
		return 2
	case CategoryAuth:
		return 3
	case CategoryNetwork:
		return 4
	case CategoryFilesystem:
		return 5
	case CategoryDependency:
		return 6
	case CategoryInterrupted:
		return 130
	default:
		return 1
	}
}

type reportedError struct {
	err error
}

func (e reportedError) Error() string {
	return e.err.Error()
}

func (e reportedError) Unwrap() error {
	return e.err
}

// MarkReported flags err as already shown to the user.
func MarkReported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err: err}
}

// IsReported returns true if the error has already been printed to stderr.
func IsReported(err error) bool {
	var re reportedError
	return errors.As(err, &re)
}
