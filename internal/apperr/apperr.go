// Package apperr classifies the errors that cross the request boundary.
package apperr

import (
	"errors"
	"net/http"
)

// Category groups errors by how they are reported to callers.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryExtraction Category = "extraction"
	CategoryDownload   Category = "download"
	CategoryNotFound   Category = "not_found"
	CategoryBusy       Category = "busy"
	CategoryInternal   Category = "internal"
)

// Error attaches a Category to an underlying error.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err tagged with category. A nil err stays nil.
func Wrap(category Category, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Err: err}
}

// Validation builds a validation error carrying msg.
func Validation(msg string) error {
	return &Error{Category: CategoryValidation, Err: errors.New(msg)}
}

// CategoryOf reports the category of err, or CategoryInternal when err is
// not categorized.
func CategoryOf(err error) Category {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryInternal
}

// Is reports whether err carries the given category.
func Is(err error, category Category) bool {
	return err != nil && CategoryOf(err) == category
}

// HTTPStatus maps a categorized error to the status code used by the web layer.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryValidation, CategoryExtraction, CategoryDownload:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
