package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every error returned by a handler as JSON. Anything
// that is not one of the API error types becomes a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(NewError(fiberErr.Code, fiberErr.Message))
	}

	return c.Status(fiber.StatusInternalServerError).JSON(NewError(fiber.StatusInternalServerError, err.Error()))
}

type Error struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status  int               `json:"-"`
	Message string            `json:"error"`
	Details map[string]string `json:"details"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(details map[string]string) ValidationError {
	return ValidationError{
		Status:  fiber.StatusBadRequest,
		Message: "Invalid request",
		Details: details,
	}
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() ValidationError {
	return NewValidationError(map[string]string{"body": "invalid JSON"})
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
