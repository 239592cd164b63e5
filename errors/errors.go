package errors

import (
	"errors"
	"fmt"
	"net/http"

	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Error is the error envelope handlers return to clients. Status is the HTTP
// status the response should carry.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return e.Message
}

// New creates a new Error with the given message and status code.
func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

var (
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrUnauthorized        = New("unauthorized", http.StatusUnauthorized)
	ErrForbidden           = New("forbidden", http.StatusForbidden)
	ErrNotFound            = New("record not found", http.StatusNotFound)
	ErrUnprocessable       = New("unprocessable entity", http.StatusUnprocessableEntity)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)

	InActiveUserError = errors.New("user inactive")
)

// NotFound builds a not-found error naming the missing entity.
func NotFound(entity string) *Error {
	return New(fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// Validation builds an unprocessable-entity error for invalid input.
func Validation(message string) *Error {
	return New(message, http.StatusUnprocessableEntity)
}

// Status extracts the HTTP status carried by err, defaulting to 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// ErrorHandler is passed to the rate limiter middleware.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"errors": fmt.Sprintf("too many requests, try again in %s", time.Until(info.ResetTime).Round(time.Second)),
	})
	c.Abort()
}
