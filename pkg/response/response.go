// Package response renders the JSON envelope used by every endpoint:
// {"success": bool, "message"?: string, "data"?: ..., "pagination"?: ...}.
package response

import (
	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/pkg/pagination"
)

// Envelope is the wire shape of every response body.
type Envelope struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
	Data       interface{}      `json:"data,omitempty"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// OK writes a successful envelope.
func OK(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Success: true, Data: data})
}

// Message writes a successful envelope with a message.
func Message(c echo.Context, status int, msg string, data interface{}) error {
	return c.JSON(status, Envelope{Success: true, Message: msg, Data: data})
}

// List writes a page of results with its pagination meta.
func List(c echo.Context, status int, data interface{}, meta pagination.Meta) error {
	return c.JSON(status, Envelope{Success: true, Data: data, Pagination: &meta})
}

// Error writes a failure envelope.
func Error(c echo.Context, status int, msg string) error {
	return c.JSON(status, Envelope{Success: false, Message: msg})
}
