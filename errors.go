package deskweb

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// ConfigurationError reports a handler whose declared shape cannot be served.
// It is produced at registration time; the offending handler is never added
// to the route table while every other handler registers normally.
type ConfigurationError struct {
	Method string
	Path   string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Method == "" && e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ClientInputError is a request-scoped binding failure. The handler is not
// invoked and the client receives Status with Reason as plain text.
type ClientInputError struct {
	Status int
	Reason string
	Err    error
}

func newClientInputError(status int, err error) *ClientInputError {
	return &ClientInputError{Status: status, Reason: err.Error(), Err: err}
}

func (e *ClientInputError) Error() string {
	return e.Reason
}

func (e *ClientInputError) Unwrap() error {
	return e.Err
}

// Response renders the error as a plain text response.
func (e *ClientInputError) Response() *Response {
	return textResponse(e.Status, e.Reason)
}

// APIError is raised by handler logic to produce a structured error response.
//
// Code is a short machine readable identifier such as "value:invalid",
// Data carries optional detail and Message a human readable explanation.
// Status is the HTTP status of the response.
//
// Example:
//
//	return nil, deskweb.NewAPIError(http.StatusNotFound, "preset:notfound", nil, "not found")
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// NewAPIError builds an APIError. A status below 400 becomes 400, one above 599
// becomes 500.
func NewAPIError(status int, code string, data any, message string) *APIError {
	return &APIError{Status: errorStatus(status), Code: code, Data: data, Message: message}
}

func errorStatus(status int) int {
	switch {
	case status < 400:
		return http.StatusBadRequest
	case status > 599:
		return http.StatusInternalServerError
	default:
		return status
	}
}

// ErrValueInvalid reports a request value that failed handler validation.
func ErrValueInvalid(field, message string) *APIError {
	return NewAPIError(http.StatusBadRequest, "value:invalid", field, message)
}

// ErrResourceNotFound reports a missing resource.
func ErrResourceNotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, "value:notfound", resource, resource+" not found")
}

// ErrConflict reports a request that collides with work already in progress.
func ErrConflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, "state:conflict", nil, message)
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Response renders the error as {"error": ..., "data": ..., "message": ...}.
func (e *APIError) Response() (*Response, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	// 字面量构造的 APIError 没有状态码，同样按 NewAPIError 的规则修正
	resp := &Response{
		Status: errorStatus(e.Status),
		Header: http.Header{},
		Body:   data,
	}
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("Content-Length", strconv.Itoa(len(data)))
	return resp, nil
}
