package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Transport error taxonomy. Configuration errors require user action and are
// never retried automatically; transient errors are left to the operator.
// Gateway 401 and 404 get their own codes because each needs a different
// remediation (fix the API key vs. fix the instance name).

// NewTransportConfigError reports missing or invalid connection configuration
// (absent API key, missing instance name, inactive integration).
func NewTransportConfigError(message string, details map[string]any) error {
	return NewDomainError("ERR_WAPP_CONFIG", message, http.StatusBadRequest, details)
}

// NewTransportTransientError reports a timeout, network failure or gateway 5xx.
func NewTransportTransientError(message string, err error) error {
	return &DomainError{
		Code:       "ERR_WAPP_TRANSIENT",
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewInstanceNotFoundError reports a gateway 404: the instance name no longer
// matches anything on the gateway side.
func NewInstanceNotFoundError(instanceName string) error {
	return NewDomainError(
		"ERR_WAPP_INSTANCE_NOT_FOUND",
		fmt.Sprintf("instance %q not found on the gateway; check the connection's instance name or recreate it", instanceName),
		http.StatusNotFound,
		map[string]any{"instance": instanceName},
	)
}

// NewGatewayUnauthorizedError reports a gateway 401 (bad API key).
func NewGatewayUnauthorizedError(instanceName string) error {
	return NewDomainError(
		"ERR_WAPP_UNAUTHORIZED",
		fmt.Sprintf("gateway rejected the API key for instance %q; check the integration credentials", instanceName),
		http.StatusUnauthorized,
		map[string]any{"instance": instanceName},
	)
}

// NewNotConnectedError reports a send attempted while the session is down;
// distinct from configuration errors because reconnecting, not reconfiguring,
// is the remediation.
func NewNotConnectedError(connectionName string) error {
	return NewDomainError(
		"ERR_WAPP_NOT_CONNECTED",
		fmt.Sprintf("connection %q is not active; reconnect and try again", connectionName),
		http.StatusConflict,
		map[string]any{"connection": connectionName},
	)
}

// NewNoConnectionError reports that no transport could be bound to a ticket.
func NewNoConnectionError() error {
	return NewDomainError("ERR_NO_CONNECTION", "no WhatsApp connection available for sending", http.StatusBadRequest, nil)
}

// NewNoReplyAddressError reports that no usable reply address could be derived
// for the contact; the send is refused rather than guessed.
func NewNoReplyAddressError(contactNumber string) error {
	return NewDomainError(
		"ERR_NO_REPLY_ADDRESS",
		"contact has no usable reply address",
		http.StatusBadRequest,
		map[string]any{"contact_number": contactNumber},
	)
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
