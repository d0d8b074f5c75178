package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MapTransportError classifies an error raised while talking to the tool provider.
// Errors already carrying a category are returned unchanged.
func MapTransportError(err error) error {
	if err == nil {
		return nil
	}

	if hasCategory(err) {
		return err
	}

	// Propagate cancellation as-is so callers can unwind
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w: %w", err, ErrTransport)
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return fmt.Errorf("request timeout: %w: %w", err, ErrTransport)

	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"), strings.Contains(errStr, "unreachable"), strings.Contains(errStr, "eof"):
		return fmt.Errorf("network error: %w: %w", err, ErrTransport)

	case strings.Contains(errStr, "invalid json"), strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "decode"):
		return fmt.Errorf("decode error: %w: %w", err, ErrTransport)

	default:
		return fmt.Errorf("%w: %w", err, ErrTransport)
	}
}

// Category returns the category name of an error, for logs.
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrConnection):
		return "ConnectionError"
	case errors.Is(err, ErrProtocol):
		return "ProtocolError"
	case errors.Is(err, ErrUnsupportedSchema):
		return "UnsupportedSchemaError"
	case errors.Is(err, ErrCatalog):
		return "CatalogError"
	case errors.Is(err, ErrUnknownTool):
		return "UnknownToolError"
	case errors.Is(err, ErrToolApplication):
		return "ToolApplicationError"
	case errors.Is(err, ErrTransport):
		return "TransportError"
	case errors.Is(err, ErrArgumentDecode):
		return "ArgumentDecodeError"
	case errors.Is(err, ErrModelCall):
		return "ModelCallError"
	case errors.Is(err, ErrSessionClosed):
		return "SessionClosedError"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInputError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrTransient):
		return "TransientError"
	case errors.Is(err, ErrInternal):
		return "InternalError"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	default:
		return "Unknown"
	}
}

func hasCategory(err error) bool {
	c := Category(err)
	return c != "Unknown" && c != "Canceled"
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory wraps an error with a specific category while keeping its text.
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", message, err, category)
}

// Connection wraps a message as a connection error
func Connection(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConnection)
}

// Protocol wraps a message as a protocol error
func Protocol(message string) error {
	return fmt.Errorf("%s: %w", message, ErrProtocol)
}

// UnknownTool wraps a tool name as an unknown tool error
func UnknownTool(name string) error {
	return fmt.Errorf("%q: %w", name, ErrUnknownTool)
}

// ModelCall wraps a message as a model call error
func ModelCall(message string) error {
	return fmt.Errorf("%s: %w", message, ErrModelCall)
}

// NotFound wraps message as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps message as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// Transient wraps message as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// Internal wraps message as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}
