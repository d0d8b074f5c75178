package errors

import (
	"errors"
)

// Sentinel errors for the tool-use protocol.
var (
	// ErrConnection - tool provider transport could not be opened (fatal to process start)
	ErrConnection = errors.New("connection error")

	// ErrProtocol - provider returned a malformed or unexpected response (fatal to the operation)
	ErrProtocol = errors.New("protocol error")

	// ErrUnsupportedSchema - a tool descriptor cannot be translated (fatal to catalog construction)
	ErrUnsupportedSchema = errors.New("unsupported schema")

	// ErrCatalog - catalog could not be built from the provider listing
	ErrCatalog = errors.New("catalog error")

	// ErrUnknownTool - model requested a tool that is not in the catalog (recovered as a failure outcome)
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolApplication - remote tool ran and reported failure (recovered as a failure outcome)
	ErrToolApplication = errors.New("tool application error")

	// ErrTransport - invocation failed below the tool (network, timeout, decode)
	ErrTransport = errors.New("transport error")

	// ErrArgumentDecode - model produced an argument string that is not a JSON object
	ErrArgumentDecode = errors.New("argument decode error")

	// ErrModelCall - model endpoint failed (fatal to the current turn only)
	ErrModelCall = errors.New("model call error")

	// ErrSessionClosed - session used after Close
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidInput - invalid input (bad config, bad flags, bad tool input)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")

	// ErrTransient - transient upstream error
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
