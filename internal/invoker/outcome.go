package invoker

import (
	"bytes"
	"encoding/json"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Kind labels why a call failed. It is serialized as the outcome's details.
type Kind string

const (
	KindNone           Kind = ""
	KindUnknownTool    Kind = "unknown_tool"
	KindArgumentDecode Kind = "argument_decode_error"
	KindApplication    Kind = "application_error"
	KindTransport      Kind = "transport_error"
)

const (
	UnknownToolMessage = "unknown tool"
	UnknownErrorText   = "unknown error"

	SuggestionApplication = "This may be a temporary problem. You can:\n1. Try the query again\n2. Rephrase the query\n3. Use another available tool"
	SuggestionTransport   = "This is an unexpected error. Please try again later or contact the administrator."
	SuggestionArguments   = "Call the tool again with arguments encoded as a single JSON object."
	SuggestionUnknownTool = "Only call tools from the provided tool list."
)

// Outcome is the normalized result of one tool call.
type Outcome struct {
	Status     Status
	Payload    string
	Message    string
	Kind       Kind
	Suggestion string

	// Err is the classified cause of a failure. Never serialized.
	Err error
}

func Success(payload string) Outcome {
	return Outcome{Status: StatusSuccess, Payload: payload}
}

func Failure(kind Kind, message, suggestion string, err error) Outcome {
	return Outcome{
		Status:     StatusError,
		Message:    message,
		Kind:       kind,
		Suggestion: suggestion,
		Err:        err,
	}
}

func (o Outcome) IsSuccess() bool {
	return o.Status == StatusSuccess
}

type successWire struct {
	Status Status `json:"status"`
	Result string `json:"result"`
}

type failureWire struct {
	Status     Status `json:"status"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Suggestion string `json:"suggestion"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.IsSuccess() {
		return encode(successWire{Status: StatusSuccess, Result: o.Payload})
	}
	return encode(failureWire{
		Status:     StatusError,
		Message:    o.Message,
		Details:    string(o.Kind),
		Suggestion: o.Suggestion,
	})
}

// Content renders the outcome as the body of a tool message.
func (o Outcome) Content() string {
	data, err := encode(o)
	if err != nil {
		return `{"status":"error","message":"outcome encoding failed","details":"","suggestion":""}`
	}
	return string(data)
}

// encode marshals without HTML escaping so payloads reach the model verbatim.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
