package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapTransportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "deadline", err: context.DeadlineExceeded, contains: "request timeout"},
		{name: "timeout text", err: errors.New("i/o timeout"), contains: "request timeout"},
		{name: "connection reset", err: errors.New("connection reset by peer"), contains: "network error"},
		{name: "decode", err: errors.New("failed to decode response"), contains: "decode error"},
		{name: "other", err: errors.New("boom"), contains: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapTransportError(tt.err)
			assert.ErrorIs(t, mapped, ErrTransport)
			assert.ErrorIs(t, mapped, tt.err)
			assert.Contains(t, mapped.Error(), tt.contains)
		})
	}
}

func TestMapTransportError_KeepsExistingCategory(t *testing.T) {
	err := Protocol("nil result")
	assert.Equal(t, err, MapTransportError(err))
	assert.Nil(t, MapTransportError(nil))
	assert.Equal(t, context.Canceled, MapTransportError(context.Canceled))
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "", Category(nil))
	assert.Equal(t, "UnknownToolError", Category(UnknownTool("nope")))
	assert.Equal(t, "ModelCallError", Category(fmt.Errorf("turn: %w", ModelCall("no choices"))))
	assert.Equal(t, "TransportError", Category(WrapWithCategory(errors.New("x"), "invoke", ErrTransport)))
	assert.Equal(t, "Unknown", Category(errors.New("plain")))
}
