package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	SafeGo("work", func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function did not run")
	}
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	recovered := make(chan error, 1)
	SafeGo("reader", func() { panic("boom") }, func(err error) { recovered <- err })

	select {
	case err := <-recovered:
		require.Error(t, err)
		assert.Equal(t, "reader panicked: boom", err.Error())
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestSafeGo_NilHandler(t *testing.T) {
	done := make(chan struct{})
	SafeGo("quiet", func() {
		defer close(done)
		panic("ignored")
	}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function did not run")
	}
}
