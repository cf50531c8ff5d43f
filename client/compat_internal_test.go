package client

import (
	"context"
	"testing"
)

// internalTestContext stands in for testing.T.Context (Go 1.24+): the returned
// context is cancelled when the test finishes, before earlier-registered
// cleanups run.
func internalTestContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
