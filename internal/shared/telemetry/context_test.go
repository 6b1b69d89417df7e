package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestWithEmptyRequestIDKeepsContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithRequestID(ctx, ""))
}

func TestDetachKeepsRequestIDDropsCancel(t *testing.T) {
	parent, cancel := context.WithTimeout(WithRequestID(context.Background(), "req-2"), time.Millisecond)
	cancel()

	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Equal(t, "req-2", RequestID(detached))
	_, hasDeadline := detached.Deadline()
	assert.False(t, hasDeadline)
}
