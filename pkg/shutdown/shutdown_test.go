package shutdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownRunsAll(t *testing.T) {
	m := NewManager()
	var n int32
	m.OnShutdown("http", func(ctx context.Context) { atomic.AddInt32(&n, 1) })
	m.OnShutdown("db", func(ctx context.Context) { atomic.AddInt32(&n, 1) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, m.Shutdown(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&n))
}

func TestShutdownTimeout(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	defer close(release)
	m.OnShutdown("stuck", func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, m.Shutdown(ctx))
}

func TestShutdownEmpty(t *testing.T) {
	assert.True(t, NewManager().Shutdown(context.Background()))
}
