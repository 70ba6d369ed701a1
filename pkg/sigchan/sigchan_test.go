package sigchan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmitCoalesces(t *testing.T) {
	c := New(1)
	for i := 0; i < 5; i++ {
		c.Emit()
	}
	assert.True(t, c.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, c.Wait(ctx), "five emits collapse into one signal")
}

func TestZeroBufferIsUsable(t *testing.T) {
	c := New(0)
	c.Emit()
	select {
	case <-c.C():
	default:
		t.Fatal("signal lost")
	}
}
