package echo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gboxsw/miniac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureListener struct {
	mu  sync.Mutex
	got *miniac.Message
}

func (c *captureListener) OnMessage(msg *miniac.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = msg
}

func (c *captureListener) wait(t *testing.T) *miniac.Message {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if c.got != nil {
			defer c.mu.Unlock()
			return c.got
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for echoed message")
	return nil
}

func TestEcho_LoopsPublishedMessageBack(t *testing.T) {
	app := miniac.NewApplication()
	require.NoError(t, app.AddGateway("demo", New()))

	listener := &captureListener{}
	_, err := app.Subscribe("demo/ping", listener)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	require.NoError(t, app.Publish(miniac.NewTextMessage("demo/ping", "pong")))

	got := listener.wait(t)
	assert.Equal(t, "pong", got.Text())
}
