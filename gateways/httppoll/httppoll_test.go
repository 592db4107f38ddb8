package httppoll

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gboxsw/miniac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureListener struct {
	mu  sync.Mutex
	got []string
}

func (c *captureListener) OnMessage(msg *miniac.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, msg.Text())
}

func (c *captureListener) waitAtLeast(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.got) >= n {
			got := append([]string(nil), c.got...)
			c.mu.Unlock()
			return got
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for polled messages")
	return nil
}

func TestGateway_PublishesPolledResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	app := miniac.NewApplication()
	gw := New(Config{
		Endpoints: []Endpoint{
			{Topic: "hello", URL: srv.URL, Interval: 10 * time.Millisecond},
		},
	}, nil)
	require.NoError(t, app.AddGateway("poll", gw))

	listener := &captureListener{}
	_, err := app.Subscribe("poll/hello", listener)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	got := listener.waitAtLeast(t, 2)
	for _, msg := range got {
		assert.Equal(t, "hello", msg)
	}
}

func TestGateway_RejectsOutboundPublish(t *testing.T) {
	gw := New(Config{}, nil)
	err := gw.OnPublish(miniac.NewTextMessage("x", "y"))
	assert.Error(t, err)
}
