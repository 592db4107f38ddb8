package miniac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu       sync.Mutex
	messages []*Message
}

func (r *recordingListener) OnMessage(msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingListener) wait(t *testing.T, n int) []*Message {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.messages) >= n {
			got := append([]*Message{}, r.messages...)
			r.mu.Unlock()
			return got
		}
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, got %d", n, len(r.messages))
	return nil
}

// testLoopbackGateway is a minimal Gateway that delivers every published
// message straight back to local subscribers, mirroring the echo gateway's
// pattern without importing gateways/echo into this package's own tests.
type testLoopbackGateway struct {
	BaseGateway
	ctx *GatewayContext
}

func (g *testLoopbackGateway) OnStart(ctx *GatewayContext) error {
	g.ctx = ctx
	return nil
}

func (g *testLoopbackGateway) OnPublish(msg *Message) error {
	g.ctx.Deliver(msg)
	return nil
}

func TestApplication_PublishSubscribe(t *testing.T) {
	app := NewApplication()
	require.NoError(t, app.AddGateway("sensors", &testLoopbackGateway{}))
	listener := &recordingListener{}
	_, err := app.Subscribe("sensors/+/temperature", listener)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	require.NoError(t, app.Publish(NewTextMessage("sensors/kitchen/temperature", "21.5")))

	got := listener.wait(t, 1)
	assert.Equal(t, "sensors/kitchen/temperature", got[0].Topic())
}

func TestApplication_AddGatewayDuplicate(t *testing.T) {
	app := NewApplication()
	require.NoError(t, app.AddGateway("echo", BaseGateway{}))
	assert.Error(t, app.AddGateway("echo", BaseGateway{}))
}

func TestApplication_AddGatewayInvalidID(t *testing.T) {
	app := NewApplication()
	assert.Error(t, app.AddGateway("1bad", BaseGateway{}))
}

func TestApplication_SubscribeInvalidFilter(t *testing.T) {
	app := NewApplication()
	_, err := app.Subscribe("a/b+", &recordingListener{})
	assert.Error(t, err)
}

func TestApplication_Schedule(t *testing.T) {
	app := NewApplication()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	fired := make(chan struct{}, 1)
	app.Schedule(10*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled action never fired")
	}
}

func TestApplication_ScheduleCancel(t *testing.T) {
	app := NewApplication()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	fired := make(chan struct{}, 1)
	c := app.Schedule(20*time.Millisecond, func() { fired <- struct{}{} })
	c.Cancel()

	select {
	case <-fired:
		t.Fatal("cancelled action fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestApplication_SystemLifecycleMessages(t *testing.T) {
	app := NewApplication()
	listener := &recordingListener{}
	_, err := app.Subscribe(TopicSystemStart, listener)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))

	got := listener.wait(t, 1)
	assert.Equal(t, TopicSystemStart, got[0].Topic())

	app.Stop()
}

func TestApplication_SystemExitTopicStopsTheLoop(t *testing.T) {
	app := NewApplication()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))

	require.NoError(t, app.Publish(NewMessage(TopicSystemExit, nil)))

	select {
	case <-app.stoppedCh:
	case <-time.After(time.Second):
		t.Fatal("publishing $SYS/exit did not stop the dispatch loop")
	}
}

func TestApplication_SystemSaveTopicPersistsAndAnnounces(t *testing.T) {
	app := NewApplication()
	listener := &recordingListener{}
	_, err := app.Subscribe(TopicSystemStateSaved, listener)
	require.NoError(t, err)

	require.NoError(t, app.AddGateway("data", NewDataGateway()))
	handler := &countingSaveHandler{}
	_, err = AddDataItem(app, "data", "counter", handler, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	require.NoError(t, app.Publish(NewMessage(TopicSystemSave, nil)))

	listener.wait(t, 1)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && handler.saves == 0 {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, handler.saves)
}

type countingSaveHandler struct {
	NopHandler[int]
	saves int
}

func (h *countingSaveHandler) OnSynchronizeValue(*Item[int]) (int, error) { return 0, nil }
func (h *countingSaveHandler) OnSaveState(*Item[int], Bundle)             { h.saves++ }

func TestApplication_MailboxTopicsAreUnique(t *testing.T) {
	app := NewApplication()
	a := app.ReserveMailboxTopic()
	b := app.ReserveMailboxTopic()
	assert.NotEqual(t, a, b)
	assert.True(t, isValidTopicFilter(a))
}

func TestApplication_CreateMailboxTopicMatchesReserve(t *testing.T) {
	app := NewApplication()
	topic := app.CreateMailboxTopic()
	assert.True(t, isValidTopicFilter(topic))
}

func TestApplication_KeyValueStore(t *testing.T) {
	app := NewApplication()

	_, ok := app.GetKeyValue("missing")
	assert.False(t, ok)

	app.SetKeyValue("count", 3)
	v, ok := app.GetKeyValue("count")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	assert.Equal(t, 3, app.GetIntKeyValue("count", -1))
	assert.Equal(t, -1, app.GetIntKeyValue("missing", -1))
	assert.Equal(t, "fallback", app.GetStringKeyValue("count", "fallback"))

	app.SetKeyValue("enabled", true)
	assert.True(t, app.GetBoolKeyValue("enabled", false))
}

func TestApplication_AddShutdownHookRunsOnStop(t *testing.T) {
	app := NewApplication()
	ran := make(chan struct{}, 1)
	app.AddShutdownHook(func() { ran <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	app.Stop()

	select {
	case <-ran:
	default:
		t.Fatal("shutdown hook did not run")
	}
}

func TestApplication_IsLaunched(t *testing.T) {
	app := NewApplication()
	assert.False(t, app.IsLaunched())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	assert.True(t, app.IsLaunched())
}

type recordingModule struct {
	configured bool
}

func (m *recordingModule) Configure(app *Application) error {
	m.configured = true
	return app.AddGateway("fromModule", BaseGateway{})
}

func TestApplication_AddModule(t *testing.T) {
	app := NewApplication()
	m := &recordingModule{}
	require.NoError(t, app.AddModule(m))
	assert.True(t, m.configured)

	_, ok := app.Gateway("fromModule")
	assert.True(t, ok)
}

func TestApplication_PublishLater(t *testing.T) {
	app := NewApplication()
	require.NoError(t, app.AddGateway("delayed", &testLoopbackGateway{}))
	listener := &recordingListener{}
	_, err := app.Subscribe("delayed/topic", listener)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer app.Stop()

	app.PublishLater(10*time.Millisecond, NewTextMessage("delayed/topic", "hi"))

	got := listener.wait(t, 1)
	assert.Equal(t, "hi", got[0].Text())
}
