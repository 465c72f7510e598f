package ipc

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sipeed/dialogbridge/pkg/bus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// shortDir keeps unix socket paths under the platform length limit.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dbr")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func startServer(t *testing.T, opts Options) (*bus.MessageBus, *Server) {
	t.Helper()
	mb := bus.NewMessageBus()
	opts.SocketDir = shortDir(t)
	srv := NewServer(mb, opts)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })
	return mb, srv
}

func connect(t *testing.T, srv *Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, srv.Endpoint())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitConnections(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.ConnectionCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func nextFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case f, ok := <-c.Frames():
		require.True(t, ok, "connection closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return Frame{}
	}
}

func collect(mb *bus.MessageBus, signal bus.Signal) chan bus.Event {
	ch := make(chan bus.Event, 16)
	mb.Subscribe(signal, "test", func(ev bus.Event) { ch <- ev })
	return ch
}

func nextEvent(t *testing.T, ch chan bus.Event) bus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
		return bus.Event{}
	}
}

func TestEndpointEmbedsPID(t *testing.T) {
	srv := NewServer(bus.NewMessageBus(), Options{Prefix: "omni", SocketDir: "/tmp", PID: 4242})
	assert.Contains(t, srv.Endpoint(), "omni-4242")
}

func TestBroadcastToAllClients(t *testing.T) {
	mb, srv := startServer(t, Options{})
	a := connect(t, srv)
	b := connect(t, srv)
	waitConnections(t, srv, 2)

	mb.Publish(bus.Event{Signal: bus.SignalResponse, Text: "hello"})
	mb.Publish(bus.Event{Signal: bus.SignalDialogOpened, Dialog: &bus.Dialog{
		Type: "model_picker", Prompt: "Select Model", Options: []string{"pro", "close"},
	}})

	for _, c := range []*Client{a, b} {
		assert.Equal(t, Frame{Type: FrameResponse, Text: "hello"}, nextFrame(t, c))
		f := nextFrame(t, c)
		assert.Equal(t, FrameDialog, f.Type)
		assert.Equal(t, "model_picker", f.DialogType)
		assert.Equal(t, []string{"pro", "close"}, f.Options)
	}
}

func TestInboundCommandsPublished(t *testing.T) {
	mb, srv := startServer(t, Options{})
	prompts := collect(mb, bus.SignalPromptSubmitted)
	answers := collect(mb, bus.SignalDialogAnswered)
	history := collect(mb, bus.SignalHistoryRequested)

	c := connect(t, srv)
	require.NoError(t, c.SendPrompt("fix the build"))
	require.NoError(t, c.Answer("yes"))
	require.NoError(t, c.RequestHistory())

	assert.Equal(t, "fix the build", nextEvent(t, prompts).Text)
	assert.Equal(t, "yes", nextEvent(t, answers).Text)
	assert.Equal(t, bus.SignalHistoryRequested, nextEvent(t, history).Signal)
}

func TestMalformedLinesKeepConnection(t *testing.T) {
	mb, srv := startServer(t, Options{})
	prompts := collect(mb, bus.SignalPromptSubmitted)

	c := connect(t, srv)
	require.NoError(t, c.WriteRaw([]byte("garbage\n{\"command\":\"nope\"}\n{\"command\":\"prompt\"}\n\n")))
	require.NoError(t, c.SendPrompt("still here"))

	assert.Equal(t, "still here", nextEvent(t, prompts).Text)
	assert.Equal(t, 1, srv.ConnectionCount())
}

func TestChunkedInbound(t *testing.T) {
	mb, srv := startServer(t, Options{})
	prompts := collect(mb, bus.SignalPromptSubmitted)

	c := connect(t, srv)
	msg := `{"command":"prompt","text":"a\nb"}` + "\n" + `{"command":"prompt","text":"c"}` + "\n"
	require.NoError(t, c.WriteRaw([]byte(msg[:7])))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.WriteRaw([]byte(msg[7:20])))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.WriteRaw([]byte(msg[20:])))

	assert.Equal(t, "a\nb", nextEvent(t, prompts).Text)
	assert.Equal(t, "c", nextEvent(t, prompts).Text)
}

func TestClientCloseRemovesSubscriptions(t *testing.T) {
	mb, srv := startServer(t, Options{})
	c := connect(t, srv)
	waitConnections(t, srv, 1)
	assert.Equal(t, 1, mb.SubscriberCount(bus.SignalResponse))

	require.NoError(t, c.Close())
	waitConnections(t, srv, 0)
	for _, sig := range outboundSignals {
		assert.Equal(t, 0, mb.SubscriberCount(sig), sig)
	}
}

func TestFinishedForwardingIsConfigurable(t *testing.T) {
	mb, srv := startServer(t, Options{ForwardFinished: false})
	c := connect(t, srv)
	waitConnections(t, srv, 1)

	mb.Publish(bus.Event{Signal: bus.SignalInteractionFinished})
	mb.Publish(bus.Event{Signal: bus.SignalThought, Text: "thinking"})
	assert.Equal(t, FrameThought, nextFrame(t, c).Type)

	mb2, srv2 := startServer(t, Options{ForwardFinished: true})
	c2 := connect(t, srv2)
	waitConnections(t, srv2, 1)
	mb2.Publish(bus.Event{Signal: bus.SignalInteractionFinished})
	assert.Equal(t, FrameDialogFinished, nextFrame(t, c2).Type)
}

func TestServerCloseDisconnectsClients(t *testing.T) {
	_, srv := startServer(t, Options{})
	c := connect(t, srv)
	waitConnections(t, srv, 1)

	require.NoError(t, srv.Close())
	assert.Equal(t, 0, srv.ConnectionCount())

	select {
	case _, ok := <-c.Frames():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("client not disconnected")
	}
	assert.Error(t, srv.Start())
}

func TestFullWriteQueueDropsFrames(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	mb := bus.NewMessageBus()
	c := newConnection(server, mb, Options{WriteQueueSize: 1}.withDefaults(), nil)
	c.subscribe()

	mb.Publish(bus.Event{Signal: bus.SignalResponse, Text: "one"})
	mb.Publish(bus.Event{Signal: bus.SignalResponse, Text: "two"})
	assert.Len(t, c.out, 1)

	c.Close()
	assert.Equal(t, 0, mb.SubscriberCount(bus.SignalResponse))
}
