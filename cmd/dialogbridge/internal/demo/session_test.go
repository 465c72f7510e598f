package demo

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/dialogbridge/pkg/bus"
	"github.com/sipeed/dialogbridge/pkg/dialog"
)

type fakeHost struct {
	mu        sync.Mutex
	snapshots []*dialog.Snapshot
	responses []string
	tools     []string
	onPrompt  func(string)
}

func (h *fakeHost) Update(s *dialog.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, s)
}

func (h *fakeHost) Response(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, text)
}

func (h *fakeHost) ToolCall(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools = append(h.tools, text)
}

func (h *fakeHost) OnPrompt(fn func(string)) { h.onPrompt = fn }

func (h *fakeHost) last() *dialog.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshots[len(h.snapshots)-1]
}

func TestPromptRequestsConfirmation(t *testing.T) {
	host := &fakeHost{}
	sess := NewSession(&bytes.Buffer{})
	sess.Attach(host)
	require.NotNil(t, host.onPrompt)

	host.onPrompt("hello")

	snap := host.last()
	calls := dialog.NewDetector(sess).ScanToolConfirmations(snap)
	require.Len(t, calls, 1)
	assert.Equal(t, "Allow execution of: 'echo hello'?", calls[0].Prompt)
	assert.Equal(t, []string{"echo hello"}, host.tools)

	require.NoError(t, calls[0].Handle.Resolve("yes"))
	snap = host.last()
	assert.Empty(t, snap.Pending)
	assert.Contains(t, host.responses, "Command output: hello")
	assert.Len(t, sess.History(), 4)
}

func TestSlashPromptsOpenDialogs(t *testing.T) {
	host := &fakeHost{}
	sess := NewSession(&bytes.Buffer{})
	sess.Attach(host)
	d := dialog.NewDetector(sess)

	host.onPrompt("/model")
	ia := d.DetectGlobal(host.last())
	require.NotNil(t, ia)
	assert.Equal(t, dialog.KindModelPicker, ia.Kind)
	assert.Equal(t, []string{"pro", "flash", "flash-lite", "Manual", "close"}, ia.Options)

	require.NoError(t, ia.Handle.Resolve("flash"))
	assert.Equal(t, "flash", sess.Model())
	assert.Nil(t, d.DetectGlobal(host.last()))

	host.onPrompt("/theme")
	ia = d.DetectGlobal(host.last())
	require.NoError(t, ia.Handle.Resolve("cancel"))
	assert.Nil(t, d.DetectGlobal(host.last()))
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	host := &fakeHost{}
	sess := NewSession(&bytes.Buffer{})
	sess.Attach(host)

	host.onPrompt("/model")
	first := host.last()
	sess.SetModelDialogView(dialog.ModelViewManual)

	assert.Equal(t, dialog.ModelViewMain, first.ModelDialog.View)
	assert.Equal(t, dialog.ModelViewManual, host.last().ModelDialog.View)
}

func TestSessionThroughRouter(t *testing.T) {
	mb := bus.NewMessageBus()
	opened := make(chan bus.Dialog, 4)
	mb.Subscribe(bus.SignalDialogOpened, "test", func(ev bus.Event) { opened <- *ev.Dialog })

	sess := NewSession(&bytes.Buffer{})
	r := dialog.NewRouter(mb, sess)
	host := &routerHost{fakeHost: &fakeHost{}, router: r}
	sess.Attach(host)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	host.onPrompt("/trust")
	select {
	case d := <-opened:
		assert.Equal(t, "folder_trust", d.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("dialog not announced")
	}
}

type routerHost struct {
	*fakeHost
	router *dialog.Router
}

func (h *routerHost) Update(s *dialog.Snapshot) { h.router.Submit(s) }
