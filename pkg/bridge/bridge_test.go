package bridge

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sipeed/dialogbridge/pkg/audit"
	"github.com/sipeed/dialogbridge/pkg/config"
	"github.com/sipeed/dialogbridge/pkg/dialog"
	"github.com/sipeed/dialogbridge/pkg/history"
	"github.com/sipeed/dialogbridge/pkg/ipc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "dbb")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.DefaultConfig()
	cfg.Remote.SocketDir = dir
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(dir, "dialogs.log")
	return cfg
}

func frame(t *testing.T, c *ipc.Client) ipc.Frame {
	t.Helper()
	select {
	case f, ok := <-c.Frames():
		require.True(t, ok)
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return ipc.Frame{}
	}
}

func TestBridgeEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	items := []dialog.HistoryItem{{Type: dialog.ItemUser, Text: "build it"}}
	b := New(cfg, nil, history.SourceFunc(func() []dialog.HistoryItem { return items }))
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()
	require.NotEmpty(t, b.Endpoint())

	prompts := make(chan string, 1)
	b.OnPrompt(func(text string) { prompts <- text })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := ipc.Dial(ctx, b.Endpoint())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SendPrompt("run the tests"))
	select {
	case p := <-prompts:
		assert.Equal(t, "run the tests", p)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt not delivered")
	}

	outcome := make(chan dialog.ToolOutcome, 1)
	b.Update(&dialog.Snapshot{Pending: []dialog.HistoryItem{{
		Type: dialog.ItemToolGroup,
		Tools: []dialog.ToolCall{{
			CallID: "call-1",
			Name:   "run_shell_command",
			Status: dialog.ToolConfirming,
			Confirmation: &dialog.ConfirmationDetails{
				Type:      dialog.ConfirmExec,
				Command:   "go test ./...",
				OnConfirm: func(o dialog.ToolOutcome) { outcome <- o },
			},
		}},
	}}})

	f := frame(t, c)
	assert.Equal(t, ipc.FrameDialog, f.Type)
	assert.Equal(t, "tool:call-1", f.DialogType)
	assert.Equal(t, []string{"yes", "no"}, f.Options)

	require.NoError(t, c.Answer("yes"))
	select {
	case o := <-outcome:
		assert.Equal(t, dialog.OutcomeProceedOnce, o)
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation not resolved")
	}
	assert.Equal(t, ipc.FrameDialogFinished, frame(t, c).Type)

	b.Response("all green")
	assert.Equal(t, ipc.Frame{Type: ipc.FrameResponse, Text: "all green"}, frame(t, c))

	require.NoError(t, c.RequestHistory())
	f = frame(t, c)
	assert.Equal(t, ipc.FrameResponse, f.Type)
	assert.Contains(t, f.Text, "[USER]\nbuild it\n")

	key, err := audit.LoadKey(cfg.Audit.Path)
	require.NoError(t, err)
	assert.NoError(t, audit.VerifyFile(cfg.Audit.Path, key))
}

func TestBridgeBindFailureIsNotFatal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("named pipes do not use the socket directory")
	}
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.Remote.SocketDir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	// A regular file where the socket directory should be.
	cfg.Remote.SocketDir = blocker
	cfg.Audit.Enabled = false

	b := New(cfg, nil, nil)
	require.NoError(t, b.Start(context.Background()))
	assert.Empty(t, b.Endpoint())

	b.Update(&dialog.Snapshot{ThemeDialogOpen: true})
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestBridgeRemoteDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Enabled = false
	cfg.Audit.Enabled = false

	b := New(cfg, nil, nil)
	require.NoError(t, b.Start(context.Background()))
	assert.Empty(t, b.Endpoint())
	require.NoError(t, b.Close())
	assert.Error(t, b.Start(context.Background()))
}
