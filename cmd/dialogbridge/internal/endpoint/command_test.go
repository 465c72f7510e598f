package endpoint

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/dialogbridge/pkg/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dbe")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv(config.EnvBridgeHome, dir)
	t.Setenv(config.EnvBridgeConfig, "")
	t.Setenv("DIALOGBRIDGE_REMOTE_SOCKET_DIR", dir)
	return dir
}

func TestNewEndpointCommand(t *testing.T) {
	cmd := NewEndpointCommand()
	assert.Equal(t, "endpoint [pid]", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.False(t, cmd.HasSubCommands())
}

func TestEndpointForPID(t *testing.T) {
	isolate(t)
	cmd := NewEndpointCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"4242"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "dialogbridge-4242")
}

func TestListEmpty(t *testing.T) {
	isolate(t)
	cmd := NewListCommand()
	assert.True(t, cmd.HasAlias("ls"))
	assert.NotNil(t, cmd.Flags().Lookup("json"))

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "No running sessions.", strings.TrimSpace(out.String()))

	out.Reset()
	cmd = NewListCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "[]", strings.TrimSpace(out.String()))
}
