//go:build windows

package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/Microsoft/go-winio"
)

const pipeRoot = `\\.\pipe\`

// EndpointName returns the named pipe for the bridge in process pid. dir is
// unused on Windows.
func EndpointName(prefix, _ string, pid int) string {
	return fmt.Sprintf(`%s%s-%d`, pipeRoot, prefix, pid)
}

func listen(endpoint string) (net.Listener, error) {
	return winio.ListenPipe(endpoint, &winio.PipeConfig{
		InputBufferSize:  64 * 1024,
		OutputBufferSize: 64 * 1024,
	})
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, endpoint)
}

func cleanupEndpoint(string) {}

func endpointCandidates(prefix, _ string) ([]string, error) {
	entries, err := os.ReadDir(pipeRoot)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix+"-") {
			out = append(out, pipeRoot+e.Name())
		}
	}
	return out, nil
}

func pidFromEndpoint(prefix, endpoint string) (int, bool) {
	return parsePID(prefix, strings.TrimPrefix(endpoint, pipeRoot))
}
