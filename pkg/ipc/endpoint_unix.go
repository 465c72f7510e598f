//go:build !windows

package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// EndpointName returns the socket path for the bridge in process pid.
func EndpointName(prefix, dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%d.sock", prefix, pid))
}

func listen(endpoint string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(endpoint), 0o700); err != nil {
		return nil, err
	}
	// A socket left behind by a crashed process with the same pid.
	if err := os.Remove(endpoint); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(endpoint, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}

func cleanupEndpoint(endpoint string) {
	_ = os.Remove(endpoint)
}

func endpointCandidates(prefix, dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, prefix+"-*.sock"))
}

func pidFromEndpoint(prefix, endpoint string) (int, bool) {
	name := strings.TrimSuffix(filepath.Base(endpoint), ".sock")
	return parsePID(prefix, name)
}
