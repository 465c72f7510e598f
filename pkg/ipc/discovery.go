package ipc

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sipeed/dialogbridge/pkg/logger"
)

// Endpoint is a bridge endpoint found on this machine.
type Endpoint struct {
	PID  int    `json:"pid"`
	Path string `json:"path"`
}

// ListEndpoints returns the endpoints of running bridge processes, ordered
// by pid. Sockets left by processes that are gone are removed.
func ListEndpoints(opts Options) ([]Endpoint, error) {
	opts = opts.withDefaults()
	paths, err := endpointCandidates(opts.Prefix, opts.SocketDir)
	if err != nil {
		return nil, err
	}

	var out []Endpoint
	for _, p := range paths {
		pid, ok := pidFromEndpoint(opts.Prefix, p)
		if !ok {
			continue
		}
		if !processAlive(pid) {
			logger.DebugCF("ipc", "Removing stale endpoint", map[string]any{"endpoint": p, "pid": pid})
			cleanupEndpoint(p)
			continue
		}
		out = append(out, Endpoint{PID: pid, Path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// ResolveEndpoint returns the endpoint for pid, or the only live endpoint
// when pid is 0.
func ResolveEndpoint(opts Options, pid int) (string, error) {
	opts = opts.withDefaults()
	if pid > 0 {
		ep := EndpointName(opts.Prefix, opts.SocketDir, pid)
		if !processAlive(pid) {
			return "", &NoEndpointError{PID: pid}
		}
		return ep, nil
	}
	eps, err := ListEndpoints(opts)
	if err != nil {
		return "", err
	}
	switch len(eps) {
	case 0:
		return "", &NoEndpointError{}
	case 1:
		return eps[0].Path, nil
	default:
		return "", &AmbiguousEndpointError{Endpoints: eps}
	}
}

type NoEndpointError struct {
	PID int
}

func (e *NoEndpointError) Error() string {
	if e.PID > 0 {
		return "no running bridge with pid " + strconv.Itoa(e.PID)
	}
	return "no running bridge found"
}

type AmbiguousEndpointError struct {
	Endpoints []Endpoint
}

func (e *AmbiguousEndpointError) Error() string {
	pids := make([]string, len(e.Endpoints))
	for i, ep := range e.Endpoints {
		pids[i] = strconv.Itoa(ep.PID)
	}
	return "several bridges running, pick a pid: " + strings.Join(pids, ", ")
}

func parsePID(prefix, name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(rest)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

