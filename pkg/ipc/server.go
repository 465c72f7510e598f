package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sipeed/dialogbridge/pkg/bus"
	"github.com/sipeed/dialogbridge/pkg/config"
	"github.com/sipeed/dialogbridge/pkg/logger"
)

type Options struct {
	Prefix          string
	SocketDir       string
	WriteQueueSize  int
	MaxMessageBytes int
	ForwardFinished bool
	// PID names the endpoint; defaults to the current process.
	PID int
}

func OptionsFromConfig(rc config.RemoteConfig) Options {
	return Options{
		Prefix:          rc.EndpointPrefix,
		SocketDir:       rc.SocketDir,
		WriteQueueSize:  rc.WriteQueueSize,
		MaxMessageBytes: rc.MaxMessageBytes,
		ForwardFinished: rc.ForwardFinished,
	}
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = "dialogbridge"
	}
	if o.SocketDir == "" {
		o.SocketDir = os.TempDir()
	}
	if o.WriteQueueSize <= 0 {
		o.WriteQueueSize = 64
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	if o.PID == 0 {
		o.PID = os.Getpid()
	}
	return o
}

// Server accepts controller connections on the local endpoint and bridges
// them to the bus.
type Server struct {
	bus      *bus.MessageBus
	opts     Options
	endpoint string

	mu     sync.Mutex
	ln     net.Listener
	conns  map[string]*Connection
	closed bool
	wg     sync.WaitGroup
}

func NewServer(mb *bus.MessageBus, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		bus:      mb,
		opts:     opts,
		endpoint: EndpointName(opts.Prefix, opts.SocketDir, opts.PID),
		conns:    make(map[string]*Connection),
	}
}

// Endpoint returns the name controllers dial.
func (s *Server) Endpoint() string { return s.endpoint }

// Start binds the endpoint and begins accepting in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("server closed")
	}
	if s.ln != nil {
		return nil
	}

	ln, err := listen(s.endpoint)
	if err != nil {
		logger.ErrorCF("ipc", "Failed to bind endpoint", map[string]any{
			"endpoint": s.endpoint,
			"error":    err.Error(),
		})
		return fmt.Errorf("listen on %s: %w", s.endpoint, err)
	}
	s.ln = ln
	logger.InfoCF("ipc", "Listening", map[string]any{"endpoint": s.endpoint})

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.isClosed() {
				return
			}
			logger.WarnCF("ipc", "Accept failed", map[string]any{"error": err.Error()})
			continue
		}
		s.track(nc)
	}
}

func (s *Server) track(nc net.Conn) {
	c := newConnection(nc, s.bus, s.opts, s.untrack)
	c.subscribe()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return
	}
	s.conns[c.id] = c
	s.mu.Unlock()

	logger.InfoCF("ipc", "Client connected", map[string]any{"conn": c.id})

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops accepting, closes every connection and waits for their
// goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
	cleanupEndpoint(s.endpoint)
	return err
}
