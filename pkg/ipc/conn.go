package ipc

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sipeed/dialogbridge/pkg/bus"
	"github.com/sipeed/dialogbridge/pkg/logger"
)

const readChunkSize = 4096

var outboundSignals = []bus.Signal{
	bus.SignalResponse,
	bus.SignalThought,
	bus.SignalCodeDiff,
	bus.SignalToolCall,
	bus.SignalDialogOpened,
	bus.SignalInteractionFinished,
}

// Connection is one accepted controller.
type Connection struct {
	id     string
	conn   net.Conn
	bus    *bus.MessageBus
	opts   Options
	out    chan []byte
	done   chan struct{}
	subs   []bus.Subscription
	faults *rate.Limiter

	mu         sync.Mutex
	suppressed int

	closeOnce sync.Once
	onClose   func(*Connection)
}

func newConnection(conn net.Conn, mb *bus.MessageBus, opts Options, onClose func(*Connection)) *Connection {
	return &Connection{
		id:      uuid.NewString(),
		conn:    conn,
		bus:     mb,
		opts:    opts,
		out:     make(chan []byte, opts.WriteQueueSize),
		done:    make(chan struct{}),
		faults:  rate.NewLimiter(rate.Every(time.Second), 5),
		onClose: onClose,
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) subscribe() {
	name := "ipc:" + c.id
	for _, sig := range outboundSignals {
		if sig == bus.SignalInteractionFinished && !c.opts.ForwardFinished {
			continue
		}
		c.subs = append(c.subs, c.bus.Subscribe(sig, name, c.forward))
	}
}

// forward runs on the bus dispatch goroutine and must not block.
func (c *Connection) forward(ev bus.Event) {
	line, ok, err := EncodeEvent(ev)
	if err != nil {
		logger.ErrorCF("ipc", "Failed to encode frame", map[string]any{
			"conn":   c.id,
			"signal": string(ev.Signal),
			"error":  err.Error(),
		})
		return
	}
	if ok {
		c.enqueue(line)
	}
}

func (c *Connection) enqueue(line []byte) {
	select {
	case <-c.done:
	case c.out <- line:
	default:
		logger.WarnCF("ipc", "Write queue full, dropping frame", map[string]any{
			"conn":  c.id,
			"bytes": len(line),
		})
	}
}

func (c *Connection) readLoop() {
	defer c.Close()

	lb := NewLineBuffer(c.opts.MaxMessageBytes)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			lines, ferr := lb.Feed(chunk[:n])
			if ferr != nil {
				c.protocolFault(ferr, nil)
			}
			for _, line := range lines {
				c.handleLine(line)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.WarnCF("ipc", "Read failed", map[string]any{"conn": c.id, "error": err.Error()})
			}
			return
		}
	}
}

func (c *Connection) handleLine(line []byte) {
	cmd, err := DecodeCommand(line)
	if err != nil {
		c.protocolFault(err, line)
		return
	}
	logger.DebugCF("ipc", "Command received", map[string]any{
		"conn":    c.id,
		"command": cmd.Command,
	})
	c.bus.Publish(cmd.Event())
}

func (c *Connection) protocolFault(err error, line []byte) {
	if !c.faults.Allow() {
		c.mu.Lock()
		c.suppressed++
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	suppressed := c.suppressed
	c.suppressed = 0
	c.mu.Unlock()

	fields := map[string]any{"conn": c.id, "error": err.Error()}
	if line != nil {
		fields["line"] = logger.Truncate(string(line), 50)
	}
	if suppressed > 0 {
		fields["suppressed"] = suppressed
	}
	logger.WarnCF("ipc", "Dropped invalid message", fields)
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case line := <-c.out:
			if _, err := c.conn.Write(line); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					logger.WarnCF("ipc", "Write failed, closing connection", map[string]any{
						"conn":  c.id,
						"error": err.Error(),
					})
				}
				c.Close()
				return
			}
		}
	}
}

// Close removes the connection's subscriptions and closes the socket. Safe
// to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		for _, sub := range c.subs {
			c.bus.Unsubscribe(sub)
		}
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
		logger.InfoCF("ipc", "Client disconnected", map[string]any{"conn": c.id})
	})
}
