package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sipeed/dialogbridge/pkg/logger"
)

// Client is a controller connection to a bridge endpoint.
type Client struct {
	conn    net.Conn
	frames  chan Frame
	done    chan struct{}
	writeMu sync.Mutex
	once    sync.Once
	wg      sync.WaitGroup
}

// Dial connects to endpoint. Frames sent by the bridge are delivered on
// Frames until the connection closes.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	c := &Client{
		conn:   conn,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.frames)

	lb := NewLineBuffer(0)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			lines, _ := lb.Feed(chunk[:n])
			for _, line := range lines {
				f, derr := DecodeFrame(line)
				if derr != nil {
					logger.DebugCF("ipc", "Ignoring invalid frame", map[string]any{"error": derr.Error()})
					continue
				}
				select {
				case c.frames <- f:
				case <-c.done:
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.DebugCF("ipc", "Client read ended", map[string]any{"error": err.Error()})
			}
			return
		}
	}
}

// Frames returns the channel of inbound frames. It is closed when the
// connection ends.
func (c *Client) Frames() <-chan Frame { return c.frames }

func (c *Client) SendPrompt(text string) error {
	return c.send(Command{Command: CommandPrompt, Text: text})
}

func (c *Client) RequestHistory() error {
	return c.send(Command{Command: CommandGetHistory})
}

func (c *Client) Answer(token string) error {
	return c.send(Command{Command: CommandDialogResponse, Response: token})
}

func (c *Client) send(cmd Command) error {
	line, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Command, err)
	}
	return nil
}

// WriteRaw sends bytes as-is. Used to exercise framing.
func (c *Client) WriteRaw(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(p)
	return err
}

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}
