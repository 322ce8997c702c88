package serial

import (
	"time"

	"github.com/juju/errors"
)

// Channel manages a serial port together with its receive queue.
type Channel struct {
	port  Port
	queue *Queue
}

// OpenChannel opens the named device and wraps it in a channel.
func OpenChannel(desc string, baud int, cfg Config) (*Channel, error) {
	port, err := Open(desc, baud, cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewChannel(port), nil
}

// NewChannel wraps an already opened port.
func NewChannel(port Port) *Channel {
	return &Channel{port: port, queue: NewQueue(port, 0)}
}

// IsOpen reports whether the channel has a live port.
func (c *Channel) IsOpen() bool {
	return c != nil && c.port != nil
}

// Close releases the port.
func (c *Channel) Close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.queue.Reset(nil)
	c.port = nil
	return err
}

// SetSpeed changes the baud rate.
func (c *Channel) SetSpeed(baud int) error {
	return c.port.SetSpeed(baud)
}

// Available reports the total bytes ready to read.
func (c *Channel) Available() int {
	return c.queue.Available()
}

// Flush drops all pending receive data, local and driver-side.
func (c *Channel) Flush() {
	c.queue.Flush()
}

// Read copies up to len(buf) already-received bytes.
func (c *Channel) Read(buf []byte) int {
	n := c.queue.Refresh()
	if len(buf) < n {
		n = len(buf)
	}
	return c.queue.GetData(buf[:n])
}

// ReadByte returns the next received byte, or zero when none is queued.
func (c *Channel) ReadByte() byte {
	var b [1]byte
	if c.Read(b[:]) != 1 {
		return 0
	}
	return b[0]
}

// Write sends buf to the port.
func (c *Channel) Write(buf []byte) (int, error) {
	return c.port.Write(buf)
}

// Control drives the DTR/RTS lines.
func (c *Channel) Control(dtr, rts Line) error {
	return c.port.Control(dtr, rts)
}

// Break holds the transmit line in break state for the duration.
func (c *Channel) Break(d time.Duration) error {
	return c.port.Break(d)
}
