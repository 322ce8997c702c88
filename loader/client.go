package loader

import (
	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/serial"
)

// Client implements the ROM loader protocol over an owned serial channel.
// A Client is not safe for concurrent use.
type Client struct {
	ch        *serial.Channel
	clock     serial.Clock
	connected bool

	quiet       bool
	autoRun     bool
	noTimeLimit bool
	progress    ProgressFunc
}

// New creates a Client with the given options. The serial channel is
// attached later with OpenComm or AttachPort.
func New(opts ...Option) *Client {
	c := &Client{
		clock:   serial.SystemClock(),
		autoRun: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenComm opens the serial port if not already open.
func (c *Client) OpenComm(desc string, baud int, cfg serial.Config) error {
	if c.IsCommOpen() {
		return nil
	}
	ch, err := serial.OpenChannel(desc, baud, cfg)
	if err != nil {
		return protocol.Errf(protocol.CodeCommOpen, "can't open port %s: %v", desc, err)
	}
	c.ch = ch
	return nil
}

// AttachPort binds the client to an already opened port. Used by tests and
// by callers that manage the device themselves.
func (c *Client) AttachPort(port serial.Port) {
	c.ch = serial.NewChannel(port)
	c.connected = false
}

// IsCommOpen reports whether the serial channel is open.
func (c *Client) IsCommOpen() bool {
	return c.ch.IsOpen()
}

// CloseComm closes the serial channel.
func (c *Client) CloseComm() error {
	c.connected = false
	if !c.ch.IsOpen() {
		return nil
	}
	return errors.Trace(c.ch.Close())
}

// SetCommSpeed changes the baud rate of the open channel.
func (c *Client) SetCommSpeed(baud int) error {
	return errors.Trace(c.ch.SetSpeed(baud))
}

// FlushComm drops any pending receive data.
func (c *Client) FlushComm() {
	c.ch.Flush()
}

// BytesAvailable reports the bytes ready to read from the device.
func (c *Client) BytesAvailable() int {
	return c.ch.Available()
}

// ReadByte returns the next byte from the device, or zero when none is
// pending. Used by the monitor loop.
func (c *Client) ReadByte() byte {
	return c.ch.ReadByte()
}

// WriteByte sends a single raw byte to the device.
func (c *Client) WriteByte(b byte) {
	if _, err := c.ch.WriteByte(b, false); err != nil {
		glog.Errorf("writing byte to device: %v", err)
	}
}

// Quiet reports whether progress prose is suppressed.
func (c *Client) Quiet() bool {
	return c.quiet
}

// SetQuiet controls progress prose suppression. Errors are never suppressed.
func (c *Client) SetQuiet(quiet bool) {
	c.quiet = quiet
}

// AutoRun reports whether the device is started after operations complete.
func (c *Client) AutoRun() bool {
	return c.autoRun
}

// SetAutoRun controls starting the device after operations complete.
func (c *Client) SetAutoRun(run bool) {
	c.autoRun = run
}

// SetNoTimeLimit controls reply timeout enforcement. Diagnostic use only.
func (c *Client) SetNoTimeLimit(disable bool) {
	c.noTimeLimit = disable
}

// reportProgress invokes the progress callback if one is configured and the
// client is not quiet.
func (c *Client) reportProgress(p Progress) {
	if c.progress != nil && !c.quiet {
		c.progress(p)
	}
}
