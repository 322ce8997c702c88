package loader

import (
	"time"

	"github.com/golang/glog"

	"github.com/DonKinzer/esp-tool/protocol"
)

// Connection loop bounds: outer reset attempts, sync calls per attempt.
const (
	connectResets  = 4
	connectSyncs   = 4
	connectTimeout = 500 * time.Millisecond
)

// syncPayload returns the fixed 36-byte auto-baud pattern.
func syncPayload() []byte {
	buf := make([]byte, 36)
	buf[0] = 0x07
	buf[1] = 0x07
	buf[2] = 0x12
	buf[3] = 0x20
	for i := 4; i < len(buf); i++ {
		buf[i] = 0x55
	}
	return buf
}

// Sync sends a synchronizing packet to induce the ROM to lock onto the
// baud rate. On success any echoed replies are drained and discarded; on
// failure the receive side is flushed after a short settle delay.
func (c *Client) Sync(timeout time.Duration) error {
	err := c.doCommand(protocol.OpSync, 0, nil, timeout, syncPayload())
	if err != nil {
		c.clock.Sleep(100 * time.Millisecond)
		c.FlushComm()
		return err
	}

	// The ROM answers a sync burst with several copies; read until one
	// read comes back empty.
	for {
		_, bodyLen, err := c.readPacket(protocol.OpSync, nil, false, timeout)
		if err != nil || bodyLen != 2 {
			break
		}
	}
	return nil
}

// Connect establishes a connection to the ROM loader, driving the chosen
// hardware reset before each round of sync attempts.
func (c *Client) Connect(resetMode ResetMode) error {
	if c.connected {
		return nil
	}
	attempt := 0
	for i := 0; i < connectResets; i++ {
		c.ResetDevice(resetMode, false)

		for j := 0; j < connectSyncs; j++ {
			attempt++
			c.reportProgress(Progress{Phase: PhaseConnect, Block: attempt, TotalBlocks: connectResets * connectSyncs})
			if err := c.Sync(connectTimeout); err == nil {
				glog.V(1).Infof("connection established after %d sync attempts", attempt)
				c.connected = true
				return nil
			}
		}
	}
	return protocol.Errf(protocol.CodeConnect, "no response after %d sync attempts", attempt)
}

// Run makes the ROM jump to the user code, optionally rebooting first.
func (c *Client) Run(reboot bool) error {
	if err := c.flashBegin(0, 0); err != nil {
		return err
	}
	return c.flashFinish(reboot)
}
