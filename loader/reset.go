package loader

import (
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/DonKinzer/esp-tool/serial"
)

// ResetMode selects the hardware reset strategy used to put the device into
// the ROM loader. The wiring between the DTR/RTS control lines and the
// RST/GPIO0 pins varies between board designs.
type ResetMode int

const (
	// ResetNone performs no reset; the user presses the buttons.
	ResetNone ResetMode = iota

	// ResetAuto: DTR controls RST via a capacitor, RTS pulls down GPIO0.
	ResetAuto

	// ResetDTROnly: DTR controls RST via a capacitor and pulls down GPIO0.
	ResetDTROnly

	// ResetCK: DTR pulls down GPIO0, RTS pulls down RST.
	ResetCK

	// ResetWifio: DTR controls RST via a capacitor, TxD controls GPIO0
	// via a PNP transistor (driven with a break).
	ResetWifio

	// ResetNodeMCU: DTR and RTS jointly control RST and GPIO0 through a
	// two-transistor network.
	ResetNodeMCU
)

// Hold times of the NodeMCU two-transistor sequence.
const (
	resetHoldTime = 100 * time.Millisecond
	bootHoldTime  = 50 * time.Millisecond
)

// ParseResetMode resolves a reset mode designator, ignoring case.
func ParseResetMode(desc string) (ResetMode, bool) {
	switch strings.ToLower(desc) {
	case "none":
		return ResetNone, true
	case "auto":
		return ResetAuto, true
	case "dtronly":
		return ResetDTROnly, true
	case "ck":
		return ResetCK, true
	case "wifio":
		return ResetWifio, true
	case "nodemcu":
		return ResetNodeMCU, true
	}
	return ResetNone, false
}

func (m ResetMode) String() string {
	switch m {
	case ResetNone:
		return "none"
	case ResetAuto:
		return "auto"
	case ResetDTROnly:
		return "dtronly"
	case ResetCK:
		return "ck"
	case ResetWifio:
		return "wifio"
	case ResetNodeMCU:
		return "nodemcu"
	}
	return "unknown"
}

// OpenConfig returns the serial configuration for this reset mode,
// including the initial DTR/RTS levels the wiring expects at open time.
func (m ResetMode) OpenConfig() serial.Config {
	cfg := serial.Config{DataBits: 8}
	switch m {
	case ResetAuto, ResetNodeMCU, ResetCK:
		cfg.DTR = serial.LineLow
		cfg.RTS = serial.LineLow
	case ResetDTROnly, ResetWifio:
		cfg.DTR = serial.LineLow
	}
	return cfg
}

// ResetDevice performs the hardware reset pulse sequence for the mode.
// With forApp false the device is reset into the ROM loader (GPIO0 held
// low); with forApp true it is reset into the application.
func (c *Client) ResetDevice(mode ResetMode, forApp bool) {
	if !c.IsCommOpen() || mode == ResetNone {
		return
	}
	glog.V(1).Infof("resetting device (%s, forApp=%v)", mode, forApp)
	if forApp {
		c.resetForApp(mode)
	} else {
		c.resetForLoader(mode)
	}
	c.connected = false
}

func (c *Client) resetForLoader(mode ResetMode) {
	switch mode {
	case ResetAuto:
		// Ensure DTR is idle and GPIO0 is pulled low.
		c.ch.Control(serial.LineLow, serial.LineHigh)

		// Send a reset pulse.
		c.ch.Control(serial.LineHigh, serial.LineLeave)
		c.clock.Sleep(5 * time.Millisecond)
		c.ch.Control(serial.LineLow, serial.LineLeave)

		// Let the ROM sample GPIO0, then release it.
		c.clock.Sleep(250 * time.Millisecond)
		c.ch.Control(serial.LineLeave, serial.LineLow)

	case ResetDTROnly:
		// DTR drives both RST and GPIO0; a single pulse does it all.
		c.ch.Control(serial.LineLow, serial.LineLeave)
		c.ch.Control(serial.LineHigh, serial.LineLeave)
		c.clock.Sleep(5 * time.Millisecond)
		c.ch.Control(serial.LineLow, serial.LineLeave)
		c.clock.Sleep(250 * time.Millisecond)

	case ResetCK:
		// Pull RST and GPIO0 low together.
		c.ch.Control(serial.LineHigh, serial.LineHigh)
		c.clock.Sleep(5 * time.Millisecond)
		c.ch.Control(serial.LineLeave, serial.LineLow)
		c.clock.Sleep(75 * time.Millisecond)
		c.ch.Control(serial.LineLow, serial.LineLeave)

	case ResetWifio:
		// Reset pulse on DTR.
		c.ch.Control(serial.LineLow, serial.LineLeave)
		c.ch.Control(serial.LineHigh, serial.LineLeave)
		c.clock.Sleep(5 * time.Millisecond)
		c.ch.Control(serial.LineLow, serial.LineLeave)

		// Hold GPIO0 low through the PNP with a break on TxD.
		c.ch.Break(250 * time.Millisecond)
		c.clock.Sleep(250 * time.Millisecond)

	case ResetNodeMCU:
		// Assert RST with GPIO0 released.
		c.ch.Control(serial.LineLow, serial.LineHigh)
		c.clock.Sleep(resetHoldTime)

		// Swap: hold GPIO0 low while RST is released.
		c.ch.Control(serial.LineHigh, serial.LineLow)
		c.clock.Sleep(bootHoldTime)
		c.ch.Control(serial.LineLow, serial.LineLeave)
	}
}

func (c *Client) resetForApp(mode ResetMode) {
	switch mode {
	case ResetAuto, ResetDTROnly, ResetWifio:
		// Reset pulse on DTR with GPIO0 left high.
		c.ch.Control(serial.LineLow, serial.LineLow)
		c.ch.Control(serial.LineHigh, serial.LineLeave)
		c.clock.Sleep(5 * time.Millisecond)
		c.ch.Control(serial.LineLow, serial.LineLeave)

	case ResetCK, ResetNodeMCU:
		// Reset pulse on RTS with GPIO0 left high.
		c.ch.Control(serial.LineLow, serial.LineHigh)
		c.clock.Sleep(5 * time.Millisecond)
		c.ch.Control(serial.LineLeave, serial.LineLow)
	}
}
