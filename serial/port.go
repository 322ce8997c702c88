package serial

import (
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	bugst "go.bug.st/serial"
)

// pollInterval is the device read timeout used to emulate non-blocking
// reads and driver-queue polling.
const pollInterval = time.Millisecond

// devicePort adapts go.bug.st/serial to the Port interface. The underlying
// library exposes no bytes-available query, so the adapter polls the device
// with a short read timeout and keeps anything received in a spill buffer
// until the caller reads it.
type devicePort struct {
	p     bugst.Port
	spill []byte
}

// Open opens the named device at the given baud rate and applies the
// configuration, including the initial DTR/RTS levels.
func Open(desc string, baud int, cfg Config) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: baud,
		DataBits: cfg.DataBits,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	switch cfg.Parity {
	case ParityEven:
		mode.Parity = bugst.EvenParity
	case ParityOdd:
		mode.Parity = bugst.OddParity
	}
	switch cfg.StopBits {
	case StopBits1Half:
		mode.StopBits = bugst.OnePointFiveStopBits
	case StopBits2:
		mode.StopBits = bugst.TwoStopBits
	}

	p, err := bugst.Open(desc, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s", desc)
	}
	if err := p.SetReadTimeout(pollInterval); err != nil {
		p.Close()
		return nil, errors.Trace(err)
	}
	dp := &devicePort{p: p}
	if err := dp.Control(cfg.DTR, cfg.RTS); err != nil {
		p.Close()
		return nil, errors.Trace(err)
	}
	glog.V(1).Infof("opened %s at %d baud", desc, baud)
	return dp, nil
}

func (d *devicePort) Close() error {
	return d.p.Close()
}

func (d *devicePort) SetSpeed(baud int) error {
	return d.p.SetMode(&bugst.Mode{BaudRate: baud, DataBits: 8, Parity: bugst.NoParity, StopBits: bugst.OneStopBit})
}

func (d *devicePort) Read(p []byte) (int, error) {
	if len(d.spill) > 0 {
		n := copy(p, d.spill)
		d.spill = d.spill[n:]
		return n, nil
	}
	return d.p.Read(p)
}

func (d *devicePort) Write(p []byte) (int, error) {
	return d.p.Write(p)
}

func (d *devicePort) Available() (int, error) {
	// Poll the device once; whatever arrives is retained for Read.
	var buf [512]byte
	n, err := d.p.Read(buf[:])
	if err != nil {
		return len(d.spill), errors.Trace(err)
	}
	if n > 0 {
		d.spill = append(d.spill, buf[:n]...)
	}
	return len(d.spill), nil
}

func (d *devicePort) Control(dtr, rts Line) error {
	if dtr != LineLeave {
		if err := d.p.SetDTR(dtr == LineHigh); err != nil {
			return errors.Trace(err)
		}
	}
	if rts != LineLeave {
		if err := d.p.SetRTS(rts == LineHigh); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *devicePort) Break(dur time.Duration) error {
	return d.p.Break(dur)
}

func (d *devicePort) FlushInput() error {
	d.spill = nil
	return d.p.ResetInputBuffer()
}
