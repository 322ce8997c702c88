package loader

import (
	"encoding/binary"
	"time"

	"github.com/DonKinzer/esp-tool/serial"
)

// mockClock advances instantly on Sleep so timeout paths run without real
// delays.
type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time        { return m.now }
func (m *mockClock) Sleep(d time.Duration) { m.now = m.now.Add(d) }

// mockPort simulates the device side of the loader protocol. Each Write is
// one command frame; the next scripted responder is invoked with it and
// its result becomes available to read.
type mockPort struct {
	incoming []byte
	frames   [][]byte
	script   []func(frame []byte) []byte
	controls []serial.Line
	breaks   []time.Duration
	flushed  int
	closed   bool
}

func (m *mockPort) Close() error            { m.closed = true; return nil }
func (m *mockPort) SetSpeed(baud int) error { return nil }
func (m *mockPort) Available() (int, error) { return len(m.incoming), nil }
func (m *mockPort) FlushInput() error       { m.incoming = nil; m.flushed++; return nil }

func (m *mockPort) Control(dtr, rts serial.Line) error {
	m.controls = append(m.controls, dtr, rts)
	return nil
}

func (m *mockPort) Break(d time.Duration) error {
	m.breaks = append(m.breaks, d)
	return nil
}

func (m *mockPort) Read(p []byte) (int, error) {
	n := copy(p, m.incoming)
	m.incoming = m.incoming[n:]
	return n, nil
}

func (m *mockPort) Write(p []byte) (int, error) {
	frame := append([]byte(nil), p...)
	m.frames = append(m.frames, frame)
	if len(m.script) > 0 {
		responder := m.script[0]
		m.script = m.script[1:]
		if reply := responder(frame); reply != nil {
			m.incoming = append(m.incoming, reply...)
		}
	}
	return len(p), nil
}

// respond schedules a responder for the next command frame.
func (m *mockPort) respond(reply []byte) {
	m.script = append(m.script, func([]byte) []byte { return reply })
}

// respondWith schedules a responder computed from the command frame.
func (m *mockPort) respondWith(fn func(frame []byte) []byte) {
	m.script = append(m.script, fn)
}

// stage makes bytes immediately available without a triggering write.
func (m *mockPort) stage(data ...byte) {
	m.incoming = append(m.incoming, data...)
}

// responseFrame builds a SLIP-framed response with the given opcode,
// header value and body.
func responseFrame(op byte, value uint32, body []byte) []byte {
	hdr := make([]byte, 8)
	hdr[0] = 0x01
	hdr[1] = op
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(body)))
	binary.LittleEndian.PutUint32(hdr[4:8], value)
	return serial.SlipFrame(append(hdr, body...))
}

// okFrame builds the standard success response for an opcode.
func okFrame(op byte) []byte {
	return responseFrame(op, 0, []byte{0, 0})
}

// valueFrame builds a READ_REG-style response carrying a header value.
func valueFrame(op byte, value uint32) []byte {
	return responseFrame(op, value, []byte{0, 0})
}

// slipDecode strips the framing and escapes of a complete SLIP frame.
func slipDecode(frame []byte) []byte {
	if len(frame) < 2 || frame[0] != serial.SlipEnd || frame[len(frame)-1] != serial.SlipEnd {
		return nil
	}
	var out []byte
	body := frame[1 : len(frame)-1]
	for i := 0; i < len(body); i++ {
		if body[i] != serial.SlipEsc {
			out = append(out, body[i])
			continue
		}
		i++
		switch body[i] {
		case serial.SlipEscEnd:
			out = append(out, serial.SlipEnd)
		case serial.SlipEscEsc:
			out = append(out, serial.SlipEsc)
		default:
			return nil
		}
	}
	return out
}

// newTestClient wires a Client to a fresh mock port and clock.
func newTestClient(opts ...Option) (*Client, *mockPort, *mockClock) {
	port := &mockPort{}
	clock := &mockClock{now: time.Unix(1000, 0)}
	c := New(append([]Option{WithClock(clock)}, opts...)...)
	c.AttachPort(port)
	return c, port, clock
}
