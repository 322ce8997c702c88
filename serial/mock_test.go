package serial

import "time"

// mockPort simulates a serial device for testing. Incoming data is staged
// in chunks so refill behavior can be exercised; written data is captured.
type mockPort struct {
	incoming []byte
	written  []byte
	closed   bool
	dtr, rts Line
	breaks   []time.Duration
	flushed  int
}

func (m *mockPort) Close() error            { m.closed = true; return nil }
func (m *mockPort) SetSpeed(baud int) error { return nil }
func (m *mockPort) Available() (int, error) { return len(m.incoming), nil }
func (m *mockPort) FlushInput() error       { m.incoming = nil; m.flushed++; return nil }
func (m *mockPort) Control(d, r Line) error { m.dtr, m.rts = d, r; return nil }
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
	m.written = append(m.written, p...)
	return len(p), nil
}

func (m *mockPort) stage(data ...byte) {
	m.incoming = append(m.incoming, data...)
}
