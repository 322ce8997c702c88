package serial

// SLIP framing bytes. Frames begin and end with End; End and Esc occurring
// as data are replaced by the two-byte sequences {Esc, EscEnd} and
// {Esc, EscEsc}.
const (
	SlipEnd    = 0xc0
	SlipEsc    = 0xdb
	SlipEscEnd = 0xdc
	SlipEscEsc = 0xdd
)

// SlipResult is the outcome of a single SLIP-decoded read.
type SlipResult int

const (
	// SlipNoData means no byte was available
	SlipNoData SlipResult = 0

	// SlipPlain means an unescaped byte was delivered
	SlipPlain SlipResult = 1

	// SlipEscaped means an escape sequence was decoded and delivered
	SlipEscaped SlipResult = 2

	// SlipBareEnd means a bare frame-end byte appeared inside a body
	SlipBareEnd SlipResult = -1

	// SlipEscIncomplete means an escape byte arrived without its follower;
	// the caller may retry once more data is available
	SlipEscIncomplete SlipResult = -2

	// SlipEscInvalid means an escape byte was followed by something other
	// than EscEnd or EscEsc
	SlipEscInvalid SlipResult = -3
)

// ReadByteSLIP reads one byte with SLIP decoding. The escape follower is
// consumed only when it is already queued, so an incomplete escape is a
// soft retry, not a lost byte.
func (c *Channel) ReadByteSLIP() (byte, SlipResult) {
	if c.Available() == 0 {
		return 0, SlipNoData
	}
	// An escape byte stays queued until its follower has arrived.
	if q := c.queue; q.count > 0 && q.data[q.head] == SlipEsc && c.Available() < 2 {
		return 0, SlipEscIncomplete
	}
	b := c.ReadByte()
	if b == SlipEnd {
		return b, SlipBareEnd
	}
	if b != SlipEsc {
		return b, SlipPlain
	}
	if c.Available() == 0 {
		return 0, SlipEscIncomplete
	}
	switch c.ReadByte() {
	case SlipEscEnd:
		return SlipEnd, SlipEscaped
	case SlipEscEsc:
		return SlipEsc, SlipEscaped
	}
	return 0, SlipEscInvalid
}

// WriteByte sends one byte, optionally SLIP encoding it. The return value
// is the number of bytes put on the wire (1 or 2).
func (c *Channel) WriteByte(b byte, slipEncode bool) (int, error) {
	buf := [2]byte{b}
	cnt := 1
	if slipEncode {
		switch b {
		case SlipEnd:
			buf[0], buf[1] = SlipEsc, SlipEscEnd
			cnt = 2
		case SlipEsc:
			buf[0], buf[1] = SlipEsc, SlipEscEsc
			cnt = 2
		}
	}
	return c.Write(buf[:cnt])
}

// SlipEncode appends the SLIP encoding of data to dst, without frame
// sentinels.
func SlipEncode(dst, data []byte) []byte {
	for _, b := range data {
		switch b {
		case SlipEnd:
			dst = append(dst, SlipEsc, SlipEscEnd)
		case SlipEsc:
			dst = append(dst, SlipEsc, SlipEscEsc)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// SlipFrame returns data as a complete SLIP frame, sentinels included.
func SlipFrame(data []byte) []byte {
	frame := make([]byte, 0, len(data)+2)
	frame = append(frame, SlipEnd)
	frame = SlipEncode(frame, data)
	return append(frame, SlipEnd)
}
