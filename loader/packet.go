package loader

import (
	"time"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/serial"
)

// Reader states of the response packet state machine.
const (
	pktBegin = iota
	pktHeader
	pktBody
	pktEnd
	pktDone
)

// waitPoll is the idle sleep while waiting for bytes to arrive.
const waitPoll = time.Millisecond

// expired reports whether the deadline passed, honoring the diagnostic
// no-time-limit flag. A zero timeout never expires.
func (c *Client) expired(deadline time.Time, timeout time.Duration) bool {
	return timeout != 0 && !c.noTimeLimit && c.clock.Now().After(deadline)
}

// readByte reads one byte from the channel with optional SLIP decoding,
// waiting up to timeout for it to arrive. With SLIP decoding the read is
// deferred until an escape sequence could be completed, so a lone escape
// byte is never stranded.
func (c *Client) readByte(slipDecode bool, timeout time.Duration) (byte, error) {
	needBytes := 1
	if slipDecode {
		needBytes = 2
	}
	deadline := c.clock.Now().Add(timeout)
	for {
		if c.ch.Available() >= needBytes {
			if !slipDecode {
				return c.ch.ReadByte(), nil
			}
			b, res := c.ch.ReadByteSLIP()
			switch res {
			case serial.SlipPlain, serial.SlipEscaped:
				return b, nil
			case serial.SlipNoData, serial.SlipEscIncomplete:
				return 0, protocol.Err(protocol.CodeSlipData)
			default:
				return 0, protocol.Errf(protocol.CodeSlipFrame, "decode status %d", res)
			}
		}
		if c.expired(deadline, timeout) {
			return 0, protocol.Err(protocol.CodeTimeout)
		}
		c.clock.Sleep(waitPoll)
	}
}

// readPacket waits for a response frame and runs it through the reader
// state machine. When the caller expects the standard reply, retBody is
// false and the returned length is 2 only for a well-formed two-byte
// all-zero body. With retBody true the raw body is returned instead.
// A non-zero expected opcode is enforced against the response header;
// valp, when non-nil, receives the header value field.
func (c *Client) readPacket(op byte, valp *uint32, retBody bool, timeout time.Duration) ([]byte, int, error) {
	deadline := c.clock.Now().Add(timeout)

	var hdr [protocol.HeaderSize]byte
	hdrIdx := 0
	var body []byte
	bodyLen := 0
	bodyIdx := 0

	needBytes := 1
	state := pktBegin
	for state < pktDone {
		if c.expired(deadline, timeout) {
			return nil, 0, protocol.Err(protocol.CodeTimeout)
		}
		if c.ch.Available() < needBytes {
			c.clock.Sleep(waitPoll)
			continue
		}

		switch state {
		case pktBegin, pktEnd:
			// Frame sentinels are read unescaped.
			if b := c.ch.ReadByte(); b != serial.SlipEnd {
				return nil, 0, protocol.Errf(protocol.CodeSlipFrame,
					"expected frame sentinel, got 0x%02x", b)
			}
			if state == pktBegin {
				state = pktHeader
				needBytes = 2
			} else {
				state = pktDone
			}

		case pktHeader, pktBody:
			b, res := c.ch.ReadByteSLIP()
			if res != serial.SlipPlain && res != serial.SlipEscaped {
				if res == serial.SlipNoData || res == serial.SlipEscIncomplete {
					return nil, 0, protocol.Err(protocol.CodeSlipData)
				}
				return nil, 0, protocol.Errf(protocol.CodeSlipFrame, "decode status %d", res)
			}
			if state == pktHeader {
				hdr[hdrIdx] = b
				hdrIdx++
				if hdrIdx < protocol.HeaderSize {
					break
				}
				rh, err := protocol.ParseResponseHeader(hdr[:], op)
				if err != nil {
					return nil, 0, err
				}
				if valp != nil {
					*valp = rh.Value
				}
				bodyLen = int(rh.BodyLen)
				if bodyLen > 0 {
					body = make([]byte, bodyLen)
					state = pktBody
				} else {
					needBytes = 1
					state = pktEnd
				}
			} else {
				body[bodyIdx] = b
				bodyIdx++
				if bodyIdx >= bodyLen {
					needBytes = 1
					state = pktEnd
				}
			}

		default:
			return nil, 0, protocol.Err(protocol.CodeSlipState)
		}
	}

	if retBody {
		return body, bodyLen, nil
	}

	// The standard reply is a two-byte body of zeroes; anything else is
	// reported as length zero for the caller to classify.
	if bodyLen != 2 || body[0] != 0 || body[1] != 0 {
		return nil, 0, nil
	}
	return nil, bodyLen, nil
}
