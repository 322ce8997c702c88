package loader

import (
	"encoding/binary"
	"time"

	"github.com/golang/glog"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/serial"
)

// writePacket SLIP-frames the header and data blocks and sends them as a
// single write sequence.
func (c *Client) writePacket(hdr []byte, blocks ...[]byte) error {
	if len(hdr) == 0 {
		return protocol.Err(protocol.CodeParam)
	}
	frame := make([]byte, 0, len(hdr)+2)
	frame = append(frame, serial.SlipEnd)
	frame = serial.SlipEncode(frame, hdr)
	for _, blk := range blocks {
		frame = serial.SlipEncode(frame, blk)
	}
	frame = append(frame, serial.SlipEnd)

	if n, err := c.ch.Write(frame); err != nil || n != len(frame) {
		return protocol.Errf(protocol.CodeCommWrite, "wrote %d of %d bytes", n, len(frame))
	}
	return nil
}

// sendCommand composes and sends a command frame. Stale receive data is
// dropped first so the response matcher sees only this command's reply.
func (c *Client) sendCommand(op byte, check uint32, blocks ...[]byte) error {
	if op == 0 {
		return nil
	}
	dataLen := 0
	for _, blk := range blocks {
		dataLen += len(blk)
	}
	hdr := protocol.CommandHeader(op, dataLen, check)

	glog.V(2).Infof("command 0x%02x, %d payload bytes, check 0x%08x", op, dataLen, check)
	c.FlushComm()
	return c.writePacket(hdr, blocks...)
}

// doCommand sends a command and validates the standard reply. valp, when
// non-nil, receives the response header's value field (READ_REG).
func (c *Client) doCommand(op byte, check uint32, valp *uint32, timeout time.Duration, blocks ...[]byte) error {
	if err := c.sendCommand(op, check, blocks...); err != nil {
		return err
	}
	_, bodyLen, err := c.readPacket(op, valp, false, timeout)
	if err != nil {
		return err
	}
	if bodyLen != 2 {
		return protocol.Errf(protocol.CodeReply, "command 0x%02x", op)
	}
	return nil
}

// flashBegin tells the ROM to prepare size bytes of flash at addr. The
// address is rounded down to a block boundary. With a non-zero size the
// ROM erases first and the reply can take several seconds.
func (c *Client) flashBegin(addr, size uint32) error {
	blkCnt := (size + protocol.FlashBlockSize - 1) / protocol.FlashBlockSize
	addr &^= protocol.FlashBlockSize - 1

	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], size)
	binary.LittleEndian.PutUint32(buf[4:8], blkCnt)
	binary.LittleEndian.PutUint32(buf[8:12], protocol.FlashBlockSize)
	binary.LittleEndian.PutUint32(buf[12:16], addr)

	timeout := protocol.DefaultTimeout
	if size != 0 {
		timeout = protocol.FlashBeginTimeout
	}
	return c.doCommand(protocol.OpFlashBegin, 0, nil, timeout, buf)
}

// flashFinish terminates the flash process, optionally rebooting into the
// downloaded code.
func (c *Client) flashFinish(reboot bool) error {
	buf := make([]byte, 4)
	if !reboot {
		binary.LittleEndian.PutUint32(buf, 1)
	}
	return c.doCommand(protocol.OpFlashEnd, 0, nil, protocol.DefaultTimeout, buf)
}

// ramBegin tells the ROM to prepare a RAM download.
func (c *Client) ramBegin(addr, size, blkSize, blkCnt uint32) error {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], size)
	binary.LittleEndian.PutUint32(buf[4:8], blkCnt)
	binary.LittleEndian.PutUint32(buf[8:12], blkSize)
	binary.LittleEndian.PutUint32(buf[12:16], addr)
	return c.doCommand(protocol.OpMemBegin, 0, nil, protocol.DefaultTimeout, buf)
}

// ramData sends one block of a RAM download.
func (c *Client) ramData(data []byte, seq uint32) error {
	hdr := make([]byte, 16)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(hdr[4:8], seq)

	check := protocol.Checksum(data, protocol.ChecksumSeed)
	return c.doCommand(protocol.OpMemData, uint32(check), nil, protocol.DefaultTimeout, hdr, data)
}

// ramFinish terminates a RAM download. A non-zero entry point makes the
// ROM jump to it.
func (c *Client) ramFinish(entryPoint uint32) error {
	buf := make([]byte, 8)
	if entryPoint == 0 {
		binary.LittleEndian.PutUint32(buf[0:4], 1)
	}
	binary.LittleEndian.PutUint32(buf[4:8], entryPoint)
	return c.doCommand(protocol.OpMemEnd, 0, nil, protocol.DefaultTimeout, buf)
}
