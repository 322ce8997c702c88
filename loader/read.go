package loader

import (
	"github.com/juju/errors"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/serial"
	"github.com/DonKinzer/esp-tool/vfile"
)

// FlashRead reads length bytes of flash starting at addr, writing them to
// vf. A small stub is downloaded to IRAM and started; it emits each block
// as a raw SLIP frame which the host decodes here. Trailing bytes of the
// last frame beyond length are discarded.
func (c *Client) FlashRead(vf *vfile.File, addr, length uint32) error {
	if !vf.IsOpen() || length == 0 {
		return protocol.Err(protocol.CodeParam)
	}

	// One exact-size block for short reads, 1 KB blocks otherwise.
	var blkSize, blkCnt uint32
	if length <= protocol.FlashBlockSize {
		blkSize = length
		blkCnt = 1
	} else {
		blkSize = protocol.FlashBlockSize
		blkCnt = (length + blkSize - 1) / blkSize
	}

	stub := readStubImage(addr, blkSize, blkCnt)
	stubLen := uint32(len(stub))

	// Download the stub and jump to it.
	if err := c.flashBegin(0, 0); err != nil {
		return err
	}
	if err := c.ramBegin(protocol.IRAMAddr, stubLen, stubLen, 1); err != nil {
		return err
	}
	if err := c.ramData(stub, 0); err != nil {
		return err
	}
	if err := c.ramFinish(protocol.FlashReadStubEntry); err != nil {
		return err
	}

	// Read back one raw SLIP frame per block.
	dataLen := uint32(0)
	for i := uint32(0); i < blkCnt; i++ {
		b, err := c.readByte(false, protocol.DefaultTimeout)
		if err != nil {
			return errors.Trace(err)
		}
		if b != serial.SlipEnd {
			return protocol.Errf(protocol.CodeSlipStart,
				"block %d starts with 0x%02x", i, b)
		}

		for j := uint32(0); j < blkSize; j++ {
			b, err := c.readByte(true, protocol.DefaultTimeout)
			if err != nil {
				return errors.Trace(err)
			}
			if dataLen < length {
				if werr := vf.WriteByte(b); werr != nil {
					return protocol.Errf(protocol.CodeFileWrite, "writing %q", vf.Name())
				}
			}
			dataLen++
		}

		b, err = c.readByte(false, protocol.DefaultTimeout)
		if err != nil {
			return errors.Trace(err)
		}
		if b != serial.SlipEnd {
			return protocol.Errf(protocol.CodeSlipEnd,
				"block %d ends with 0x%02x", i, b)
		}

		c.reportProgress(Progress{
			Phase:       PhaseRead,
			Block:       int(i) + 1,
			TotalBlocks: int(blkCnt),
			Addr:        addr + i*blkSize,
			Bytes:       dataLen,
		})
	}
	return nil
}
