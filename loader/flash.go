package loader

import (
	"encoding/binary"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/DonKinzer/esp-tool/image"
	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

// flashDataRetries is the number of attempts for each FLASH_DATA block.
const flashDataRetries = 3

// GetFlashID reads the JEDEC identification of the flash chip.
func (c *Client) GetFlashID() (uint32, error) {
	if err := c.flashBegin(0, 0); err != nil {
		return 0, err
	}
	if err := c.WriteRegMasked(protocol.SPIW0Reg, 0, 0xffffffff, 0); err != nil {
		return 0, err
	}
	if err := c.WriteRegMasked(protocol.SPIUserReg, 0x10000000, 0xffffffff, 0); err != nil {
		return 0, err
	}
	return c.ReadReg(protocol.SPIW0Reg)
}

// FlashErase erases the entire flash chip by jumping into the ROM's
// SPIEraseChip routine.
func (c *Client) FlashErase() error {
	if err := c.flashBegin(0, 0); err != nil {
		return err
	}
	if err := c.ramBegin(protocol.IRAMAddr, 0, 0, 0); err != nil {
		return err
	}
	return c.ramFinish(protocol.EraseChipAddr)
}

// FlashEraseRegion erases a block-aligned region of flash. The address is
// rounded down to a block boundary and the size up to a block multiple.
func (c *Client) FlashEraseRegion(addr, size uint32) error {
	if size == 0 {
		return protocol.Err(protocol.CodeParam)
	}
	blkCnt := (size + protocol.FlashBlockSize - 1) / protocol.FlashBlockSize
	addr &^= protocol.FlashBlockSize - 1
	glog.V(1).Infof("erasing %d bytes at 0x%06x", size, addr)
	return c.flashBegin(addr, blkCnt*protocol.FlashBlockSize)
}

// FlashWrite sends the content of a file to the device. Combined image
// files are detected by their signature and flashed entry by entry at each
// entry's own address; any other file is written whole at addr.
func (c *Client) FlashWrite(vf *vfile.File, addr uint32, flashParmVal, flashParmMask uint16) error {
	if !vf.IsOpen() {
		return protocol.Err(protocol.CodeParam)
	}

	fileSize, err := vf.Size()
	if err != nil {
		return protocol.Errf(protocol.CodeFileSize,
			"can't determine the size of the download file %q", vf.Name())
	}
	if fileSize == 0 {
		return protocol.Errf(protocol.CodeImageSize,
			"the download file %q is zero length", vf.Name())
	}

	hdr := make([]byte, 4)
	if err := vf.SetPosition(0); err != nil {
		return protocol.Errf(protocol.CodeFileSeek, "can't read the download file %q", vf.Name())
	}
	if n, err := vf.Read(hdr); err != nil || n != len(hdr) {
		return protocol.Errf(protocol.CodeFileRead, "can't read the download file %q", vf.Name())
	}

	if string(hdr[:3]) != image.CombinedSig {
		// Not a combined image file; write the entire image.
		return c.flashWriteRegion(vf, 0, uint32(fileSize), addr, flashParmVal, flashParmMask)
	}

	imageCnt := int(hdr[3])
	entryHdr := make([]byte, 8)
	for i := 0; i < imageCnt; i++ {
		if n, err := vf.Read(entryHdr); err != nil || n != len(entryHdr) {
			return protocol.Errf(protocol.CodeFileRead,
				"an error occurred while reading the image file %q", vf.Name())
		}
		entryAddr := binary.LittleEndian.Uint32(entryHdr[0:4])
		entryLen := binary.LittleEndian.Uint32(entryHdr[4:8])
		pos, err := vf.Position()
		if err != nil {
			return protocol.Errf(protocol.CodeFileSeek, "reading %q", vf.Name())
		}
		if err := c.flashWriteRegion(vf, uint32(pos), entryLen, entryAddr, flashParmVal, flashParmMask); err != nil {
			return errors.Trace(err)
		}
		if err := vf.SetPosition(pos + int64(entryLen)); err != nil {
			return protocol.Errf(protocol.CodeFileSeek,
				"an error occurred while reading the image file %q", vf.Name())
		}
	}
	return nil
}

// flashWriteRegion writes size bytes of the file, starting at ofst, to the
// device at addr.
func (c *Client) flashWriteRegion(vf *vfile.File, ofst, size, addr uint32, flashParmVal, flashParmMask uint16) error {
	const blkSize = protocol.FlashBlockSize
	blkCnt := (size + blkSize - 1) / blkSize

	if err := vf.SetPosition(int64(ofst)); err != nil {
		return protocol.Err(protocol.CodeFileSeek)
	}

	c.reportProgress(Progress{Phase: PhaseErase, TotalBlocks: int(blkCnt), Addr: addr})
	if err := c.flashBegin(addr, blkCnt*blkSize); err != nil {
		return err
	}

	// The FLASH_DATA payload is a 16-byte header followed by the block.
	const dataOfst = 16
	blkBuf := make([]byte, dataOfst+blkSize)

	for blkIdx := uint32(0); blkIdx < blkCnt; blkIdx++ {
		binary.LittleEndian.PutUint32(blkBuf[0:4], blkSize)
		binary.LittleEndian.PutUint32(blkBuf[4:8], blkIdx)
		binary.LittleEndian.PutUint32(blkBuf[8:12], 0)
		binary.LittleEndian.PutUint32(blkBuf[12:16], 0)

		data := blkBuf[dataOfst:]
		want := size - blkIdx*blkSize
		if want > blkSize {
			want = blkSize
		}
		cnt, err := vf.Read(data[:want])
		if err != nil {
			return protocol.Errf(protocol.CodeFileRead, "reading %q", vf.Name())
		}
		if uint32(cnt) != want && !vf.EndOfFile() {
			return protocol.Errf(protocol.CodeFileRead, "reading %q", vf.Name())
		}
		// Partial last block: pad with erased-flash fill.
		for i := cnt; i < blkSize; i++ {
			data[i] = 0xff
		}

		// Patch the flash parameters into the header of an image loaded
		// at address zero.
		if blkIdx == 0 && addr == 0 && data[0] == image.Magic && flashParmMask != 0 {
			parm := binary.LittleEndian.Uint16(data[2:4]) &^ flashParmMask
			binary.LittleEndian.PutUint16(data[2:4], parm|flashParmVal)
		}

		check := protocol.Checksum(data, protocol.ChecksumSeed)

		err = nil
		for try := 0; try < flashDataRetries; try++ {
			if err = c.doCommand(protocol.OpFlashData, uint32(check), nil,
				protocol.DefaultTimeout, blkBuf); err == nil {
				break
			}
			glog.V(1).Infof("block %d attempt %d failed: %v", blkIdx, try+1, err)
		}
		if err != nil {
			return errors.Annotatef(err, "writing block %d of %d at 0x%06x",
				blkIdx+1, blkCnt, addr+blkIdx*blkSize)
		}

		c.reportProgress(Progress{
			Phase:       PhaseWrite,
			Block:       int(blkIdx) + 1,
			TotalBlocks: int(blkCnt),
			Addr:        addr + blkIdx*blkSize,
			Bytes:       blkIdx*blkSize + uint32(cnt),
		})
	}
	glog.V(1).Infof("%d bytes written at 0x%06x", size, addr)
	return nil
}
