package loader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/DonKinzer/esp-tool/image"
	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

func memImage(t *testing.T, name string, data []byte) *vfile.File {
	t.Helper()
	vf, err := vfile.Open(name, vfile.ModeVirtual)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { vf.Close() })
	if _, err := vf.Write(data); err != nil {
		t.Fatal(err)
	}
	vf.SetPosition(0)
	return vf
}

// respondToFlashWrite scripts the begin response plus one ok per block.
func respondToFlashWrite(port *mockPort, blocks int) {
	port.respond(okFrame(protocol.OpFlashBegin))
	for i := 0; i < blocks; i++ {
		port.respond(okFrame(protocol.OpFlashData))
	}
}

func TestFlashWriteBlockFraming(t *testing.T) {
	// 2500 bytes need ceil(2500/1024) = 3 FLASH_DATA commands.
	payload := bytes.Repeat([]byte{0x5a}, 2500)
	c, port, _ := newTestClient()
	respondToFlashWrite(port, 3)

	vf := memImage(t, "blob.bin", payload)
	if err := c.FlashWrite(vf, 0x1000, 0, 0); err != nil {
		t.Fatalf("FlashWrite: %v", err)
	}

	if len(port.frames) != 4 {
		t.Fatalf("frames sent = %d, want 1 begin + 3 data", len(port.frames))
	}

	// FLASH_BEGIN carries {size, blkCnt, blkSize, addr}.
	begin := slipDecode(port.frames[0])
	if begin[1] != protocol.OpFlashBegin {
		t.Fatalf("first op = 0x%02x", begin[1])
	}
	beginArgs := begin[8:]
	if got := binary.LittleEndian.Uint32(beginArgs[0:4]); got != 3*1024 {
		t.Errorf("begin size = %d, want %d", got, 3*1024)
	}
	if got := binary.LittleEndian.Uint32(beginArgs[4:8]); got != 3 {
		t.Errorf("begin block count = %d, want 3", got)
	}
	if got := binary.LittleEndian.Uint32(beginArgs[8:12]); got != 1024 {
		t.Errorf("begin block size = %d, want 1024", got)
	}
	if got := binary.LittleEndian.Uint32(beginArgs[12:16]); got != 0x1000 {
		t.Errorf("begin addr = 0x%x, want 0x1000", got)
	}

	// Every FLASH_DATA payload is 16+1024 bytes with the right sequence
	// index; the last block is 0xFF-padded.
	for i, frame := range port.frames[1:] {
		payload := slipDecode(frame)
		if payload[1] != protocol.OpFlashData {
			t.Fatalf("frame %d op = 0x%02x", i+1, payload[1])
		}
		data := payload[8:]
		if len(data) != 16+1024 {
			t.Fatalf("frame %d payload = %d bytes, want 1040", i+1, len(data))
		}
		if got := binary.LittleEndian.Uint32(data[0:4]); got != 1024 {
			t.Errorf("frame %d length field = %d", i+1, got)
		}
		if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(i) {
			t.Errorf("frame %d sequence = %d, want %d", i+1, got, i)
		}

		// The declared checksum covers the 1024 data bytes.
		wantCk := protocol.Checksum(data[16:], protocol.ChecksumSeed)
		if got := binary.LittleEndian.Uint32(payload[4:8]); got != uint32(wantCk) {
			t.Errorf("frame %d checksum = 0x%x, want 0x%x", i+1, got, wantCk)
		}
	}

	last := slipDecode(port.frames[3])[8+16:]
	for i := 2500 - 2048; i < 1024; i++ {
		if last[i] != 0xff {
			t.Fatalf("last block byte %d = 0x%02x, want 0xff pad", i, last[i])
		}
	}
}

func TestFlashWritePatchesFlashParm(t *testing.T) {
	// A standard image at address 0 gets its parameter word rewritten
	// under the mask.
	img := make([]byte, 16)
	img[0] = image.Magic
	img[1] = 1
	img[2] = 0x00
	img[3] = 0x00

	c, port, _ := newTestClient()
	respondToFlashWrite(port, 1)

	vf := memImage(t, "boot.bin", img)
	if err := c.FlashWrite(vf, 0, 0x0240, 0xff0f); err != nil {
		t.Fatalf("FlashWrite: %v", err)
	}

	data := slipDecode(port.frames[1])[8+16:]
	if data[2] != 0x40 || data[3] != 0x02 {
		t.Errorf("patched parm bytes = %02x %02x, want 40 02", data[2], data[3])
	}
	// Everything else is unchanged.
	if data[0] != image.Magic || data[1] != 1 {
		t.Errorf("image header disturbed: % x", data[:4])
	}
	for i := 4; i < 16; i++ {
		if data[i] != 0 {
			t.Errorf("image byte %d disturbed: 0x%02x", i, data[i])
		}
	}
}

func TestFlashWriteNoPatchAtNonZeroAddress(t *testing.T) {
	img := make([]byte, 8)
	img[0] = image.Magic

	c, port, _ := newTestClient()
	respondToFlashWrite(port, 1)

	vf := memImage(t, "boot.bin", img)
	if err := c.FlashWrite(vf, 0x1000, 0x0240, 0xff0f); err != nil {
		t.Fatalf("FlashWrite: %v", err)
	}
	data := slipDecode(port.frames[1])[8+16:]
	if data[2] != 0 || data[3] != 0 {
		t.Errorf("parm bytes patched at non-zero address: %02x %02x", data[2], data[3])
	}
}

func TestFlashWriteCombinedPerEntry(t *testing.T) {
	// Build a two-entry sparse container in memory.
	out := memImage(t, "combined.bin", nil)
	var comb image.Combiner
	if _, err := comb.AddImage(out, memImage(t, "a", []byte{1, 2, 3, 4}), 0x0000, false); err != nil {
		t.Fatal(err)
	}
	if _, err := comb.AddImage(out, memImage(t, "b", bytes.Repeat([]byte{9}, 8)), 0x10000, false); err != nil {
		t.Fatal(err)
	}

	c, port, _ := newTestClient()
	respondToFlashWrite(port, 1) // entry 1: 1 block
	respondToFlashWrite(port, 1) // entry 2: 1 block

	// The base address is ignored for combined files.
	if err := c.FlashWrite(out, 0x7777, 0, 0); err != nil {
		t.Fatalf("FlashWrite: %v", err)
	}
	if len(port.frames) != 4 {
		t.Fatalf("frames sent = %d, want 4", len(port.frames))
	}

	begin1 := slipDecode(port.frames[0])[8:]
	if got := binary.LittleEndian.Uint32(begin1[12:16]); got != 0 {
		t.Errorf("entry 1 addr = 0x%x, want 0", got)
	}
	begin2 := slipDecode(port.frames[2])[8:]
	if got := binary.LittleEndian.Uint32(begin2[12:16]); got != 0x10000 {
		t.Errorf("entry 2 addr = 0x%x, want 0x10000", got)
	}

	// The first entry's bytes land in the first data block.
	data1 := slipDecode(port.frames[1])[8+16:]
	if !bytes.Equal(data1[:4], []byte{1, 2, 3, 4}) {
		t.Errorf("entry 1 data = % x", data1[:4])
	}
}

func TestFlashWriteRetriesDataBlocks(t *testing.T) {
	img := bytes.Repeat([]byte{0x11}, 16)
	c, port, _ := newTestClient()

	port.respond(okFrame(protocol.OpFlashBegin))
	// Two failures, then success: within the 3-attempt budget.
	port.respond(responseFrame(protocol.OpFlashData, 0, []byte{1, 6}))
	port.respond(nil) // timeout
	port.respond(okFrame(protocol.OpFlashData))

	vf := memImage(t, "blob.bin", img)
	if err := c.FlashWrite(vf, 0x1000, 0, 0); err != nil {
		t.Fatalf("FlashWrite with retries: %v", err)
	}
	if len(port.frames) != 4 {
		t.Errorf("frames sent = %d, want 1 begin + 3 data attempts", len(port.frames))
	}
}

func TestFlashWriteGivesUpAfterRetries(t *testing.T) {
	img := bytes.Repeat([]byte{0x11}, 16)
	c, port, _ := newTestClient()

	port.respond(okFrame(protocol.OpFlashBegin))
	for i := 0; i < 3; i++ {
		port.respond(responseFrame(protocol.OpFlashData, 0, []byte{1, 6}))
	}

	vf := memImage(t, "blob.bin", img)
	err := c.FlashWrite(vf, 0x1000, 0, 0)
	if protocol.CodeOf(err) != protocol.CodeReply {
		t.Errorf("error = %v, want CodeReply", err)
	}
}

func TestFlashWriteRejectsEmptyFile(t *testing.T) {
	c, _, _ := newTestClient()
	vf := memImage(t, "empty.bin", nil)
	if err := c.FlashWrite(vf, 0, 0, 0); protocol.CodeOf(err) != protocol.CodeImageSize {
		t.Errorf("error = %v, want CodeImageSize", err)
	}
}

func TestFlashEraseRegion(t *testing.T) {
	c, port, _ := newTestClient()
	port.respond(okFrame(protocol.OpFlashBegin))

	// 3000 bytes at an unaligned address: rounded to one-KB blocks.
	if err := c.FlashEraseRegion(0x10203, 3000); err != nil {
		t.Fatalf("FlashEraseRegion: %v", err)
	}
	args := slipDecode(port.frames[0])[8:]
	if got := binary.LittleEndian.Uint32(args[0:4]); got != 3*1024 {
		t.Errorf("erase size = %d, want 3072", got)
	}
	if got := binary.LittleEndian.Uint32(args[12:16]); got != 0x10000 {
		t.Errorf("erase addr = 0x%x, want 0x10000", got)
	}
}

func TestFlashEraseChip(t *testing.T) {
	c, port, _ := newTestClient()
	port.respond(okFrame(protocol.OpFlashBegin))
	port.respond(okFrame(protocol.OpMemBegin))
	port.respond(okFrame(protocol.OpMemEnd))

	if err := c.FlashErase(); err != nil {
		t.Fatalf("FlashErase: %v", err)
	}

	// MEM_END names the ROM's SPIEraseChip as the entry point.
	memEnd := slipDecode(port.frames[2])
	if memEnd[1] != protocol.OpMemEnd {
		t.Fatalf("third op = 0x%02x", memEnd[1])
	}
	args := memEnd[8:]
	if got := binary.LittleEndian.Uint32(args[0:4]); got != 0 {
		t.Errorf("execute flag = %d, want 0", got)
	}
	if got := binary.LittleEndian.Uint32(args[4:8]); got != protocol.EraseChipAddr {
		t.Errorf("entry = 0x%08x, want SPIEraseChip", got)
	}
}

func TestGetFlashID(t *testing.T) {
	c, port, _ := newTestClient()
	port.respond(okFrame(protocol.OpFlashBegin))
	port.respond(okFrame(protocol.OpWriteReg))
	port.respond(okFrame(protocol.OpWriteReg))
	port.respond(valueFrame(protocol.OpReadReg, 0x001640ef))

	id, err := c.GetFlashID()
	if err != nil {
		t.Fatalf("GetFlashID: %v", err)
	}
	if id != 0x001640ef {
		t.Errorf("flash id = 0x%08x", id)
	}

	// The SPI registers are driven in the documented order.
	w1 := slipDecode(port.frames[1])[8:]
	if got := binary.LittleEndian.Uint32(w1[0:4]); got != protocol.SPIW0Reg {
		t.Errorf("first write reg = 0x%08x, want SPI W0", got)
	}
	w2 := slipDecode(port.frames[2])[8:]
	if got := binary.LittleEndian.Uint32(w2[4:8]); got != 0x10000000 {
		t.Errorf("SPI user value = 0x%08x, want 0x10000000", got)
	}
}
