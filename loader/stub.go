package loader

import (
	"encoding/binary"

	"github.com/DonKinzer/esp-tool/protocol"
)

// flashReadStub is Xtensa code downloaded to IRAM to read out flash. The
// first twelve bytes are parameters (start address, block size, block
// count) patched before each download; the next twelve are the ROM entry
// points and RAM buffer address the code loads. The code calls SPIRead
// into the RAM buffer and send_packet to emit each block as a raw SLIP
// frame, then parks in an endless jump.
var flashReadStub = []byte{
	// parameters, patched per use
	0x00, 0x00, 0x00, 0x00, // 0: start address
	0x00, 0x00, 0x00, 0x00, // 4: block size
	0x00, 0x00, 0x00, 0x00, // 8: block count

	// constant data
	le0(protocol.SendPacketAddr), le1(protocol.SendPacketAddr), le2(protocol.SendPacketAddr), le3(protocol.SendPacketAddr), // 12: &send_packet
	le0(protocol.SPIReadAddr), le1(protocol.SPIReadAddr), le2(protocol.SPIReadAddr), le3(protocol.SPIReadAddr), // 16: &SPIRead
	le0(protocol.UserDataRAMAddr), le1(protocol.UserDataRAMAddr), le2(protocol.UserDataRAMAddr), le3(protocol.UserDataRAMAddr), // 20: RAM buffer

	// code, entered at offset 0x18
	0xc1, 0xfc, 0xff, //        l32r  a12, data+8
	0xd1, 0xf9, 0xff, //        l32r  a13, data+0
	0x2d, 0x0d, //          1:  mov.n a2, a13
	0x31, 0xfd, 0xff, //        l32r  a3, data+20
	0x41, 0xf8, 0xff, //        l32r  a4, data+4
	0x4a, 0xdd, //              add.n a13, a13, a4
	0x51, 0xfa, 0xff, //        l32r  a5, data+16
	0xc0, 0x05, 0x00, //        callx0 a5
	0x21, 0xf9, 0xff, //        l32r  a2, data+20
	0x31, 0xf4, 0xff, //        l32r  a3, data+4
	0x41, 0xf6, 0xff, //        l32r  a4, data+12
	0xc0, 0x04, 0x00, //        callx0 a4
	0x0b, 0xcc, //              addi.n a12, a12, -1
	0x56, 0xec, 0xfd, //        bnez  a12, 1b
	0x06, 0xff, 0xff, //    2:  j     2b

	// filler
	0x00, 0x00, 0x00,
}

func le0(v uint32) byte { return byte(v) }
func le1(v uint32) byte { return byte(v >> 8) }
func le2(v uint32) byte { return byte(v >> 16) }
func le3(v uint32) byte { return byte(v >> 24) }

// readStubImage returns the stub, truncated to a multiple of 4 bytes, with
// its parameter words patched for the requested read.
func readStubImage(startAddr, blkSize, blkCnt uint32) []byte {
	stub := make([]byte, len(flashReadStub)&^3)
	copy(stub, flashReadStub)
	binary.LittleEndian.PutUint32(stub[0:4], startAddr)
	binary.LittleEndian.PutUint32(stub[4:8], blkSize)
	binary.LittleEndian.PutUint32(stub[8:12], blkCnt)
	return stub
}
