package protocol

import "time"

// Command opcodes understood by the ESP8266 ROM loader.
const (
	// OpFlashBegin prepares the ROM for a flash download
	OpFlashBegin = 0x02

	// OpFlashData carries one block of flash data
	OpFlashData = 0x03

	// OpFlashEnd terminates a flash download, optionally rebooting
	OpFlashEnd = 0x04

	// OpMemBegin prepares the ROM for a RAM download
	OpMemBegin = 0x05

	// OpMemEnd terminates a RAM download, optionally jumping to an entry point
	OpMemEnd = 0x06

	// OpMemData carries one block of RAM data
	OpMemData = 0x07

	// OpSync carries the fixed auto-baud synchronization payload
	OpSync = 0x08

	// OpWriteReg writes a device register
	OpWriteReg = 0x09

	// OpReadReg reads a device register
	OpReadReg = 0x0a
)

// Frame structure constants.
const (
	// DirRequest is the direction byte of a host-to-device frame
	DirRequest = 0x00

	// DirResponse is the direction byte of a device-to-host frame
	DirResponse = 0x01

	// HeaderSize is the size of both request and response headers:
	// DIR(1) + OP(1) + LEN(2) + CHECK/VALUE(4)
	HeaderSize = 8
)

// ChecksumSeed is the seed of the XOR checksum applied to image segments
// and to the data portion of FLASH_DATA and MEM_DATA blocks.
const ChecksumSeed = 0xef

// Transfer block sizes used by the flash and RAM download workflows.
const (
	// FlashBlockSize is the block size of flash downloads (1 KB)
	FlashBlockSize = 0x0400

	// RAMBlockSize is the block size of RAM downloads (1 KB)
	RAMBlockSize = 0x0400
)

// Reply timeouts. FLASH_BEGIN with a non-zero size triggers a bulk erase
// inside the ROM and may take several seconds to answer.
const (
	DefaultTimeout    = 500 * time.Millisecond
	FlashBeginTimeout = 10 * time.Second
)

// ROM entry points and memory locations. These absolute addresses are part
// of the contract with the factory ROM and are not configurable.
const (
	// EraseChipAddr is the ROM's SPIEraseChip routine
	EraseChipAddr = 0x40004984

	// SendPacketAddr is the ROM's send_packet routine
	SendPacketAddr = 0x40003c80

	// SPIReadAddr is the ROM's SPIRead routine
	SPIReadAddr = 0x40004b1c

	// UserDataRAMAddr is the RAM buffer used by the flash-read stub
	UserDataRAMAddr = 0x3ffe8000

	// IRAMAddr is the base of instruction RAM
	IRAMAddr = 0x40100000

	// FlashAddr is the address at which flash is mapped
	FlashAddr = 0x40200000

	// FlashReadStubEntry is the entry point of the downloaded flash-read stub
	FlashReadStubEntry = IRAMAddr + 0x18
)

// OTP fuse words holding the factory MAC address.
const (
	OTPMac0 = 0x3ff00050
	OTPMac1 = 0x3ff00054
	OTPMac2 = 0x3ff00058
	OTPMac3 = 0x3ff0005c
)

// SPI controller registers used to read the flash chip JEDEC ID.
const (
	SPIUserReg = 0x60000200
	SPIW0Reg   = 0x60000240
)
