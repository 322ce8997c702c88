package loader

import (
	"encoding/binary"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

// ReadReg reads a device register. The address is masked to 4-byte
// alignment.
func (c *Client) ReadReg(addr uint32) (uint32, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, addr&^3)
	var val uint32
	if err := c.doCommand(protocol.OpReadReg, 0, &val, protocol.DefaultTimeout, buf); err != nil {
		return 0, err
	}
	return val, nil
}

// WriteReg writes a device register.
func (c *Client) WriteReg(addr, value uint32) error {
	return c.WriteRegMasked(addr, value, 0xffffffff, 0)
}

// WriteRegMasked writes a device register under a bit mask, with an
// optional device-side delay in microseconds. The address is masked to
// 4-byte alignment.
func (c *Client) WriteRegMasked(addr, value, mask, delay uint32) error {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], addr&^3)
	binary.LittleEndian.PutUint32(buf[4:8], value)
	binary.LittleEndian.PutUint32(buf[8:12], mask)
	binary.LittleEndian.PutUint32(buf[12:16], delay)
	return c.doCommand(protocol.OpWriteReg, 0, nil, protocol.DefaultTimeout, buf)
}

// DumpMem copies size bytes of device memory starting at addr to vf, one
// register read per 32-bit word. Used when the flash-read stub is not
// applicable, e.g. for IRAM dumps.
func (c *Client) DumpMem(vf *vfile.File, addr, size uint32) error {
	addr &^= 3
	word := make([]byte, 4)
	for ofst := uint32(0); ofst < size; ofst += 4 {
		val, err := c.ReadReg(addr + ofst)
		if err != nil {
			return protocol.Errf(protocol.CodeCommRead,
				"reading memory at 0x%08x: %v", addr+ofst, err)
		}
		binary.LittleEndian.PutUint32(word, val)
		if _, err := vf.Write(word); err != nil {
			return protocol.Errf(protocol.CodeFileWrite, "writing to %q", vf.Name())
		}

		if ofst != 0 && ofst&0xff == 0 {
			c.reportProgress(Progress{
				Phase: PhaseDump,
				Addr:  addr + ofst,
				Bytes: ofst,
			})
		}
	}
	return nil
}

// MAC OUI prefixes selected by the OTP id byte.
var (
	ouiStation0 = [3]byte{0x18, 0xfe, 0x34}
	ouiAP0      = [3]byte{0x1a, 0xfe, 0x34}
	oui1        = [3]byte{0xac, 0xd0, 0x74}
)

// ReadMAC reads the station MAC from the OTP fuse words into mac, which
// must hold at least 6 bytes. With 12 or more bytes of space the AP MAC is
// stored after the station MAC. When the OUI id is unrecognized the raw id
// byte is left in mac[0] and CodeUnknownOUI is returned.
func (c *Client) ReadMAC(mac []byte) error {
	if len(mac) < 6 {
		return protocol.Err(protocol.CodeParam)
	}
	apAlso := len(mac) >= 12

	mac0, err := c.ReadReg(protocol.OTPMac0)
	if err != nil {
		return err
	}
	mac1, err := c.ReadReg(protocol.OTPMac1)
	if err != nil {
		return err
	}
	mac2, err := c.ReadReg(protocol.OTPMac2)
	if err != nil {
		return err
	}
	if _, err := c.ReadReg(protocol.OTPMac3); err != nil {
		return err
	}

	if mac2&0x00008000 == 0 {
		return protocol.Errf(protocol.CodeDevice, "the OTP MAC is not programmed")
	}

	// The upper byte of word 1 selects the OUI.
	id := byte(mac1 >> 24)
	switch id {
	case 0:
		copy(mac[0:3], ouiStation0[:])
		if apAlso {
			copy(mac[6:9], ouiAP0[:])
		}
	case 1:
		copy(mac[0:3], oui1[:])
		if apAlso {
			copy(mac[6:9], oui1[:])
		}
	default:
		mac[0] = id
		return protocol.Errf(protocol.CodeUnknownOUI, "OUI id 0x%02x", id)
	}

	mac[3] = byte(mac1 >> 16)
	mac[4] = byte(mac1 >> 8)
	mac[5] = byte(mac0 >> 24)
	if apAlso {
		copy(mac[9:12], mac[3:6])
	}
	return nil
}
