package image

import (
	"encoding/binary"
	"strings"

	"github.com/juju/errors"

	"github.com/DonKinzer/esp-tool/elf"
	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

// WriteSections writes data from one or more sections of the ELF file to vf.
// If sectNames contains one or more commas it is taken as a list of section
// names to be written as a standard ESP load image; otherwise a raw binary
// containing only the section content is written.
func WriteSections(e *elf.Reader, vf *vfile.File, sectNames string, flashParm uint16) error {
	if !e.IsOpen() || !vf.IsOpen() {
		return protocol.Err(protocol.CodeParam)
	}

	if !strings.Contains(sectNames, ",") {
		sectNum := e.SectionNum(sectNames)
		if sectNum == 0 {
			return protocol.Errf(protocol.CodeParam,
				"can't find section %q in the ELF file %q", sectNames, e.Filename())
		}
		cksum := byte(protocol.ChecksumSeed)
		if _, err := e.WriteSection(sectNum-1, vf, &cksum, 0); err != nil {
			return errors.Annotatef(err, "writing the image file %q", vf.Name())
		}
		return nil
	}

	names := strings.Split(sectNames, ",")

	// Write the file header.
	hdr := make([]byte, 8)
	hdr[0] = Magic
	hdr[1] = byte(len(names))
	binary.LittleEndian.PutUint16(hdr[2:4], flashParm)
	binary.LittleEndian.PutUint32(hdr[4:8], e.Entry())
	if _, err := vf.Write(hdr); err != nil {
		return protocol.Errf(protocol.CodeFileWrite,
			"writing the image header to %q", vf.Name())
	}
	imageSize := uint32(len(hdr))

	cksum := byte(protocol.ChecksumSeed)
	for _, name := range names {
		sectNum := e.SectionNum(name)
		if sectNum == 0 {
			return protocol.Errf(protocol.CodeParam,
				"can't find section %q in the ELF file %q", name, e.Filename())
		}
		sectIdx := sectNum - 1

		// Segment sizes are padded to a multiple of 4.
		segSize := e.SectionSize(sectIdx)
		paddedSize := (segSize + 3) &^ 3

		binary.LittleEndian.PutUint32(hdr[0:4], e.SectionAddr(sectIdx))
		binary.LittleEndian.PutUint32(hdr[4:8], paddedSize)
		if _, err := vf.Write(hdr); err != nil {
			return protocol.Errf(protocol.CodeFileWrite,
				"writing a section header to %q", vf.Name())
		}
		imageSize += uint32(len(hdr))

		if _, err := e.WriteSection(sectIdx, vf, &cksum, paddedSize); err != nil {
			return errors.Annotatef(err, "writing section data to %q", vf.Name())
		}
		imageSize += paddedSize
	}

	// Pad the image to a multiple of 16 bytes, placing the checksum in the
	// final byte. A full 16-byte pad is emitted when already aligned so the
	// checksum byte always exists.
	paddedSize := (imageSize + 16) &^ 15
	padBuf := make([]byte, paddedSize-imageSize)
	padBuf[len(padBuf)-1] = cksum
	if _, err := vf.Write(padBuf); err != nil {
		return protocol.Errf(protocol.CodeFileWrite,
			"writing the image padding to %q", vf.Name())
	}
	return nil
}
