package image

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

// Info writes a human-readable description of an image file to w. Both
// standard load images and combined image files are supported; the type is
// detected from the leading bytes.
func Info(vf *vfile.File, w io.Writer) error {
	if !vf.IsOpen() || w == nil {
		return protocol.Err(protocol.CodeParam)
	}

	fileSize, err := vf.Size()
	if err != nil {
		return protocol.Errf(protocol.CodeFileSize,
			"can't determine the size of the image file %q", vf.Name())
	}

	hdr := make([]byte, 4)
	if err := vf.SetPosition(0); err != nil {
		return protocol.Errf(protocol.CodeFileSeek, "repositioning %q", vf.Name())
	}
	if n, err := vf.Read(hdr); err != nil || n != len(hdr) {
		return protocol.Errf(protocol.CodeFileRead, "reading %q", vf.Name())
	}

	if hdr[0] == Magic {
		fmt.Fprintf(w, "%s:\n", vf.Name())
		return stdInfo(vf, 0, uint32(fileSize), "", w)
	}
	if string(hdr[:3]) != CombinedSig {
		return protocol.Errf(protocol.CodeGeneral,
			"the file %q is neither a standard ESP image nor a combined image", vf.Name())
	}

	imageCnt := int(hdr[3])
	fmt.Fprintf(w, "%s:\n", vf.Name())
	fmt.Fprintf(w, "Combined image file containing %d images:\n", imageCnt)
	entryHdr := make([]byte, 8)
	for i := 0; i < imageCnt; i++ {
		if n, err := vf.Read(entryHdr); err != nil || n != len(entryHdr) {
			return protocol.Errf(protocol.CodeFileRead,
				"reading the image file %q", vf.Name())
		}
		addr := binary.LittleEndian.Uint32(entryHdr[0:4])
		size := binary.LittleEndian.Uint32(entryHdr[4:8])
		pos, err := vf.Position()
		if err != nil {
			return protocol.Errf(protocol.CodeFileSeek, "reading %q", vf.Name())
		}

		fmt.Fprintf(w, "  Image %2d: Flash address 0x%06x, size 0x%06x\n", i, addr, size)

		if n, err := vf.Read(hdr); err != nil || n != len(hdr) {
			return protocol.Errf(protocol.CodeFileRead, "reading %q", vf.Name())
		}
		if hdr[0] == Magic {
			if err := stdInfo(vf, uint32(pos), size, "    ", w); err != nil {
				return err
			}
		}
		if err := vf.SetPosition(pos + int64(size)); err != nil {
			return protocol.Errf(protocol.CodeFileSeek,
				"reading the image file %q", vf.Name())
		}
	}
	return nil
}

// stdInfo describes a standard load image located at ofst within vf,
// verifying its checksum along the way.
func stdInfo(vf *vfile.File, ofst, size uint32, prefix string, w io.Writer) error {
	if size == 0 {
		return protocol.Err(protocol.CodeParam)
	}
	if err := vf.SetPosition(int64(ofst)); err != nil {
		return protocol.Errf(protocol.CodeFileSeek,
			"reading the image file %q", vf.Name())
	}

	hdr := make([]byte, 8)
	if n, err := vf.Read(hdr); err != nil || n != len(hdr) {
		return protocol.Errf(protocol.CodeFileRead, "reading %q", vf.Name())
	}
	if hdr[0] != Magic {
		return protocol.Errf(protocol.CodeGeneral,
			"the file %q is not a valid ESP image", vf.Name())
	}

	flashParm := binary.LittleEndian.Uint16(hdr[2:4])
	fmt.Fprintf(w, "%sFlash parameters: size=%sB, mode=%s, freq=%sHz\n", prefix,
		FlashSizeName(flashParm), FlashModeName(flashParm), FlashFreqName(flashParm))

	// Walk the segments, folding their bytes into the checksum.
	cksum := byte(protocol.ChecksumSeed)
	segCnt := int(hdr[1])
	buf := make([]byte, 1024)
	for i := 0; i < segCnt; i++ {
		if n, err := vf.Read(hdr); err != nil || n != len(hdr) {
			return protocol.Errf(protocol.CodeFileRead,
				"reading the image file %q", vf.Name())
		}
		addr := binary.LittleEndian.Uint32(hdr[0:4])
		segLen := binary.LittleEndian.Uint32(hdr[4:8])

		fmt.Fprintf(w, "%ssegment %2d: address 0x%08x, size 0x%06x\n", prefix, i, addr, segLen)

		for segLen > 0 {
			part := segLen
			if part > uint32(len(buf)) {
				part = uint32(len(buf))
			}
			if n, err := vf.Read(buf[:part]); err != nil || uint32(n) != part {
				return protocol.Errf(protocol.CodeFileRead,
					"reading the image file %q", vf.Name())
			}
			cksum = protocol.Checksum(buf[:part], cksum)
			segLen -= part
		}
	}

	// Consume the padding; the last padded byte carries the checksum. There
	// is always at least one pad byte, a full 16 when the segments end on a
	// 16-byte boundary.
	absPos, err := vf.Position()
	if err != nil {
		return protocol.Errf(protocol.CodeFileSeek, "reading %q", vf.Name())
	}
	pos := uint32(absPos) - ofst
	var lastByte byte
	for {
		b, err := vf.ReadByte()
		if err != nil {
			return protocol.Errf(protocol.CodeFileRead,
				"reading the image file %q", vf.Name())
		}
		cksum ^= b
		lastByte = b
		pos++
		if pos&0x0f == 0 {
			break
		}
	}
	verdict := ""
	if cksum != 0 {
		verdict = "in"
	}
	fmt.Fprintf(w, "%sThe checksum is %scorrect: 0x%02x\n", prefix, verdict, lastByte)

	if pos < size {
		fmt.Fprintf(w, "\n%sAdditional Flash data:\n", prefix)
		fmt.Fprintf(w, "%s              address 0x%06x, size 0x%06x\n", prefix, pos, size-pos)
	}
	return nil
}
