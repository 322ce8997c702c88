package image

import (
	"encoding/binary"
	"io"

	"github.com/golang/glog"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

// Combiner accumulates load images into a combined file. The running image
// size tracks how much of the flash address space the file covers so far;
// images must be added in increasing address order.
type Combiner struct {
	imageSize uint32
}

// AddImage appends an image file to a combined file at the given flash
// address. With padded false a sparse container is built; with padded true
// the output is a contiguous flash snapshot with 0xFF fill between images.
// It returns the number of bytes added, padding included.
func (c *Combiner) AddImage(out, in *vfile.File, addr uint32, padded bool) (uint32, error) {
	if !out.IsOpen() || !in.IsOpen() {
		return 0, protocol.Err(protocol.CodeParam)
	}

	sizeOut, err := out.Size()
	if err != nil {
		return 0, protocol.Errf(protocol.CodeFileSize,
			"can't determine the size of the combined file %q", out.Name())
	}
	if sizeOut == 0 {
		c.imageSize = 0
	}

	sizeIn, err := in.Size()
	if err != nil {
		return 0, protocol.Errf(protocol.CodeFileSize,
			"can't determine the size of the image file %q", in.Name())
	}
	if sizeIn == 0 {
		return 0, protocol.Errf(protocol.CodeImageSize,
			"the image file %q is zero length", in.Name())
	}

	// The new image must not land below flash already covered.
	if addr < c.imageSize {
		return 0, protocol.Errf(protocol.CodeParam,
			"the address 0x%06x for the image file %q is less than the current image size 0x%06x",
			addr, in.Name(), c.imageSize)
	}

	imageSize := c.imageSize
	if padded {
		// When appending to an existing snapshot the running position
		// resumes at its end.
		if imageSize < uint32(sizeOut) {
			imageSize = uint32(sizeOut)
		}
		if _, err := out.Seek(0, io.SeekEnd); err != nil {
			return 0, protocol.Errf(protocol.CodeFileSeek,
				"repositioning the combined file %q", out.Name())
		}
		if addr < imageSize {
			return 0, protocol.Errf(protocol.CodeParam,
				"the address 0x%06x for the image file %q is less than the current image size 0x%06x",
				addr, in.Name(), imageSize)
		}
		if imageSize < addr {
			if err := out.Fill(0xff, int(addr-imageSize)); err != nil {
				return 0, protocol.Errf(protocol.CodeFileWrite,
					"writing the combined file %q", out.Name())
			}
			imageSize = addr
		}
	} else {
		hdr := make([]byte, 4)
		var pos int64
		switch {
		case sizeOut == 0:
			// Empty output: start the container.
			copy(hdr, CombinedSig)
			hdr[3] = 1
			pos = int64(len(hdr))
		case sizeOut&0x03 != 0:
			return 0, protocol.Errf(protocol.CodeFileRead,
				"the combined file %q is not a multiple of 4 bytes in size", out.Name())
		default:
			// Bump the image count in the existing header.
			if err := out.SetPosition(0); err != nil {
				return 0, protocol.Errf(protocol.CodeFileSeek,
					"repositioning the combined file %q", out.Name())
			}
			if n, err := out.Peek(hdr); err != nil || n != len(hdr) {
				return 0, protocol.Errf(protocol.CodeFileRead,
					"reading the combined file %q", out.Name())
			}
			if string(hdr[:3]) != CombinedSig {
				return 0, protocol.Errf(protocol.CodeParam,
					"the combined file %q does not have the correct header", out.Name())
			}
			hdr[3]++
			pos = sizeOut
		}

		if _, err := out.Write(hdr); err != nil {
			return 0, protocol.Errf(protocol.CodeFileWrite,
				"writing the combined file %q", out.Name())
		}
		if err := out.SetPosition(pos); err != nil {
			return 0, protocol.Errf(protocol.CodeFileSeek,
				"repositioning the combined file %q", out.Name())
		}

		// Entry header: load address and zero-padded length.
		entry := make([]byte, 8)
		binary.LittleEndian.PutUint32(entry[0:4], addr)
		binary.LittleEndian.PutUint32(entry[4:8], (uint32(sizeIn)+3)&^3)
		if _, err := out.Write(entry); err != nil {
			return 0, protocol.Errf(protocol.CodeFileWrite,
				"writing the combined file %q", out.Name())
		}
	}

	// Append the image content.
	out.NeedSpace(int(sizeIn))
	bytesAdded := uint32(0)
	buf := make([]byte, 1024)
	for int64(bytesAdded) < sizeIn {
		part := sizeIn - int64(bytesAdded)
		if part > int64(len(buf)) {
			part = int64(len(buf))
		}
		if n, err := in.Read(buf[:part]); err != nil || int64(n) != part {
			return bytesAdded, protocol.Errf(protocol.CodeFileRead,
				"reading the image file %q", in.Name())
		}
		if _, err := out.Write(buf[:part]); err != nil {
			return bytesAdded, protocol.Errf(protocol.CodeFileWrite,
				"writing the combined file %q", out.Name())
		}
		bytesAdded += uint32(part)
	}

	if padded {
		c.imageSize = imageSize + bytesAdded
	} else {
		// Pad the entry to a multiple of four bytes.
		if pad := (4 - bytesAdded&3) & 3; pad != 0 {
			if err := out.Fill(0, int(pad)); err != nil {
				return bytesAdded, protocol.Errf(protocol.CodeFileWrite,
					"writing the combined file %q", out.Name())
			}
			bytesAdded += pad
		}
		c.imageSize = addr + bytesAdded
	}

	glog.V(1).Infof("added %q at 0x%08x, %d bytes", in.Name(), addr, bytesAdded)
	return bytesAdded, nil
}

// CombinedEntry describes one image inside a sparse combined file.
type CombinedEntry struct {
	// Addr is the flash address of the image
	Addr uint32

	// Size is the zero-padded image length
	Size uint32

	// Offset is the file offset of the image bytes
	Offset int64
}

// ParseCombined validates the header of a sparse combined file and returns
// its entry table. The file position is left after the last entry.
func ParseCombined(vf *vfile.File) ([]CombinedEntry, error) {
	if err := vf.SetPosition(0); err != nil {
		return nil, protocol.Errf(protocol.CodeFileSeek,
			"repositioning the image file %q", vf.Name())
	}
	hdr := make([]byte, 4)
	if n, err := vf.Read(hdr); err != nil || n != len(hdr) {
		return nil, protocol.Errf(protocol.CodeFileRead,
			"reading the image file %q", vf.Name())
	}
	if string(hdr[:3]) != CombinedSig {
		return nil, protocol.Errf(protocol.CodeParam,
			"the file %q is not a combined image", vf.Name())
	}

	entries := make([]CombinedEntry, 0, hdr[3])
	entryHdr := make([]byte, 8)
	for i := 0; i < int(hdr[3]); i++ {
		if n, err := vf.Read(entryHdr); err != nil || n != len(entryHdr) {
			return nil, protocol.Errf(protocol.CodeFileRead,
				"reading the image file %q", vf.Name())
		}
		pos, err := vf.Position()
		if err != nil {
			return nil, protocol.Errf(protocol.CodeFileSeek,
				"reading the image file %q", vf.Name())
		}
		e := CombinedEntry{
			Addr:   binary.LittleEndian.Uint32(entryHdr[0:4]),
			Size:   binary.LittleEndian.Uint32(entryHdr[4:8]),
			Offset: pos,
		}
		entries = append(entries, e)
		if _, err := vf.Seek(int64(e.Size), io.SeekCurrent); err != nil {
			return nil, protocol.Errf(protocol.CodeFileSeek,
				"skipping an image in %q", vf.Name())
		}
	}
	return entries, nil
}
