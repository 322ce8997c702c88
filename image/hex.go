package image

import (
	"io"

	"github.com/juju/errors"
	"github.com/marcinbor85/gohex"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

// ihexLineLen is the data byte count per emitted Intel HEX record.
const ihexLineLen = 16

// ExportIntelHex converts an image file to Intel HEX. A sparse combined
// file contributes one region per entry at base plus that entry's flash
// address; any other file contributes a single region at base.
func ExportIntelHex(vf *vfile.File, base uint32, w io.Writer) error {
	if !vf.IsOpen() || w == nil {
		return protocol.Err(protocol.CodeParam)
	}

	mem := gohex.NewMemory()

	sig := make([]byte, 4)
	if err := vf.SetPosition(0); err != nil {
		return protocol.Errf(protocol.CodeFileSeek, "repositioning %q", vf.Name())
	}
	n, err := vf.Peek(sig)
	if err != nil {
		return protocol.Errf(protocol.CodeFileRead, "reading %q", vf.Name())
	}

	if n == len(sig) && string(sig[:3]) == CombinedSig {
		entries, err := ParseCombined(vf)
		if err != nil {
			return errors.Trace(err)
		}
		for _, ent := range entries {
			data := make([]byte, ent.Size)
			if err := vf.SetPosition(ent.Offset); err != nil {
				return protocol.Errf(protocol.CodeFileSeek, "reading %q", vf.Name())
			}
			if n, err := vf.Read(data); err != nil || uint32(n) != ent.Size {
				return protocol.Errf(protocol.CodeFileRead, "reading %q", vf.Name())
			}
			if err := mem.AddBinary(base+ent.Addr, data); err != nil {
				return errors.Annotatef(err, "image at 0x%06x", ent.Addr)
			}
		}
	} else {
		size, err := vf.Size()
		if err != nil {
			return protocol.Errf(protocol.CodeFileSize, "sizing %q", vf.Name())
		}
		if size == 0 {
			return protocol.Errf(protocol.CodeImageSize,
				"the image file %q is zero length", vf.Name())
		}
		data := make([]byte, size)
		if n, err := vf.Read(data); err != nil || int64(n) != size {
			return protocol.Errf(protocol.CodeFileRead, "reading %q", vf.Name())
		}
		if err := mem.AddBinary(base, data); err != nil {
			return errors.Trace(err)
		}
	}

	return errors.Trace(mem.DumpIntelHex(w, ihexLineLen))
}
