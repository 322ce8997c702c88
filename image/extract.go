package image

import (
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/DonKinzer/esp-tool/elf"
	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

// maxFilename bounds generated and user-supplied image filenames.
const maxFilename = 1024

// extractEntry pairs an image file with its flash address while assembling
// a combined file.
type extractEntry struct {
	name string
	addr uint32
	vf   *vfile.File
}

// AutoExtract creates the two canonical images from the open ELF file:
// a boot image built from .text, .data and .rodata named <base>_0x00000.bin,
// and a raw blob of .irom0.text named for its flash offset. If combine is an
// open file the images are packed into it through comb, sparsely or padded;
// an optional extra image file is interleaved by address. The names of the
// files created on disk are returned.
func AutoExtract(e *elf.Reader, combine *vfile.File, comb *Combiner, flashParm uint16,
	padded bool, imageFile string, imageAddr uint32) ([]string, error) {

	combining := combine != nil && combine.IsOpen()
	if !combining {
		imageFile = ""
	}
	if len(imageFile) >= maxFilename {
		return nil, protocol.Err(protocol.CodeFilenameLength)
	}

	fname := e.Filename()
	if fname == "" {
		return nil, protocol.Err(protocol.CodeParam)
	}
	base := fname
	if dot := strings.LastIndex(fname, "."); dot >= 0 {
		base = fname[:dot]
	}
	if len(base)+13 >= maxFilename {
		return nil, protocol.Err(protocol.CodeFilenameLength)
	}

	// Extracted images stay in memory when they are only intermediate
	// content for a combined file.
	fmode := "wb"
	if combining {
		fmode = vfile.ModeVirtual
	}

	var entries []extractEntry
	var created []string

	// Boot image: .text, .data and .rodata at flash offset 0.
	bootName := fmt.Sprintf("%s_0x%05x.bin", base, 0)
	bootFile, err := vfile.Open(bootName, fmode)
	if err != nil {
		return nil, protocol.Errf(protocol.CodeFileCreate,
			"can't create image file %q", bootName)
	}
	defer bootFile.Close()
	if err := WriteSections(e, bootFile, ".text,.data,.rodata", flashParm); err != nil {
		return nil, errors.Trace(err)
	}
	if !combining {
		created = append(created, bootName)
	}
	entries = append(entries, extractEntry{name: bootName, vf: bootFile})

	// Raw image of .irom0.text at its flash offset.
	const iromName = ".irom0.text"
	sectNum := e.SectionNum(iromName)
	if sectNum == 0 {
		return created, protocol.Errf(protocol.CodeParam,
			"can't find section %q in the ELF file %q", iromName, e.Filename())
	}
	sectIdx := sectNum - 1
	sectAddr := e.SectionAddr(sectIdx)
	if sectAddr <= protocol.FlashAddr {
		return created, protocol.Errf(protocol.CodeParam,
			"invalid start address for section %s - 0x%08x", iromName, sectAddr)
	}
	sectAddr -= protocol.FlashAddr

	// A user image below the .irom0.text offset is flashed between the two
	// extracted images; at or above it, after them.
	if imageFile != "" && imageAddr < sectAddr {
		entries = append(entries, extractEntry{name: imageFile, addr: imageAddr})
		imageFile = ""
	}

	iromFileName := fmt.Sprintf("%s_0x%05x.bin", base, sectAddr)
	iromFile, err := vfile.Open(iromFileName, fmode)
	if err != nil {
		return created, protocol.Errf(protocol.CodeFileCreate,
			"can't create image file %q", iromFileName)
	}
	defer iromFile.Close()
	cksum := byte(0)
	if _, err := e.WriteSection(sectIdx, iromFile, &cksum, 0); err != nil {
		return created, errors.Annotatef(err, "writing the image file %q", iromFileName)
	}
	if !combining {
		created = append(created, iromFileName)
		return created, nil
	}
	entries = append(entries, extractEntry{name: iromFileName, addr: sectAddr, vf: iromFile})

	if imageFile != "" {
		entries = append(entries, extractEntry{name: imageFile, addr: imageAddr})
	}

	for _, ent := range entries {
		vf := ent.vf
		if vf == nil {
			vf, err = vfile.Open(ent.name, "rb")
			if err != nil {
				return created, protocol.Errf(protocol.CodeFileOpen,
					"can't open the image file %q", ent.name)
			}
			defer vf.Close()
		}
		if err := vf.SetPosition(0); err != nil {
			return created, protocol.Errf(protocol.CodeFileSeek,
				"can't reposition the image file %q", ent.name)
		}
		if _, err := comb.AddImage(combine, vf, ent.addr, padded); err != nil {
			return created, errors.Trace(err)
		}
	}
	return created, nil
}
