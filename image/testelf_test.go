package image

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

type testSection struct {
	name string
	addr uint32
	data []byte
}

// writeTestELF composes a minimal ELF32 little-endian object containing the
// given sections plus the section name string table.
func writeTestELF(t *testing.T, dir string, entry uint32, sections []testSection) string {
	t.Helper()

	const headerSize = 52
	const sectionHdrSize = 40
	le := binary.LittleEndian

	strtab := []byte{0}
	nameOfst := make([]uint32, len(sections))
	for i, s := range sections {
		nameOfst[i] = uint32(len(strtab))
		strtab = append(strtab, s.name...)
		strtab = append(strtab, 0)
	}
	strtabNameOfst := uint32(len(strtab))
	strtab = append(strtab, ".shstrtab"...)
	strtab = append(strtab, 0)

	var body bytes.Buffer
	dataOfst := make([]uint32, len(sections))
	pos := uint32(headerSize)
	for i, s := range sections {
		dataOfst[i] = pos
		body.Write(s.data)
		pos += uint32(len(s.data))
	}
	strtabOfst := pos
	body.Write(strtab)
	pos += uint32(len(strtab))
	shoff := pos

	hdr := make([]byte, headerSize)
	copy(hdr, []byte{0x7f, 'E', 'L', 'F', 1, 1, 1})
	le.PutUint32(hdr[24:], entry)
	le.PutUint32(hdr[32:], shoff)
	le.PutUint16(hdr[46:], sectionHdrSize)
	le.PutUint16(hdr[48:], uint16(len(sections)+2))
	le.PutUint16(hdr[50:], uint16(len(sections)+1))

	shdr := func(name, addr, ofst, size uint32) []byte {
		buf := make([]byte, sectionHdrSize)
		le.PutUint32(buf[0:], name)
		le.PutUint32(buf[12:], addr)
		le.PutUint32(buf[16:], ofst)
		le.PutUint32(buf[20:], size)
		return buf
	}

	var out bytes.Buffer
	out.Write(hdr)
	out.Write(body.Bytes())
	out.Write(shdr(0, 0, 0, 0))
	for i, s := range sections {
		out.Write(shdr(nameOfst[i], s.addr, dataOfst[i], uint32(len(s.data))))
	}
	out.Write(shdr(strtabNameOfst, 0, strtabOfst, uint32(len(strtab))))

	path := filepath.Join(dir, "app.elf")
	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
