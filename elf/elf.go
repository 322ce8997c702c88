// Package elf reads ELF32 little-endian object files just deeply enough to
// extract loadable sections for ESP8266 image building: the file header,
// the section header table and the section name string table.
//
// Sections are addressed by their 1-based position in the section header
// table (the null section at index 0 is skipped); a lookup returning 0
// means "not present".
package elf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
)

// Header sizes and offsets of the fields consumed from an ELF32 file.
const (
	identSize      = 16
	headerSize     = identSize + 36
	sectionHdrSize = 40
)

// fileHeader holds the ELF32 header fields this package consumes.
type fileHeader struct {
	entry     uint32
	shoff     uint32
	shentsize uint16
	shnum     uint16
	shstrndx  uint16
}

// Section describes one section of the object file.
type Section struct {
	// Name is the section name from the string table
	Name string

	// Offset is the file offset of the section data
	Offset uint32

	// Addr is the load address
	Addr uint32

	// Size is the section size in bytes
	Size uint32
}

// Reader provides access to the sections of an ELF32 file.
type Reader struct {
	fp       *os.File
	name     string
	header   fileHeader
	sections []Section
}

// Open parses the named ELF file and collects its section table.
func Open(name string) (*Reader, error) {
	fp, err := os.Open(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r := &Reader{fp: fp, name: name}
	if err := r.parse(); err != nil {
		fp.Close()
		return nil, errors.Annotatef(err, "parsing %q", name)
	}
	return r, nil
}

func (r *Reader) parse() error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.fp, hdr[:]); err != nil {
		return errors.Annotate(err, "reading ELF header")
	}
	if hdr[0] != 0x7f || hdr[1] != 'E' || hdr[2] != 'L' || hdr[3] != 'F' {
		return errors.Errorf("bad ELF magic % x", hdr[:4])
	}

	le := binary.LittleEndian
	r.header = fileHeader{
		entry:     le.Uint32(hdr[24:28]),
		shoff:     le.Uint32(hdr[32:36]),
		shentsize: le.Uint16(hdr[46:48]),
		shnum:     le.Uint16(hdr[48:50]),
		shstrndx:  le.Uint16(hdr[50:52]),
	}

	strings, err := r.readStrings()
	if err != nil {
		return errors.Trace(err)
	}
	return r.collectSections(strings)
}

// readStrings loads the section header string table.
func (r *Reader) readStrings() ([]byte, error) {
	if r.header.shstrndx == 0 {
		return nil, nil
	}
	sh, err := r.readSectionHeader(int(r.header.shstrndx))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if sh.size == 0 {
		return nil, nil
	}
	strings := make([]byte, sh.size)
	if _, err := r.fp.ReadAt(strings, int64(sh.offset)); err != nil {
		return nil, errors.Annotate(err, "reading string table")
	}
	return strings, nil
}

type rawSection struct {
	nameOfst uint32
	addr     uint32
	offset   uint32
	size     uint32
}

func (r *Reader) readSectionHeader(idx int) (rawSection, error) {
	var buf [sectionHdrSize]byte
	pos := int64(r.header.shoff) + int64(idx)*int64(r.header.shentsize)
	if _, err := r.fp.ReadAt(buf[:], pos); err != nil {
		return rawSection{}, errors.Annotatef(err, "reading section header %d", idx)
	}
	le := binary.LittleEndian
	return rawSection{
		nameOfst: le.Uint32(buf[0:4]),
		addr:     le.Uint32(buf[12:16]),
		offset:   le.Uint32(buf[16:20]),
		size:     le.Uint32(buf[20:24]),
	}, nil
}

// collectSections records name, offset, address and size for every section
// after the null entry.
func (r *Reader) collectSections(strings []byte) error {
	if r.header.shnum == 0 {
		return nil
	}
	r.sections = make([]Section, 0, r.header.shnum-1)
	for cnt := 1; cnt < int(r.header.shnum); cnt++ {
		raw, err := r.readSectionHeader(cnt)
		if err != nil {
			return errors.Trace(err)
		}
		r.sections = append(r.sections, Section{
			Name:   stringAt(strings, raw.nameOfst),
			Offset: raw.offset,
			Addr:   raw.addr,
			Size:   raw.size,
		})
	}
	return nil
}

func stringAt(strings []byte, ofst uint32) string {
	if int(ofst) >= len(strings) {
		return ""
	}
	end := int(ofst)
	for end < len(strings) && strings[end] != 0 {
		end++
	}
	return string(strings[ofst:end])
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.fp == nil {
		return nil
	}
	err := r.fp.Close()
	r.fp = nil
	return err
}

// IsOpen reports whether the reader has a live file.
func (r *Reader) IsOpen() bool {
	return r != nil && r.fp != nil
}

// Filename returns the name the reader was opened with.
func (r *Reader) Filename() string {
	if r == nil {
		return ""
	}
	return r.name
}

// Entry returns the program entry point from the ELF header.
func (r *Reader) Entry() uint32 {
	return r.header.entry
}

// SectionNum locates a section by name, case-sensitively, returning its
// 1-based number or 0 when not present.
func (r *Reader) SectionNum(name string) int {
	if name == "" {
		return 0
	}
	for i, s := range r.sections {
		if s.Name == name {
			return i + 1
		}
	}
	return 0
}

// SectionSize returns the size of the section at the 0-based index.
func (r *Reader) SectionSize(idx int) uint32 {
	if idx < 0 || idx >= len(r.sections) {
		return 0
	}
	return r.sections[idx].Size
}

// SectionAddr returns the load address of the section at the 0-based index.
func (r *Reader) SectionAddr(idx int) uint32 {
	if idx < 0 || idx >= len(r.sections) {
		return 0
	}
	return r.sections[idx].Addr
}

// Sections returns the collected section table.
func (r *Reader) Sections() []Section {
	return r.sections
}

// WriteSection streams the bytes of the section at the 0-based index into w,
// folding each byte into *cksum, then pads with zero bytes up to paddedSize.
// It returns the number of bytes written.
func (r *Reader) WriteSection(idx int, w io.Writer, cksum *byte, paddedSize uint32) (uint32, error) {
	if idx < 0 || idx >= len(r.sections) {
		return 0, errors.Errorf("section index %d out of range", idx)
	}
	sect := r.sections[idx]
	if sect.Size == 0 && paddedSize == 0 {
		return 0, nil
	}

	sr := io.NewSectionReader(r.fp, int64(sect.Offset), int64(sect.Size))
	buf := make([]byte, 1024)
	written := uint32(0)
	for written < sect.Size {
		n, err := sr.Read(buf)
		if n > 0 {
			for _, b := range buf[:n] {
				*cksum ^= b
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, errors.Annotatef(werr, "writing section %q", sect.Name)
			}
			written += uint32(n)
		}
		if err != nil {
			if err == io.EOF && written == sect.Size {
				break
			}
			return written, errors.Annotatef(err, "reading section %q", sect.Name)
		}
	}

	for written < paddedSize {
		if _, err := w.Write([]byte{0}); err != nil {
			return written, errors.Annotatef(err, "padding section %q", sect.Name)
		}
		written++
	}
	return written, nil
}

// SectionInfo writes an address/size/name table of all sections to w.
func (r *Reader) SectionInfo(w io.Writer) error {
	if r.fp == nil {
		return errors.Errorf("no ELF file open")
	}
	if _, err := io.WriteString(w, "Address     Size        Name\n"); err != nil {
		return errors.Trace(err)
	}
	for _, s := range r.sections {
		if _, err := fmt.Fprintf(w, "0x%08x  0x%08x  %s\n", s.Addr, s.Size, s.Name); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
