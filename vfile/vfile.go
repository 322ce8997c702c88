// Package vfile provides a uniform byte stream over either an OS file or an
// in-memory buffer.
//
// A File opened with ModeVirtual lives entirely in memory and grows on
// demand; any other mode is translated to an OS open. Image builders operate
// on Files so that combined images can be assembled in memory and flashed
// without touching the filesystem.
package vfile

import (
	"io"
	"os"

	"github.com/juju/errors"
)

// ModeVirtual selects the in-memory backend. Any other mode string is
// interpreted like a C stdio mode ("rb", "wb", "r+b", "w+b").
const ModeVirtual = "v"

// DefaultIncrement is the minimum growth of the in-memory buffer.
const DefaultIncrement = 100

// File is a byte stream backed by either an OS file or a heap buffer.
// The zero value is a closed file.
type File struct {
	// in-memory backend
	buf       []byte
	size      int
	pos       int
	increment int

	// OS backend
	fp      *os.File
	fpClose bool

	name string
}

// Open prepares a file for operations. Mode ModeVirtual selects the
// in-memory backend; other modes open an OS file.
func Open(name, mode string) (*File, error) {
	f := &File{increment: DefaultIncrement}
	if err := f.open(name, mode); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) open(name, mode string) error {
	f.Close()
	if name == "" {
		return errors.Errorf("empty filename")
	}
	if mode == ModeVirtual {
		f.buf = make([]byte, 0, f.increment)
		f.name = name
		return nil
	}
	flag, ok := osFlags(mode)
	if !ok {
		return errors.Errorf("unsupported open mode %q", mode)
	}
	fp, err := os.OpenFile(name, flag, 0644)
	if err != nil {
		return errors.Trace(err)
	}
	f.fp = fp
	f.fpClose = true
	f.name = name
	return nil
}

func osFlags(mode string) (int, bool) {
	switch mode {
	case "r", "rb":
		return os.O_RDONLY, true
	case "w", "wb":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, true
	case "r+", "r+b", "rb+":
		return os.O_RDWR, true
	case "w+", "w+b", "wb+":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC, true
	case "a", "ab":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, true
	}
	return 0, false
}

// FromOS wraps an already opened OS file. The stream is not closed by Close.
func FromOS(fp *os.File, name string) *File {
	return &File{fp: fp, name: name, increment: DefaultIncrement}
}

// IsOpen reports whether the file has a live backend.
func (f *File) IsOpen() bool {
	return f.fp != nil || f.buf != nil
}

// Name returns the name the file was opened with.
func (f *File) Name() string {
	return f.name
}

// SetIncrement sets the minimum growth step of the in-memory buffer.
func (f *File) SetIncrement(n int) {
	if n > 0 {
		f.increment = n
	}
}

// Close releases the backend. Closing a closed file is a no-op.
func (f *File) Close() error {
	var err error
	if f.fp != nil && f.fpClose {
		err = f.fp.Close()
	}
	f.buf = nil
	f.size = 0
	f.pos = 0
	f.fp = nil
	f.fpClose = false
	f.name = ""
	if f.increment == 0 {
		f.increment = DefaultIncrement
	}
	return err
}

// Read transfers up to len(p) bytes. A short count signals end of stream;
// unlike io.Reader it does not return io.EOF for a partial read.
func (f *File) Read(p []byte) (int, error) {
	if f.fp != nil {
		n, err := f.fp.Read(p)
		if err == io.EOF {
			return n, nil
		}
		return n, err
	}
	if f.buf == nil {
		return 0, errors.Errorf("read from closed file")
	}
	n := copy(p, f.buf[f.pos:f.size])
	f.pos += n
	return n, nil
}

// Peek reads like Read but restores the prior position.
func (f *File) Peek(p []byte) (int, error) {
	if f.fp != nil {
		pos, err := f.fp.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		n, err := f.fp.Read(p)
		if err != nil && err != io.EOF {
			return n, err
		}
		if _, err := f.fp.Seek(pos, io.SeekStart); err != nil {
			return n, err
		}
		return n, nil
	}
	if f.buf == nil {
		return 0, errors.Errorf("peek on closed file")
	}
	return copy(p, f.buf[f.pos:f.size]), nil
}

// Write transfers len(p) bytes, growing the in-memory buffer as needed.
func (f *File) Write(p []byte) (int, error) {
	if f.fp != nil {
		return f.fp.Write(p)
	}
	if f.buf == nil {
		return 0, errors.Errorf("write to closed file")
	}
	f.NeedSpace(len(p))
	f.buf = f.buf[:max(len(f.buf), f.pos+len(p))]
	copy(f.buf[f.pos:], p)
	f.pos += len(p)
	if f.size < f.pos {
		f.size = f.pos
	}
	return len(p), nil
}

// WriteByte writes a single byte.
func (f *File) WriteByte(b byte) error {
	_, err := f.Write([]byte{b})
	return err
}

// ReadByte reads a single byte, failing at end of stream.
func (f *File) ReadByte() (byte, error) {
	var b [1]byte
	n, err := f.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, io.EOF
	}
	return b[0], nil
}

// Fill appends count copies of b at the current position.
func (f *File) Fill(b byte, count int) error {
	if count <= 0 {
		return nil
	}
	if f.fp != nil {
		chunk := make([]byte, min(count, 1024))
		for i := range chunk {
			chunk[i] = b
		}
		for count > 0 {
			part := min(count, len(chunk))
			if _, err := f.fp.Write(chunk[:part]); err != nil {
				return err
			}
			count -= part
		}
		return nil
	}
	if f.buf == nil {
		return errors.Errorf("fill on closed file")
	}
	f.NeedSpace(count)
	f.buf = f.buf[:max(len(f.buf), f.pos+count)]
	for i := 0; i < count; i++ {
		f.buf[f.pos+i] = b
	}
	f.pos += count
	if f.size < f.pos {
		f.size = f.pos
	}
	return nil
}

// NeedSpace reserves capacity for future writes. Growth is at least the
// configured increment.
func (f *File) NeedSpace(space int) {
	if f.fp != nil || space <= 0 {
		return
	}
	if f.pos+space <= cap(f.buf) {
		return
	}
	if space < f.increment {
		space = f.increment
	}
	grown := make([]byte, len(f.buf), f.pos+space)
	copy(grown, f.buf)
	f.buf = grown
}

// Seek repositions the stream. For the in-memory backend, seeking past the
// current end is rejected.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.fp != nil {
		return f.fp.Seek(offset, whence)
	}
	if f.buf == nil {
		return 0, errors.Errorf("seek on closed file")
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(f.pos) + offset
	case io.SeekEnd:
		pos = int64(f.size) + offset
	default:
		return 0, errors.Errorf("bad whence %d", whence)
	}
	if pos < 0 || pos > int64(f.size) {
		return 0, errors.Errorf("seek position %d outside file of %d bytes", pos, f.size)
	}
	f.pos = int(pos)
	return pos, nil
}

// Position returns the current stream position.
func (f *File) Position() (int64, error) {
	if f.fp != nil {
		return f.fp.Seek(0, io.SeekCurrent)
	}
	if f.buf == nil {
		return 0, errors.Errorf("position on closed file")
	}
	return int64(f.pos), nil
}

// SetPosition seeks to an absolute position.
func (f *File) SetPosition(pos int64) error {
	_, err := f.Seek(pos, io.SeekStart)
	return err
}

// Size returns the current logical length of the file.
func (f *File) Size() (int64, error) {
	if f.fp != nil {
		fi, err := f.fp.Stat()
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil
	}
	if f.buf == nil {
		return 0, errors.Errorf("size of closed file")
	}
	return int64(f.size), nil
}

// EndOfFile reports whether the position is at or past the end.
func (f *File) EndOfFile() bool {
	if f.fp != nil {
		pos, err := f.fp.Seek(0, io.SeekCurrent)
		if err != nil {
			return true
		}
		fi, err := f.fp.Stat()
		if err != nil {
			return true
		}
		return pos >= fi.Size()
	}
	return f.pos >= f.size
}

// Bytes returns the content of an in-memory file. It returns nil for an
// OS-backed file.
func (f *File) Bytes() []byte {
	if f.buf == nil {
		return nil
	}
	return f.buf[:f.size]
}

// Sync flushes an OS-backed file to stable storage.
func (f *File) Sync() error {
	if f.fp != nil {
		return f.fp.Sync()
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
