package image

import (
	"bytes"
	"strings"
	"testing"

	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

func memFile(t *testing.T, name string, data []byte) *vfile.File {
	t.Helper()
	vf, err := vfile.Open(name, vfile.ModeVirtual)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { vf.Close() })
	if len(data) > 0 {
		if _, err := vf.Write(data); err != nil {
			t.Fatal(err)
		}
		vf.SetPosition(0)
	}
	return vf
}

func TestCombineSparseRoundTrip(t *testing.T) {
	images := []struct {
		addr uint32
		data []byte
	}{
		{addr: 0x00000, data: []byte{0xe9, 1, 2, 3, 4, 5, 6, 7}},
		{addr: 0x10000, data: []byte{0xaa, 0xbb, 0xcc}}, // padded to 4
		{addr: 0x7e000, data: bytes.Repeat([]byte{0x5a}, 12)},
	}

	out := memFile(t, "combined.bin", nil)
	var comb Combiner
	for _, img := range images {
		in := memFile(t, "part", img.data)
		if _, err := comb.AddImage(out, in, img.addr, false); err != nil {
			t.Fatalf("AddImage(0x%x): %v", img.addr, err)
		}
	}

	raw := out.Bytes()
	if !bytes.Equal(raw[:4], []byte{'e', 's', 'p', 3}) {
		t.Fatalf("container header = % x, want esp/3", raw[:4])
	}
	if len(raw)%4 != 0 {
		t.Errorf("container length %d is not a multiple of 4", len(raw))
	}

	entries, err := ParseCombined(out)
	if err != nil {
		t.Fatalf("ParseCombined: %v", err)
	}
	if len(entries) != len(images) {
		t.Fatalf("entry count = %d, want %d", len(entries), len(images))
	}
	for i, ent := range entries {
		if ent.Addr != images[i].addr {
			t.Errorf("entry %d addr = 0x%x, want 0x%x", i, ent.Addr, images[i].addr)
		}
		wantSize := (uint32(len(images[i].data)) + 3) &^ 3
		if ent.Size != wantSize {
			t.Errorf("entry %d size = %d, want %d", i, ent.Size, wantSize)
		}
		if ent.Size%4 != 0 {
			t.Errorf("entry %d size %d not a multiple of 4", i, ent.Size)
		}

		got := make([]byte, len(images[i].data))
		out.SetPosition(ent.Offset)
		out.Read(got)
		if !bytes.Equal(got, images[i].data) {
			t.Errorf("entry %d bytes = % x, want % x", i, got, images[i].data)
		}
	}
}

func TestCombinePaddedSnapshot(t *testing.T) {
	first := []byte{1, 2, 3, 4}
	second := []byte{9, 8, 7}

	out := memFile(t, "padded.bin", nil)
	var comb Combiner
	if _, err := comb.AddImage(out, memFile(t, "a", first), 0, true); err != nil {
		t.Fatal(err)
	}
	if _, err := comb.AddImage(out, memFile(t, "b", second), 0x10, true); err != nil {
		t.Fatal(err)
	}

	raw := out.Bytes()
	if len(raw) != 0x10+len(second) {
		t.Fatalf("snapshot length = %d, want %d", len(raw), 0x10+len(second))
	}
	if !bytes.Equal(raw[:4], first) {
		t.Errorf("first image bytes = % x", raw[:4])
	}
	// The gap between images is 0xFF fill.
	for i := len(first); i < 0x10; i++ {
		if raw[i] != 0xff {
			t.Errorf("gap byte at 0x%x = 0x%02x, want 0xff", i, raw[i])
		}
	}
	if !bytes.Equal(raw[0x10:], second) {
		t.Errorf("second image bytes = % x", raw[0x10:])
	}
}

func TestCombineRejectsDescendingAddress(t *testing.T) {
	out := memFile(t, "combined.bin", nil)
	var comb Combiner
	if _, err := comb.AddImage(out, memFile(t, "a", []byte{1, 2, 3, 4}), 0x1000, false); err != nil {
		t.Fatal(err)
	}
	_, err := comb.AddImage(out, memFile(t, "b", []byte{5}), 0x800, false)
	if protocol.CodeOf(err) != protocol.CodeParam {
		t.Errorf("error = %v, want CodeParam", err)
	}
}

func TestCombineRejectsEmptyImage(t *testing.T) {
	out := memFile(t, "combined.bin", nil)
	var comb Combiner
	_, err := comb.AddImage(out, memFile(t, "empty", nil), 0, false)
	if protocol.CodeOf(err) != protocol.CodeImageSize {
		t.Errorf("error = %v, want CodeImageSize", err)
	}
}

func TestCombineRejectsForeignContainer(t *testing.T) {
	out := memFile(t, "other.bin", []byte{'n', 'o', 't', 1})
	var comb Combiner
	_, err := comb.AddImage(out, memFile(t, "a", []byte{1, 2, 3, 4}), 0x1000, false)
	if protocol.CodeOf(err) != protocol.CodeParam {
		t.Errorf("error = %v, want CodeParam", err)
	}
}

func TestCombinedInfoListsImages(t *testing.T) {
	out := memFile(t, "combined.bin", nil)
	var comb Combiner
	for _, addr := range []uint32{0x00000, 0x10000, 0x7e000} {
		if _, err := comb.AddImage(out, memFile(t, "img", []byte{1, 2, 3, 4}), addr, false); err != nil {
			t.Fatal(err)
		}
	}

	var report strings.Builder
	if err := Info(out, &report); err != nil {
		t.Fatalf("Info: %v", err)
	}
	got := report.String()
	for _, want := range []string{
		"Combined image file containing 3 images",
		"Flash address 0x000000",
		"Flash address 0x010000",
		"Flash address 0x07e000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestCombinerResetsOnEmptyOutput(t *testing.T) {
	var comb Combiner
	out1 := memFile(t, "one.bin", nil)
	if _, err := comb.AddImage(out1, memFile(t, "a", []byte{1, 2, 3, 4}), 0x4000, false); err != nil {
		t.Fatal(err)
	}

	// A fresh empty output resets the running size, so low addresses are
	// accepted again.
	out2 := memFile(t, "two.bin", nil)
	if _, err := comb.AddImage(out2, memFile(t, "b", []byte{5, 6, 7, 8}), 0, false); err != nil {
		t.Errorf("AddImage after reset: %v", err)
	}
}
