package image

import "strings"

// Magic is the first byte of a standard ESP8266 load image.
const Magic = 0xe9

// CombinedSig is the signature of a combined image file.
const CombinedSig = "esp"

// Field masks of the 16-bit flash parameter word.
const (
	FlashModeMask = 0x0003
	FlashFreqMask = 0x0f00
	FlashSizeMask = 0xf000
)

// nameValue associates a designator with its parameter field value.
type nameValue struct {
	name  string
	value uint16
}

// Flash mode designators. QIO is the device default.
var flashModes = []nameValue{
	{"QIO", 0x0000},
	{"QOUT", 0x0001},
	{"DIO", 0x0002},
	{"DOUT", 0x0003},
}

// Flash size designators, in KB or MB.
var flashSizes = []nameValue{
	{"512K", 0x0000},
	{"256K", 0x1000},
	{"1M", 0x2000},
	{"2M", 0x3000},
	{"4M", 0x4000},
	{"8M", 0x5000},
	{"16M", 0x6000},
	{"32M", 0x7000},
}

// Flash frequency designators, in MHz.
var flashFreqs = []nameValue{
	{"40M", 0x0000},
	{"26M", 0x0100},
	{"20M", 0x0200},
	{"80M", 0x0f00},
}

func lookupName(tbl []nameValue, name string) (uint16, bool) {
	for _, nv := range tbl {
		if strings.EqualFold(nv.name, name) {
			return nv.value, true
		}
	}
	return 0, false
}

func lookupValue(tbl []nameValue, value uint16) (string, bool) {
	for _, nv := range tbl {
		if nv.value == value {
			return nv.name, true
		}
	}
	return "", false
}

// ParseFlashMode resolves a flash mode designator (QIO, QOUT, DIO, DOUT),
// ignoring case.
func ParseFlashMode(desc string) (uint16, bool) {
	if desc == "" {
		return 0, false
	}
	return lookupName(flashModes, desc)
}

// ParseFlashSize resolves a flash size designator (512K through 32M),
// ignoring case.
func ParseFlashSize(desc string) (uint16, bool) {
	if desc == "" {
		return 0, false
	}
	return lookupName(flashSizes, desc)
}

// ParseFlashFreq resolves a flash frequency designator (40M, 26M, 20M, 80M),
// ignoring case.
func ParseFlashFreq(desc string) (uint16, bool) {
	if desc == "" {
		return 0, false
	}
	return lookupName(flashFreqs, desc)
}

// FlashModeName returns the designator of the mode field in parm, or
// "<unknown>".
func FlashModeName(parm uint16) string {
	if name, ok := lookupValue(flashModes, parm&FlashModeMask); ok {
		return name
	}
	return "<unknown>"
}

// FlashSizeName returns the designator of the size field in parm, or
// "<unknown>".
func FlashSizeName(parm uint16) string {
	if name, ok := lookupValue(flashSizes, parm&FlashSizeMask); ok {
		return name
	}
	return "<unknown>"
}

// FlashFreqName returns the designator of the frequency field in parm, or
// "<unknown>".
func FlashFreqName(parm uint16) string {
	if name, ok := lookupValue(flashFreqs, parm&FlashFreqMask); ok {
		return name
	}
	return "<unknown>"
}
