// Command esptool is a downloader/utility program for the ESP8266. It can
// send executable images to the device, read back flash and memory, query
// the chip, and build or inspect ESP load images, including sparse and
// padded combined image files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/DonKinzer/esp-tool/elf"
	"github.com/DonKinzer/esp-tool/image"
	"github.com/DonKinzer/esp-tool/loader"
	"github.com/DonKinzer/esp-tool/protocol"
	"github.com/DonKinzer/esp-tool/vfile"
)

const (
	defDownloadSpeed = 115200
	defMonitorExit   = 0x04
	defCommChannel   = "/dev/ttyS0"
)

// noAddress marks "no target address specified"; it can never be a valid
// block-aligned flash address.
const noAddress = ^uint32(0x0400 - 1)

// Operating modes selected by operation options and applied to files.
type opMode int

const (
	modeWriteFlash opMode = iota
	modeReadFlash
	modeDumpMem
	modeImageCombine
	modeImageAppend
	modeImageInfo
	modeImageHex
	modeElfSection
)

// params accumulates option values between operations.
type params struct {
	portStr       string
	dlSpeed       uint32
	runSpeed      uint32
	monExit       byte
	mode          opMode
	resetMode     loader.ResetMode
	address       uint32
	size          uint32
	flashParmVal  uint16
	flashParmMask uint16
	combine       *vfile.File
	combiner      image.Combiner
	sectName      string
	hexFile       string
	padded        bool
	termMode      bool
	logFile       string
	elf           *elf.Reader
	longOpt       bool
}

func newParams() *params {
	return &params{
		portStr:   defCommChannel,
		dlSpeed:   defDownloadSpeed,
		monExit:   defMonitorExit,
		mode:      modeWriteFlash,
		resetMode: loader.ResetNone,
		address:   noAddress,
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Set("logtostderr", "true")
	flag.CommandLine.Parse(nil)

	esp := loader.New(loader.WithProgress(consoleProgress()))
	parm := newParams()

	// Arguments in the environment variable are processed as a prefix of
	// the argument list.
	if envStr := os.Getenv("ESP_TOOL"); envStr != "" {
		for _, arg := range splitArgString(envStr) {
			processArg(esp, parm, arg)
		}
	}

	if len(os.Args) == 1 {
		displayHelp()
		os.Exit(0)
	}
	for _, arg := range os.Args[1:] {
		processArg(esp, parm, arg)
	}

	if parm.combine != nil {
		parm.combine.Close()
		parm.combine = nil
	}

	if esp.AutoRun() && esp.IsCommOpen() {
		if parm.resetMode == loader.ResetNone {
			if err := esp.Run(true); err != nil {
				glog.V(1).Infof("run request failed: %v", err)
			}
		} else {
			esp.ResetDevice(parm.resetMode, true)
		}
	}

	if parm.termMode {
		runMonitor(esp, parm)
	}
	if parm.elf != nil {
		parm.elf.Close()
	}
	os.Exit(0)
}

// splitArgString breaks a whitespace-separated argument string, observing
// single and double quotes.
func splitArgString(s string) []string {
	var args []string
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		if c := s[i]; c == '"' || c == '\'' {
			i++
			start := i
			for i < len(s) && s[i] != c {
				i++
			}
			args = append(args, s[start:i])
			if i < len(s) {
				i++
			}
			continue
		}
		start := i
		for i < len(s) && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		args = append(args, s[start:i])
	}
	return args
}

// longOption maps a long-form option (after the "--") to its handler tag.
// The table is scanned in order; an entry that is a prefix of another must
// follow the longer entry.
var longOptions = []struct {
	opt string
	tag string
}{
	{"address=", "address"},
	{"baud=", "baud"},
	{"diag=", "diag"},
	{"dump-mem", "dump-mem"},
	{"elf-file=", "elf-file"},
	{"elf-info", "elf-info"},
	{"erase-flash", "erase"},
	{"erase", "erase"},
	{"exit=", "exit"},
	{"extract", "extract"},
	{"file=", "file"},
	{"flash-freq=", "flash-freq"},
	{"flash-id", "flash-id"},
	{"flash-mode=", "flash-mode"},
	{"flash-parm=", "flash-parm"},
	{"flash-size=", "flash-size"},
	{"help", "help"},
	{"hex", "hex"},
	{"image-info", "image-info"},
	{"log=", "log"},
	{"monitor", "monitor"},
	{"no-run", "no-run"},
	{"padded=", "padded"},
	{"padded+=", "padded+"},
	{"port=", "port"},
	{"quiet", "quiet"},
	{"read-mac", "read-mac"},
	{"read-flash", "read"},
	{"read", "read"},
	{"reset=", "reset"},
	{"run", "run"},
	{"section=", "section"},
	{"sections=", "section"},
	{"size=", "size"},
	{"sparse=", "sparse"},
	{"sparse+=", "sparse+"},
	{"write-flash", "write"},
	{"write", "write"},
}

// processArg interprets a single command-line argument.
func processArg(esp *loader.Client, parm *params, arg string) {
	if arg == "" {
		return
	}
	parm.longOpt = false
	if arg[0] != '-' {
		processFile(esp, parm, arg)
		return
	}

	rest := arg[1:]
	tag := ""
	if len(rest) > 0 && rest[0] == '-' {
		// Long-form option.
		rest = rest[1:]
		for _, lo := range longOptions {
			if len(rest) >= len(lo.opt) && rest[:len(lo.opt)] == lo.opt {
				tag = lo.tag
				rest = rest[len(lo.opt):]
				parm.longOpt = true
				break
			}
		}
	} else if len(rest) > 0 {
		// Short-form option.
		switch rest[0] {
		case '#':
			tag, rest = "diag", rest[1:]
		case '?', 'h', 'H':
			tag, rest = "help", rest[1:]
		case 'a':
			tag, rest = "address", rest[1:]
		case 'b':
			tag, rest = "baud", rest[1:]
		case 'c':
			if len(rest) >= 2 {
				switch rest[1] {
				case 'p':
					tag = "padded"
				case 's':
					tag = "sparse"
				}
				rest = rest[2:]
				if tag != "" && len(rest) > 0 && rest[0] == '+' {
					tag += "+"
					rest = rest[1:]
				}
			}
		case 'e':
			tag, rest = "elf-file", rest[1:]
		case 'f':
			if len(rest) >= 2 {
				switch rest[1] {
				case 'f':
					tag = "flash-freq"
				case 'm':
					tag = "flash-mode"
				case 'p':
					tag = "flash-parm"
				case 's':
					tag = "flash-size"
				}
				rest = rest[2:]
			}
		case 'l':
			tag, rest = "log", rest[1:]
		case 'm':
			tag, rest = "monitor", rest[1:]
		case 'o':
			if len(rest) >= 2 {
				switch rest[1] {
				case 'b', 'e':
					tag = "erase"
				case 'd':
					tag = "dump-mem"
				case 'f':
					tag = "flash-id"
				case 'h':
					tag = "hex"
				case 'i':
					tag = "image-info"
				case 'm':
					tag = "read-mac"
				case 'r':
					tag = "read"
				case 's':
					if len(rest) == 2 {
						tag = "elf-info"
					} else {
						tag = "section"
					}
				case 'w':
					tag = "write"
				case 'x':
					tag = "extract"
				}
				rest = rest[2:]
			}
		case 'p':
			tag, rest = "port", rest[1:]
		case 'q':
			tag, rest = "quiet", rest[1:]
		case 'r':
			switch rest[1:] {
			case "0":
				tag, rest = "no-run", ""
			case "1":
				tag, rest = "run", ""
			default:
				tag, rest = "reset", rest[1:]
			}
		case 's':
			tag, rest = "size", rest[1:]
		case 'x':
			tag, rest = "exit", rest[1:]
		}
	}

	if tag == "" {
		fatalf("Unrecognized option: %q.", arg)
	}
	applyOption(esp, parm, tag, rest, arg)
}

// applyOption performs the action for an option tag with its value text.
func applyOption(esp *loader.Client, parm *params, tag, val, arg string) {
	// Operation options taking an optional "=value" in long form.
	optionalValue := func() string {
		if val == "" {
			return ""
		}
		if val[0] == '=' {
			if !parm.longOpt {
				fatalf("Badly formed option: %q.", arg)
			}
			if val = val[1:]; val == "" {
				fatalf("Missing value - %q.", arg)
			}
		}
		return val
	}
	requireEmpty := func() {
		if val != "" {
			fatalf("Badly formed option: %q.", arg)
		}
	}

	switch tag {
	case "help":
		requireEmpty()
		displayHelp()
		os.Exit(0)

	case "diag":
		v, ok := parseOptionVal(optionalValue(), false)
		if !ok {
			fatalf("Invalid character in option value: %q.", arg)
		}
		esp.SetNoTimeLimit(v&0x0001 != 0)

	case "quiet":
		requireEmpty()
		esp.SetQuiet(true)

	case "run":
		requireEmpty()
		esp.SetAutoRun(true)

	case "no-run":
		requireEmpty()
		esp.SetAutoRun(false)

	case "port":
		if val == "" {
			fatalf("Badly formed option: %q.", arg)
		}
		parm.portStr = val

	case "baud":
		v, ok := parseOptionVal(val, true)
		if !ok || v == 0 {
			fatalf("Invalid baud rate - %q.", arg)
		}
		parm.dlSpeed = v

	case "reset":
		mode, ok := loader.ParseResetMode(val)
		if !ok {
			fatalf("Unrecognized reset mode designator: %q.", arg)
		}
		parm.resetMode = mode

	case "flash-mode":
		v, ok := image.ParseFlashMode(val)
		if !ok {
			fatalf("Invalid flash mode designator: %q.", arg)
		}
		mergeFlashParm(parm, v, image.FlashModeMask)

	case "flash-size":
		v, ok := image.ParseFlashSize(val)
		if !ok {
			fatalf("Invalid flash size designator: %q.", arg)
		}
		mergeFlashParm(parm, v, image.FlashSizeMask)

	case "flash-freq":
		v, ok := image.ParseFlashFreq(val)
		if !ok {
			fatalf("Invalid flash frequency designator: %q.", arg)
		}
		mergeFlashParm(parm, v, image.FlashFreqMask)

	case "flash-parm":
		v, ok := parseOptionVal(val, true)
		if !ok {
			fatalf("Invalid character in option value: %q.", arg)
		}
		mergeFlashParm(parm, uint16(v), image.FlashModeMask|image.FlashSizeMask|image.FlashFreqMask)

	case "address":
		v, ok := parseOptionVal(val, true)
		if !ok {
			fatalf("Invalid character in option value: %q.", arg)
		}
		parm.address = v

	case "size":
		v, ok := parseOptionVal(val, true)
		if !ok {
			fatalf("Invalid character in option value: %q.", arg)
		}
		if v == 0 {
			fatalf("The size must be non-zero - %q.", arg)
		}
		parm.size = v

	case "section":
		if val == "" {
			fatalf("Missing section name - %q.", arg)
		}
		parm.mode = modeElfSection
		parm.sectName = val

	case "monitor":
		if v := optionalValue(); v != "" {
			speed, ok := parseOptionVal(v, true)
			if !ok || speed == 0 {
				fatalf("The run speed must be non-zero - %q.", arg)
			}
			parm.runSpeed = speed
		}
		parm.termMode = true

	case "exit":
		v, ok := parseOptionVal(val, false)
		if !ok || v > 0xff {
			fatalf("The monitor exit code must be a byte value - %q.", arg)
		}
		parm.monExit = byte(v)

	case "log":
		if val == "" {
			fatalf("Badly formed option: %q.", arg)
		}
		parm.logFile = val

	case "read":
		requireEmpty()
		parm.mode = modeReadFlash

	case "write":
		requireEmpty()
		parm.mode = modeWriteFlash

	case "dump-mem":
		requireEmpty()
		parm.mode = modeDumpMem

	case "image-info":
		requireEmpty()
		parm.mode = modeImageInfo

	case "hex":
		if v := optionalValue(); v != "" {
			parm.hexFile = v
		}
		parm.mode = modeImageHex

	case "sparse", "sparse+", "padded", "padded+":
		if val == "" {
			fatalf("Missing filename for the combined image - %q.", arg)
		}
		appendMode := tag == "sparse+" || tag == "padded+"
		parm.padded = tag == "padded" || tag == "padded+"
		if appendMode {
			parm.mode = modeImageAppend
		} else {
			parm.mode = modeImageCombine
		}
		fmode := "w+b"
		if appendMode {
			fmode = "r+b"
		}
		combine, err := vfile.Open(val, fmode)
		if err != nil {
			verb := "writing"
			if appendMode {
				verb = "appending"
			}
			fatalf("Can't open file %q for %s.", val, verb)
		}
		parm.combine = combine

	case "elf-file":
		r, err := elf.Open(val)
		if err != nil {
			fatalf("An error occurred attempting to open the ELF file %q.", val)
		}
		if parm.elf != nil {
			parm.elf.Close()
		}
		parm.elf = r

	case "read-mac":
		requireEmpty()
		doReadMAC(esp, parm)

	case "flash-id":
		requireEmpty()
		doFlashID(esp, parm)

	case "erase":
		doEraseFlash(esp, parm, optionalValue(), arg)

	case "elf-info":
		requireEmpty()
		if parm.elf == nil {
			fatalf("No ELF file was specified.")
		}
		parm.elf.SectionInfo(os.Stdout)

	case "extract":
		doAutoExtract(esp, parm, optionalValue())

	case "file":
		processFile(esp, parm, val)

	default:
		fatalf("Unrecognized option: %q.", arg)
	}
}

func mergeFlashParm(parm *params, val, mask uint16) {
	parm.flashParmVal = (parm.flashParmVal &^ mask) | (val & mask)
	parm.flashParmMask |= mask
}

// doReadMAC reports the station and AP MAC addresses.
func doReadMAC(esp *loader.Client, parm *params) {
	if openComm(esp, parm, true) != nil {
		return
	}
	mac := make([]byte, 12)
	err := esp.ReadMAC(mac)
	switch {
	case err == nil:
		fmt.Printf("Station MAC is %02x:%02x:%02x:%02x:%02x:%02x\n",
			mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
		fmt.Printf("     AP MAC is %02x:%02x:%02x:%02x:%02x:%02x\n",
			mac[6], mac[7], mac[8], mac[9], mac[10], mac[11])
	case protocol.CodeOf(err) == protocol.CodeUnknownOUI:
		fatalf("Unable to determine the OUI (code 0x%02x).", mac[0])
	default:
		fatalf("An error occurred attempting to read the MAC address (%v).", err)
	}
}

// doFlashID reports the flash chip identification.
func doFlashID(esp *loader.Client, parm *params) {
	if openComm(esp, parm, true) != nil {
		return
	}
	flashID, err := esp.GetFlashID()
	if err != nil {
		fatalf("Failed to get Flash ID (%v).", err)
	}
	fmt.Printf("Manufacturer: %02x, Device: %02x%02x.\n",
		flashID&0xff, (flashID>>8)&0xff, (flashID>>16)&0xff)
}

// doEraseFlash erases all of flash, or a region when a size is given.
func doEraseFlash(esp *loader.Client, parm *params, sizeStr, arg string) {
	eraseSize := uint32(0)
	if sizeStr != "" {
		v, ok := parseOptionVal(sizeStr, true)
		if !ok {
			fatalf("Invalid character in option value: %q.", arg)
		}
		if v == 0 {
			fatalf("The size to erase must be non-zero - %q.", arg)
		}
		eraseSize = v
	}
	if openComm(esp, parm, true) != nil {
		return
	}
	var err error
	if eraseSize != 0 {
		if !esp.Quiet() {
			fmt.Printf("Erasing %d bytes at 0x%06x ...\n", eraseSize, parm.address&^0x3ff)
		}
		err = esp.FlashEraseRegion(parm.address, eraseSize)
	} else {
		err = esp.FlashErase()
	}
	if err != nil {
		fatalf("Flash erase failed (%v).", err)
	}
}

// doAutoExtract creates the canonical images from the ELF file, optionally
// combining them with an extra image file.
func doAutoExtract(esp *loader.Client, parm *params, imageFile string) {
	addr := parm.address
	if imageFile != "" {
		if parm.combine == nil {
			fatalf("An additional image file is allowed only when combining the extracted images - %q.", imageFile)
		}
		parm.address = noAddress
		if addr == noAddress {
			if a, name, ok := extractAddress(imageFile); ok {
				addr = a
				imageFile = name
			}
		}
	}
	if addr == noAddress {
		addr = 0
	}
	if parm.elf == nil {
		fatalf("No ELF file was specified.")
	}
	created, err := image.AutoExtract(parm.elf, parm.combine, &parm.combiner,
		parm.flashParmVal, parm.padded, imageFile, addr)
	for _, name := range created {
		if !esp.Quiet() {
			fmt.Printf("Created image file %q.\n", name)
		}
	}
	if err != nil {
		fatalf("Image extraction failed (%v).", err)
	}
}

// processFile applies the current mode to a file argument.
func processFile(esp *loader.Client, parm *params, file string) {
	if file == "" {
		return
	}

	switch parm.mode {
	case modeWriteFlash, modeReadFlash, modeDumpMem:
		if openComm(esp, parm, true) != nil {
			fatalf("Can't establish a connection on %s.", parm.portStr)
		}
	}

	var vf *vfile.File
	var err error
	switch parm.mode {
	case modeWriteFlash, modeImageCombine, modeImageAppend:
		if parm.address == noAddress {
			if a, name, ok := extractAddress(file); ok {
				parm.address = a
				file = name
			}
		}
		if parm.address != noAddress && parm.address&0x3ff != 0 {
			fatalf("The address 0x%x is not an integral multiple of the block size (%d).", parm.address, 0x400)
		}
		if vf, err = vfile.Open(file, "rb"); err != nil {
			fatalf("Can't open file %q for reading.", file)
		}

	case modeImageInfo, modeImageHex:
		if vf, err = vfile.Open(file, "rb"); err != nil {
			fatalf("Can't open file %q for reading.", file)
		}

	case modeReadFlash, modeDumpMem:
		if parm.address == noAddress {
			parm.address = 0
		}
		if parm.size == 0 {
			verb := "read"
			if parm.mode == modeDumpMem {
				verb = "dump"
			}
			fatalf("The size to %s must be specified.", verb)
		}
		if vf, err = vfile.Open(file, "wb"); err != nil {
			fatalf("Can't open file %q for writing.", file)
		}

	case modeElfSection:
		if vf, err = vfile.Open(file, "wb"); err != nil {
			fatalf("Can't open file %q for writing.", file)
		}
	}
	defer vf.Close()

	switch parm.mode {
	case modeWriteFlash:
		if parm.address == noAddress {
			parm.address = 0
		}
		if err := esp.FlashWrite(vf, parm.address, parm.flashParmVal, parm.flashParmMask); err != nil {
			fatalf("Download of file %q failed (%v).", file, err)
		}
		if !esp.Quiet() {
			fmt.Printf("File %q written successfully.\n", file)
		}
		parm.address = noAddress

	case modeReadFlash:
		if err := esp.FlashRead(vf, parm.address, parm.size); err != nil {
			fatalf("An error occurred while reading Flash (%v).", err)
		}
		if !esp.Quiet() {
			fmt.Printf("%d bytes written to %q.\n", parm.size, file)
		}
		parm.address = noAddress

	case modeDumpMem:
		if parm.address == 0 {
			fatalf("The starting address to dump must be non-zero.")
		}
		if err := esp.DumpMem(vf, parm.address, parm.size); err != nil {
			fatalf("An error occurred while dumping memory (%v).", err)
		}
		if !esp.Quiet() {
			fmt.Printf("%d bytes written to %q.\n", parm.size, file)
		}
		parm.address = noAddress

	case modeElfSection:
		if parm.elf == nil {
			fatalf("No ELF file was specified.")
		}
		if err := image.WriteSections(parm.elf, vf, parm.sectName, parm.flashParmVal); err != nil {
			fatalf("Section extraction failed (%v).", err)
		}

	case modeImageInfo:
		if err := image.Info(vf, os.Stdout); err != nil {
			fatalf("Image inspection failed (%v).", err)
		}

	case modeImageHex:
		hexName := parm.hexFile
		if hexName == "" {
			hexName = file + ".hex"
		}
		out, err := os.Create(hexName)
		if err != nil {
			fatalf("Can't create file %q for writing.", hexName)
		}
		addr := parm.address
		if addr == noAddress {
			addr = 0
		}
		if err := image.ExportIntelHex(vf, addr, out); err != nil {
			out.Close()
			fatalf("Intel HEX conversion failed (%v).", err)
		}
		out.Close()
		if !esp.Quiet() {
			fmt.Printf("Created hex file %q.\n", hexName)
		}
		parm.address = noAddress

	case modeImageCombine, modeImageAppend:
		if parm.address == noAddress {
			curSize, err := parm.combine.Size()
			if err != nil {
				fatalf("Can't determine the current size of the combined image file %q.", parm.combine.Name())
			}
			if curSize != 0 {
				fatalf("No Flash address was specified for the image file %q.", file)
			}
			parm.address = 0
		}
		added, err := parm.combiner.AddImage(parm.combine, vf, parm.address, parm.padded)
		if err != nil {
			fatalf("Combining failed (%v).", err)
		}
		if !esp.Quiet() {
			fmt.Printf("Added %q at 0x%08x, %d bytes.\n", file, parm.address, added)
		}
		parm.address = noAddress
	}
}

// openComm ensures the serial port is open and, for download operations,
// that a connection to the ROM loader is established.
func openComm(esp *loader.Client, parm *params, forDownload bool) error {
	speed := parm.dlSpeed
	if !forDownload && parm.runSpeed != 0 {
		speed = parm.runSpeed
	}

	if !esp.IsCommOpen() {
		if err := esp.OpenComm(parm.portStr, int(speed), parm.resetMode.OpenConfig()); err != nil {
			fatalf("Can't open port %s.", parm.portStr)
		}
	} else if err := esp.SetCommSpeed(int(speed)); err != nil {
		return err
	}

	if forDownload {
		if err := esp.Connect(parm.resetMode); err != nil {
			fmt.Fprintln(os.Stderr, "connection attempt failed")
			return err
		}
	}
	return nil
}
