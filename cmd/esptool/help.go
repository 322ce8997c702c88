package main

import "fmt"

// Version of the tool.
const (
	verMajor = 0
	verMinor = 1
)

// displayHelp writes invocation help to stdout.
func displayHelp() {
	fmt.Printf("Invocation:            (V%d.%d)\n", verMajor, verMinor)
	fmt.Println("esptool [[<options>] [<operation>] [<file>]]...")
	fmt.Println(" where <options> are:")
	fmt.Println(" -h          --help                 display this information")
	fmt.Println(" -p<port>    --port=<port>          specify the serial port, e.g. /dev/ttyUSB0")
	fmt.Println(" -b<speed>   --baud=<speed>         specify the baud rate")
	fmt.Println(" -a<addr>    --address=<addr>       specify the address for a later operation")
	fmt.Println(" -s<size>    --size=<size>          specify the size for a later operation")
	fmt.Println(" -e<elf>     --elf-file=<elf>       specify an ELF file to process")
	fmt.Println(" -fs<size>   --flash-size=<size>    Flash size (256K, 512K, 1M, 2M, 4M, 8M)")
	fmt.Println(" -ff<freq>   --flash-freq=<freq>    Flash frequency (20M, 26M, 40M, 80M)")
	fmt.Println(" -fm<mode>   --flash-mode=<mode>    Flash mode (QIO, DIO, QOUT, DOUT)")
	fmt.Println(" -fp<val>    --flash-parm=<val>     combined Flash parameters")
	fmt.Println(" -l<file>    --log=<file>           log device output in monitor mode")
	fmt.Println(" -m[<speed>] --monitor[=<speed>]    after operations, enter monitor mode")
	fmt.Println(" -r<reset>   --reset=<reset>        set the reset mode (none, auto, dtronly,")
	fmt.Println("                                      ck, wifio, nodemcu)")
	fmt.Println(" -r0         --no-run               do not run device after operations")
	fmt.Println(" -r1         --run                  run device after operations (default)")
	fmt.Println(" -q          --quiet                suppress progress reporting")
	fmt.Println(" -x<code>    --exit=<code>          set the character code for monitor exit")
	fmt.Println()
	fmt.Println(" where <operation> is one of:")
	fmt.Println(" -cp<file>   --padded=<file>        combine images into a padded image file")
	fmt.Println(" -cp+<file>  --padded+=<file>       append images to an existing padded file")
	fmt.Println(" -cs<file>   --sparse=<file>        combine images into a sparse image file")
	fmt.Println(" -cs+<file>  --sparse+=<file>       append images to an existing sparse file")
	fmt.Println(" -od         --dump-mem             write the content of memory to a file")
	fmt.Println(" -oe[<size>] --erase-flash[=<size>] erase all or part of Flash memory")
	fmt.Println(" -of         --flash-id             report Flash identification information")
	fmt.Println(" -oh[<file>] --hex[=<file>]         convert an image file to Intel HEX")
	fmt.Println(" -oi         --image-info           output information about an image")
	fmt.Println(" -om         --read-mac             report the station MAC address")
	fmt.Println(" -or         --read-flash           read Flash memory, write to a file")
	fmt.Println(" -os         --elf-info             output section information from ELF file")
	fmt.Println(" -os<sect>   --section=<sect>       extract data from sections of ELF file")
	fmt.Println(" -ow         --write-flash          write files to Flash memory (default)")
	fmt.Println(" -ox[<file>] --extract[=<file>]     extract ELF file sections to create images")
}
