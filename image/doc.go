// Package image builds and inspects ESP8266 load images.
//
// # Standard image
//
// A standard boot image starts with an 8-byte header:
//
//	[0xE9][SEG_COUNT][FLASH_PARM(2)][ENTRY(4)]
//
// followed by SEG_COUNT segments, each an 8-byte header of load address and
// padded size (both little-endian, size a multiple of 4) and the segment
// bytes. The file is zero-padded to a multiple of 16 bytes with the final
// byte holding the XOR checksum of all segment bytes seeded with 0xEF.
//
// The 16-bit flash parameter word packs the SPI mode (bits 0-1), frequency
// (bits 8-11) and size (bits 12-15); see ParseFlashMode, ParseFlashFreq and
// ParseFlashSize for the accepted designators.
//
// # Combined image
//
// A combined image packs several load images, each tagged with its flash
// offset, into one file for a single download session:
//
//	['e']['s']['p'][COUNT] then COUNT * ([ADDR(4)][PADDED_SIZE(4)][BYTES...])
//
// Entries are padded to a multiple of 4 bytes. The container is a sparse
// packaging format, not itself flashable without being unpacked entry by
// entry. A Combiner can alternatively produce a padded image: a literal
// flash snapshot with 0xFF fill between the component images.
//
// # Extraction
//
// WriteSections emits an image from named ELF sections; AutoExtract produces
// the canonical pair of images (boot image from .text/.data/.rodata, raw
// blob from .irom0.text) and optionally packs them into a combined file.
package image
