// Package protocol defines the wire-level contract with the ESP8266 factory
// ROM loader.
//
// # Protocol Overview
//
// The ROM loader speaks a request/response protocol over a SLIP-framed serial
// link:
//
//	Request:  C0 [00][OP][LEN_L][LEN_H][CHECK(4)][PAYLOAD...] C0
//	Response: C0 [01][OP][LEN_L][LEN_H][VALUE(4)][BODY...] C0
//
// Where:
//   - LEN = 16-bit payload/body length (little-endian)
//   - CHECK = 32-bit checksum of the payload data (little-endian); only
//     FLASH_DATA and MEM_DATA carry a meaningful value
//   - VALUE = 32-bit result carried in the response header; only READ_REG
//     produces a meaningful value
//
// A successful response for most commands carries a two-byte body of zeroes.
//
// # Builders and Parsers
//
// CommandHeader composes the 8-byte request header. ParseResponseHeader
// validates the direction byte and, when a non-zero expected opcode is
// supplied, the echoed opcode:
//
//	hdr := protocol.CommandHeader(protocol.OpSync, len(payload), 0)
//	rh, err := protocol.ParseResponseHeader(buf, protocol.OpSync)
//
// # Error Handling
//
// Every failure kind surfaced by this module is a distinct Code. Errors
// created with Errf carry a Code recoverable through any annotation chain
// via CodeOf:
//
//	if protocol.CodeOf(err) == protocol.CodeTimeout {
//	    // re-sync before issuing another command
//	}
package protocol
